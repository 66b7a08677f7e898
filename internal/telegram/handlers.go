package telegram

import (
	"context"
	"fmt"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/execution"
	"github.com/kirillm/tradeguard/internal/ledger"
	"github.com/kirillm/tradeguard/internal/portfolio"
)

// Engine операции движка, доступные из чата; caller ограничивается RateLimiter
type Engine interface {
	ExecuteTrade(ctx context.Context, caller string, req execution.TradeRequest) (domain.TradeRecord, error)
	Sync(ctx context.Context, caller string) (*domain.PortfolioSnapshot, error)
	Rebalance(ctx context.Context, caller string) (*portfolio.RebalanceResult, error)
	TradeSummary(caller string, limit int) (execution.TradeSummary, error)
	RealizedGains(caller string, year int) (ledger.RealizedSummary, error)
	UnrealizedGains(ctx context.Context, caller string) (map[string]ledger.UnrealizedGain, error)
	KillSwitch() *execution.KillSwitch
	RecentAlerts(n int) []domain.Alert
}

// Handlers обработчики команд
type Handlers struct {
	engine    Engine
	formatter *Formatter
}

// NewHandlers создает обработчики
func NewHandlers(engine Engine, formatter *Formatter) *Handlers {
	return &Handlers{engine: engine, formatter: formatter}
}

// HandleHelp обрабатывает /help и /start
func (h *Handlers) HandleHelp(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	return h.formatter.FormatHelp(), nil
}

// HandleStatus обрабатывает /status
func (h *Handlers) HandleStatus(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	summary, err := h.engine.TradeSummary(caller, 0)
	if err != nil {
		return "", err
	}
	text := h.formatter.FormatSummary(summary)

	if active, reason, since := h.engine.KillSwitch().Status(); active {
		text += "\n" + h.formatter.FormatKillSwitch(active, reason, since)
	}
	return text, nil
}

// HandleHistory обрабатывает /history [N]
func (h *Handlers) HandleHistory(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	summary, err := h.engine.TradeSummary(caller, args.Count)
	if err != nil {
		return "", err
	}
	return h.formatter.FormatHistory(summary.RecentTrades), nil
}

// HandlePortfolio обрабатывает /portfolio
func (h *Handlers) HandlePortfolio(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	snapshot, err := h.engine.Sync(ctx, caller)
	if err != nil {
		return "", err
	}
	return h.formatter.FormatSnapshot(snapshot), nil
}

// HandleRebalance обрабатывает /rebalance
func (h *Handlers) HandleRebalance(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	result, err := h.engine.Rebalance(ctx, caller)
	if err != nil {
		return "", err
	}
	return h.formatter.FormatRebalance(result), nil
}

// HandleBuy обрабатывает /buy ASSET USD
func (h *Handlers) HandleBuy(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	rec, err := h.engine.ExecuteTrade(ctx, caller, execution.TradeRequest{
		ProductID: domain.ProductID(args.Asset),
		Side:      domain.SideBuy,
		USDAmount: args.Amount,
	})
	if err != nil {
		return "", err
	}
	return h.formatter.FormatTrade(rec), nil
}

// HandleSell обрабатывает /sell ASSET QTY
func (h *Handlers) HandleSell(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	rec, err := h.engine.ExecuteTrade(ctx, caller, execution.TradeRequest{
		ProductID:   domain.ProductID(args.Asset),
		Side:        domain.SideSell,
		AssetAmount: args.Amount,
	})
	if err != nil {
		return "", err
	}
	return h.formatter.FormatTrade(rec), nil
}

// HandleGains обрабатывает /gains [YEAR]
func (h *Handlers) HandleGains(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	summary, err := h.engine.RealizedGains(caller, args.Year)
	if err != nil {
		return "", err
	}
	return h.formatter.FormatRealized(summary), nil
}

// HandleUnrealized обрабатывает /unrealized
func (h *Handlers) HandleUnrealized(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	gains, err := h.engine.UnrealizedGains(ctx, caller)
	if err != nil {
		return "", err
	}
	return h.formatter.FormatUnrealized(gains), nil
}

// HandleAlerts обрабатывает /alerts [N]
func (h *Handlers) HandleAlerts(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	return h.formatter.FormatAlerts(h.engine.RecentAlerts(args.Count)), nil
}

// HandleKill обрабатывает /kill [reason]
func (h *Handlers) HandleKill(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	ks := h.engine.KillSwitch()
	ks.Activate(fmt.Sprintf("%s (%s)", args.Reason, caller))
	return h.formatter.FormatKillSwitch(ks.Status()), nil
}

// HandleResume обрабатывает /resume
func (h *Handlers) HandleResume(ctx context.Context, caller string, args *CommandArgs) (string, error) {
	ks := h.engine.KillSwitch()
	ks.Deactivate()
	return h.formatter.FormatKillSwitch(ks.Status()), nil
}
