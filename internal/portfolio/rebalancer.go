package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/execution"
	"github.com/kirillm/tradeguard/pkg/utils"
)

// TradeExecutor исполняет сделку через проверки безопасности
type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, req execution.TradeRequest) domain.TradeRecord
}

// AlertEmitter принимает уведомления без блокировки
type AlertEmitter interface {
	Emit(alert domain.Alert)
}

// RebalanceResult итог одного прогона ребалансировки
type RebalanceResult struct {
	Snapshot *domain.PortfolioSnapshot
	Proposed []domain.RebalanceTrade
	Trades   []domain.TradeRecord
	Executed int
}

// Rebalancer синхронизирует портфель и исполняет предложенные сделки через шлюз
type Rebalancer struct {
	aggregator *Aggregator
	executor   TradeExecutor
	alerts     AlertEmitter
	logger     *utils.Logger
}

func NewRebalancer(aggregator *Aggregator, executor TradeExecutor, logger *utils.Logger) *Rebalancer {
	return &Rebalancer{
		aggregator: aggregator,
		executor:   executor,
		logger:     logger,
	}
}

// SetAlertEmitter устанавливает получателя уведомлений
func (r *Rebalancer) SetAlertEmitter(e AlertEmitter) {
	r.alerts = e
}

// Rebalance всегда работает по свежему снимку. Продажи идут первыми,
// отклоненная шлюзом сделка не останавливает остальные.
func (r *Rebalancer) Rebalance(ctx context.Context) (*RebalanceResult, error) {
	snapshot, err := r.aggregator.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync before rebalance: %w", err)
	}

	result := &RebalanceResult{
		Snapshot: snapshot,
		Proposed: snapshot.RebalanceSuggestions,
	}
	if len(result.Proposed) == 0 {
		r.logger.Info("Rebalance: portfolio within target, nothing to do")
		return result, nil
	}

	var lines []string
	for _, trade := range result.Proposed {
		req := execution.TradeRequest{
			ProductID: domain.ProductID(trade.Asset),
			Side:      trade.Side,
		}
		if trade.Side == domain.SideBuy {
			req.USDAmount = trade.USDAmount
		} else {
			req.AssetAmount = trade.AssetAmount
		}

		rec := r.executor.ExecuteTrade(ctx, req)
		result.Trades = append(result.Trades, rec)

		if rec.Executed {
			result.Executed++
			lines = append(lines, fmt.Sprintf("%s %s $%s", trade.Side, trade.Asset, rec.FillUSD.StringFixed(2)))
		} else {
			r.logger.Warn("Rebalance: %s %s rejected: %s", trade.Side, trade.Asset, rec.Error)
			lines = append(lines, fmt.Sprintf("%s %s rejected (%s)", trade.Side, trade.Asset, rec.Reason))
		}
	}

	r.logger.Info("Rebalance complete: %d/%d trades executed", result.Executed, len(result.Proposed))

	if r.alerts != nil {
		priority := domain.PriorityNormal
		if result.Executed < len(result.Proposed) {
			priority = domain.PriorityHigh
		}
		r.alerts.Emit(domain.Alert{
			Type:      domain.AlertRebalance,
			Title:     fmt.Sprintf("Rebalance: %d/%d executed", result.Executed, len(result.Proposed)),
			Message:   strings.Join(lines, "\n"),
			Timestamp: time.Now(),
			Priority:  priority,
		})
	}

	return result, nil
}
