package telegram

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/execution"
	"github.com/kirillm/tradeguard/internal/ledger"
	"github.com/kirillm/tradeguard/internal/portfolio"
	"github.com/kirillm/tradeguard/pkg/utils"
)

type fakeEngine struct {
	mu         sync.Mutex
	trades     []execution.TradeRequest
	callers    []string
	killSwitch *execution.KillSwitch
	err        error
	confirmer  execution.Confirmer
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{killSwitch: execution.NewKillSwitch(utils.NewNopLogger())}
}

func (f *fakeEngine) record(caller string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callers = append(f.callers, caller)
	return f.err
}

func (f *fakeEngine) ExecuteTrade(ctx context.Context, caller string, req execution.TradeRequest) (domain.TradeRecord, error) {
	if err := f.record(caller); err != nil {
		return domain.TradeRecord{}, err
	}
	f.mu.Lock()
	f.trades = append(f.trades, req)
	confirmer := f.confirmer
	f.mu.Unlock()

	rec := domain.TradeRecord{ProductID: req.ProductID, Asset: domain.BaseAsset(req.ProductID), Side: req.Side}
	if confirmer != nil && !confirmer.Confirm(ctx, req, d("50000"), req.USDAmount) {
		rec.Error = "trade not confirmed"
		rec.Reason = "safety_limit"
		return rec, nil
	}
	rec.Executed = true
	rec.FillUSD = req.USDAmount
	rec.FillAmount = req.AssetAmount
	return rec, nil
}

func (f *fakeEngine) Sync(ctx context.Context, caller string) (*domain.PortfolioSnapshot, error) {
	if err := f.record(caller); err != nil {
		return nil, err
	}
	return &domain.PortfolioSnapshot{TotalUSDValue: d("1000")}, nil
}

func (f *fakeEngine) Rebalance(ctx context.Context, caller string) (*portfolio.RebalanceResult, error) {
	if err := f.record(caller); err != nil {
		return nil, err
	}
	return &portfolio.RebalanceResult{}, nil
}

func (f *fakeEngine) TradeSummary(caller string, limit int) (execution.TradeSummary, error) {
	if err := f.record(caller); err != nil {
		return execution.TradeSummary{}, err
	}
	return execution.TradeSummary{Mode: domain.ModePaper, KillSwitchActive: f.killSwitch.IsActive()}, nil
}

func (f *fakeEngine) RealizedGains(caller string, year int) (ledger.RealizedSummary, error) {
	if err := f.record(caller); err != nil {
		return ledger.RealizedSummary{}, err
	}
	return ledger.RealizedSummary{Year: year}, nil
}

func (f *fakeEngine) UnrealizedGains(ctx context.Context, caller string) (map[string]ledger.UnrealizedGain, error) {
	if err := f.record(caller); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeEngine) KillSwitch() *execution.KillSwitch {
	return f.killSwitch
}

func (f *fakeEngine) RecentAlerts(n int) []domain.Alert {
	return []domain.Alert{{Type: domain.AlertDrift, Title: "Portfolio drift", Timestamp: time.Now()}}
}

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
	sentCh   chan tgbotapi.MessageConfig
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		sentCh:  make(chan tgbotapi.MessageConfig, 16),
		updates: make(chan tgbotapi.Update, 16),
	}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.mu.Lock()
		f.sent = append(f.sent, msg)
		f.mu.Unlock()
		f.sentCh <- msg
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) callbackAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if cb, ok := r.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}
