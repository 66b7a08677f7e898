package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillm/tradeguard/internal/alert"
	"github.com/kirillm/tradeguard/internal/config"
	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/exchange"
	"github.com/kirillm/tradeguard/internal/execution"
	"github.com/kirillm/tradeguard/internal/ledger"
	"github.com/kirillm/tradeguard/internal/orchestrator"
	"github.com/kirillm/tradeguard/internal/policy"
	"github.com/kirillm/tradeguard/internal/portfolio"
	"github.com/kirillm/tradeguard/internal/pricing"
	"github.com/kirillm/tradeguard/internal/ratelimit"
	"github.com/kirillm/tradeguard/internal/storage"
	"github.com/kirillm/tradeguard/pkg/utils"
)

// Имена ресурсов для RateLimiter
const (
	ResourceExecuteTrade = "execute_trade"
	ResourceRebalance    = "rebalance"
	ResourceSync         = "portfolio_sync"
	ResourceGains        = "unrealized_gains"
	ResourceSummary      = "status_summary"
	ResourceTaxReport    = "tax_report"
)

const (
	alertQueueSize   = 100
	tradeHistorySize = 100
	alertBufferSize  = 200
	fillSource       = "gateway"
	cleanupInterval  = time.Minute
)

// Store постоянное хранилище лотов и журнала сделок
type Store interface {
	domain.LotRepository
	domain.TradeRepository
	Close() error
}

// Engine единственный контекст приложения: собирается один раз из конфигурации
// и политики, все внешние вызовы проходят через RateLimiter
type Engine struct {
	cfg    *config.Config
	policy *policy.Policy
	logger *utils.Logger

	store        Store
	ledger       *ledger.Ledger
	exchange     *exchange.MultiExchangeAdapter
	prices       *pricing.Service
	gateway      *execution.TradeSafetyGateway
	killSwitch   *execution.KillSwitch
	aggregator   *portfolio.Aggregator
	rebalancer   *portfolio.Rebalancer
	orchestrator *orchestrator.Orchestrator
	alerts       *alert.Dispatcher
	recentAlerts *alert.Buffer
	limiter      *ratelimit.Limiter

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New создает Bybit клиентов для всех аккаунтов из конфигурации
func New(ctx context.Context, cfg *config.Config, pol *policy.Policy, logger *utils.Logger) (*Engine, error) {
	clients := make(map[string]exchange.Client, len(cfg.Bybit.Accounts))
	for _, account := range cfg.Bybit.Accounts {
		client := exchange.NewBybitClient(account.APIKey, account.APISecret, cfg.Bybit.BaseURL, cfg.Bybit.RPS)
		client.SetLogger(logger.With("exchange", account.Name))
		clients[account.Name] = client
	}
	return NewWithClients(ctx, cfg, pol, clients, logger)
}

// NewWithClients собирает Engine поверх готовых клиентов бирж
func NewWithClients(ctx context.Context, cfg *config.Config, pol *policy.Policy, clients map[string]exchange.Client, logger *utils.Logger) (*Engine, error) {
	store, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	e, err := build(ctx, cfg, pol, store, clients, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return e, nil
}

func build(ctx context.Context, cfg *config.Config, pol *policy.Policy, store Store, clients map[string]exchange.Client, logger *utils.Logger) (*Engine, error) {
	method, err := ledger.ParseAccountingMethod(cfg.Engine.AccountingMethod)
	if err != nil {
		return nil, err
	}
	l, err := ledger.New(ctx, store, method, logger.With("component", "ledger"))
	if err != nil {
		return nil, err
	}

	adapters := make([]*exchange.LiveExchangeAdapter, 0, len(cfg.Bybit.Accounts))
	sources := make([]portfolio.BalanceSource, 0, len(cfg.Bybit.Accounts))
	for _, account := range cfg.Bybit.Accounts {
		client, ok := clients[account.Name]
		if !ok {
			return nil, fmt.Errorf("no exchange client for account %q", account.Name)
		}
		adapter := exchange.NewLiveExchangeAdapter(account.Name, client, cfg.Engine.CacheTTL, logger.With("exchange", account.Name))
		adapters = append(adapters, adapter)
		sources = append(sources, adapter)
	}
	multi := exchange.NewMultiExchangeAdapter(adapters, pol.Portfolio.Routes, pol.Portfolio.DefaultRoute, logger.With("component", "routing"))
	prices := pricing.NewService(multi, pol.Portfolio.CashCurrencies, logger.With("component", "pricing"))

	buffer := alert.NewBuffer(alertBufferSize)
	sinks := []alert.Sink{buffer}
	if cfg.Telegram.Enabled() {
		tg, err := alert.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			logger.Warn("Telegram alerts disabled: %v", err)
		} else {
			sinks = append(sinks, tg)
		}
	}
	dispatcher := alert.NewDispatcher(alertQueueSize, logger.With("component", "alerts"), sinks...)

	killSwitch := execution.NewKillSwitch(logger.With("component", "killswitch"))
	killSwitch.SetAlertEmitter(dispatcher)
	killSwitch.SetMaxFailures(pol.Risk.MaxConsecutiveFailures)
	gateway := execution.NewTradeSafetyGateway(exchange.NewSpotAdapter(multi), execution.GatewayConfig{
		Mode: cfg.Mode,
		Limits: execution.Limits{
			MaxTradeUSD:       pol.Risk.MaxTradeUSD,
			MaxDailyVolumeUSD: pol.Risk.MaxDailyVolumeUSD,
			MaxTradesPerDay:   pol.Risk.MaxTradesPerDay,
			Cooldown:          pol.Risk.Cooldown,
			Whitelist:         pol.Risk.Whitelist,
			Blacklist:         pol.Risk.Blacklist,
		},
		FeeRate:     pol.Risk.FeeRate,
		HistorySize: tradeHistorySize,
	}, logger.With("component", "gateway"))
	gateway.SetKillSwitch(killSwitch)
	gateway.SetSlippageGuard(execution.NewSlippageGuard(pol.Risk.SlippageThresholdPercent))
	gateway.SetFillRecorder(ledger.NewFillRecorder(l, fillSource))
	gateway.SetTradeStore(store)
	gateway.SetAlertEmitter(dispatcher)

	if recent, err := store.GetRecentTrades(ctx, tradeHistorySize); err != nil {
		logger.Warn("Trade history not restored: %v", err)
	} else if n := gateway.LoadHistory(recent); n > 0 {
		logger.Info("Restored %d executed trades from history", n)
	}

	aggregator := portfolio.NewAggregator(sources, prices, portfolio.Config{
		TargetAllocation: pol.Portfolio.TargetAllocation,
		DriftThreshold:   pol.Portfolio.DriftThreshold,
		MinTradeUSD:      pol.Portfolio.MinTradeUSD,
		MaxTradeFraction: pol.Portfolio.MaxTradeFraction,
		StakingAPY:       pol.Portfolio.StakingAPY,
		CashCurrencies:   pol.Portfolio.CashCurrencies,
	}, logger.With("component", "portfolio"))

	rebalancer := portfolio.NewRebalancer(aggregator, gateway, logger.With("component", "rebalancer"))
	rebalancer.SetAlertEmitter(dispatcher)

	orch := orchestrator.New(orchestrator.Config{
		Interval:      cfg.Engine.SyncInterval,
		AutoRebalance: cfg.Engine.AutoRebalance,
	}, aggregator, rebalancer, logger.With("component", "orchestrator"))
	orch.SetAlertEmitter(dispatcher)

	logger.Info("Engine ready: mode=%s profile=%s accounts=%d store=%s", cfg.Mode, pol.ProfileName, len(adapters), cfg.Database.Driver)

	return &Engine{
		cfg:          cfg,
		policy:       pol,
		logger:       logger,
		store:        store,
		ledger:       l,
		exchange:     multi,
		prices:       prices,
		gateway:      gateway,
		killSwitch:   killSwitch,
		aggregator:   aggregator,
		rebalancer:   rebalancer,
		orchestrator: orch,
		alerts:       dispatcher,
		recentAlerts: buffer,
		limiter:      ratelimit.NewLimiter(pol.RateLimits),
		stopCleanup:  make(chan struct{}),
	}, nil
}

func openStore(cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return storage.NewPostgresStorage(cfg)
	case config.DriverSQLite:
		return storage.NewSQLiteStorage(cfg.SQLitePath)
	case config.DriverMemory, "":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Start запускает фоновую синхронизацию и очистку счетчиков RateLimiter
func (e *Engine) Start(ctx context.Context) error {
	if err := e.orchestrator.Start(ctx); err != nil {
		return err
	}
	go e.cleanupLoop()
	return nil
}

func (e *Engine) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := e.limiter.Cleanup(); n > 0 {
				e.logger.Debug("Rate limiter: %d expired entries removed", n)
			}
		case <-e.stopCleanup:
			return
		}
	}
}

// Close останавливает фоновые задачи, доставляет оставшиеся алерты и закрывает хранилище
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.orchestrator.Stop()
		close(e.stopCleanup)
		e.alerts.Close()
		err = e.store.Close()
	})
	return err
}

func (e *Engine) allow(caller, resource string) error {
	if e.limiter.Check(caller, resource) {
		return nil
	}
	_, reset := e.limiter.Remaining(caller, resource)
	e.logger.Warn("Rate limit: %s denied for %s, reset in %v", resource, caller, reset.Round(time.Second))
	return fmt.Errorf("%w: %s for %s, retry in %v", domain.ErrRateLimited, resource, caller, reset.Round(time.Second))
}

// ExecuteTrade отклонения шлюза возвращаются в TradeRecord, ошибка только ErrRateLimited
func (e *Engine) ExecuteTrade(ctx context.Context, caller string, req execution.TradeRequest) (domain.TradeRecord, error) {
	if err := e.allow(caller, ResourceExecuteTrade); err != nil {
		return domain.TradeRecord{}, err
	}
	return e.gateway.ExecuteTrade(ctx, req), nil
}

func (e *Engine) Sync(ctx context.Context, caller string) (*domain.PortfolioSnapshot, error) {
	if err := e.allow(caller, ResourceSync); err != nil {
		return nil, err
	}
	return e.aggregator.Sync(ctx)
}

func (e *Engine) Rebalance(ctx context.Context, caller string) (*portfolio.RebalanceResult, error) {
	if err := e.allow(caller, ResourceRebalance); err != nil {
		return nil, err
	}
	return e.rebalancer.Rebalance(ctx)
}

func (e *Engine) TradeSummary(caller string, limit int) (execution.TradeSummary, error) {
	if err := e.allow(caller, ResourceSummary); err != nil {
		return execution.TradeSummary{}, err
	}
	return e.gateway.TradeSummary(limit), nil
}

// RealizedGains налоговая сводка за год (0 = все годы)
func (e *Engine) RealizedGains(caller string, year int) (ledger.RealizedSummary, error) {
	if err := e.allow(caller, ResourceTaxReport); err != nil {
		return ledger.RealizedSummary{}, err
	}
	return e.ledger.RealizedGains(year), nil
}

// UnrealizedGains оценивает открытые лоты по текущим ценам
func (e *Engine) UnrealizedGains(ctx context.Context, caller string) (map[string]ledger.UnrealizedGain, error) {
	if err := e.allow(caller, ResourceGains); err != nil {
		return nil, err
	}
	holdings := e.ledger.CurrentHoldings()
	assets := make([]string, 0, len(holdings))
	for asset := range holdings {
		assets = append(assets, asset)
	}
	return e.ledger.UnrealizedGains(e.prices.GetPrices(ctx, assets)), nil
}

// RateLimitStatus оставшиеся вызовы ресурса для caller
func (e *Engine) RateLimitStatus(caller, resource string) (int, time.Duration) {
	return e.limiter.Remaining(caller, resource)
}

// SetConfirmer подключает подтверждение сделок для режима confirm
func (e *Engine) SetConfirmer(c execution.Confirmer) {
	e.gateway.SetConfirmer(c)
}

func (e *Engine) KillSwitch() *execution.KillSwitch {
	return e.killSwitch
}

func (e *Engine) LastSnapshot() *domain.PortfolioSnapshot {
	return e.aggregator.LastSnapshot()
}

// RecentAlerts последние n алертов из буфера
func (e *Engine) RecentAlerts(n int) []domain.Alert {
	return e.recentAlerts.Recent(n)
}

func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

func (e *Engine) Mode() string {
	return e.gateway.Mode()
}

func (e *Engine) Policy() *policy.Policy {
	return e.policy
}
