package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/portfolio"
	"github.com/kirillm/tradeguard/pkg/utils"
	"github.com/shopspring/decimal"
)

// Syncer источник снимков портфеля
type Syncer interface {
	Sync(ctx context.Context) (*domain.PortfolioSnapshot, error)
	DriftThreshold() decimal.Decimal
}

// Rebalancer исполняет ребалансировку
type Rebalancer interface {
	Rebalance(ctx context.Context) (*portfolio.RebalanceResult, error)
}

// AlertEmitter принимает уведомления без блокировки
type AlertEmitter interface {
	Emit(alert domain.Alert)
}

// Config конфигурация orchestrator
type Config struct {
	Interval      time.Duration // период синхронизации (15min default)
	AutoRebalance bool
}

// Orchestrator периодически синхронизирует портфель, сообщает о дрейфе
// и при включенном AutoRebalance запускает ребалансировку
type Orchestrator struct {
	cfg        Config
	syncer     Syncer
	rebalancer Rebalancer
	alerts     AlertEmitter
	logger     *utils.Logger

	mu        sync.Mutex
	ticker    *time.Ticker
	stopChan  chan struct{}
	done      chan struct{}
	isRunning bool
}

// New создает новый orchestrator
func New(cfg Config, syncer Syncer, rebalancer Rebalancer, logger *utils.Logger) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &Orchestrator{
		cfg:        cfg,
		syncer:     syncer,
		rebalancer: rebalancer,
		logger:     logger,
	}
}

// SetAlertEmitter устанавливает получателя уведомлений
func (o *Orchestrator) SetAlertEmitter(e AlertEmitter) {
	o.alerts = e
}

// Start запускает orchestrator
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.isRunning {
		return fmt.Errorf("orchestrator already running")
	}

	o.isRunning = true
	o.ticker = time.NewTicker(o.cfg.Interval)
	o.stopChan = make(chan struct{})
	o.done = make(chan struct{})
	o.logger.Info("Orchestrator started (interval: %v, auto-rebalance: %v)", o.cfg.Interval, o.cfg.AutoRebalance)

	go o.run(ctx, o.ticker, o.stopChan, o.done)

	return nil
}

// Stop останавливает orchestrator и ждет завершения текущего цикла
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.isRunning {
		o.mu.Unlock()
		return
	}
	o.logger.Info("Stopping orchestrator...")
	close(o.stopChan)
	o.ticker.Stop()
	o.isRunning = false
	done := o.done
	o.mu.Unlock()

	<-done
	o.logger.Info("Orchestrator stopped")
}

// IsRunning проверяет запущен ли orchestrator
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isRunning
}

// run основной цикл orchestrator
func (o *Orchestrator) run(ctx context.Context, ticker *time.Ticker, stop, done chan struct{}) {
	defer close(done)

	// Первый цикл сразу после старта
	if err := o.RunCycle(ctx); err != nil {
		o.handleError(err)
	}

	for {
		select {
		case <-ticker.C:
			if err := o.RunCycle(ctx); err != nil {
				o.handleError(err)
			}

		case <-stop:
			return

		case <-ctx.Done():
			return
		}
	}
}

// RunCycle один цикл: синхронизация, проверка дрейфа, ребалансировка
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	snapshot, err := o.syncer.Sync(ctx)
	if err != nil {
		return fmt.Errorf("portfolio sync failed: %w", err)
	}

	if len(snapshot.FailedSources) > 0 {
		o.emit(domain.AlertError, domain.PriorityHigh, "Exchange sync degraded",
			fmt.Sprintf("Excluded from snapshot: %s", strings.Join(snapshot.FailedSources, ", ")))
	}

	drifted := driftedAssets(snapshot, o.syncer.DriftThreshold())
	if len(drifted) == 0 {
		o.logger.Debug("Cycle complete: portfolio within drift threshold")
		return nil
	}

	o.logger.Info("Drift above threshold: %s", strings.Join(drifted, ", "))
	o.emit(domain.AlertDrift, domain.PriorityNormal, "Portfolio drift",
		fmt.Sprintf("Total $%s\n%s", snapshot.TotalUSDValue.StringFixed(2), strings.Join(drifted, "\n")))

	if !o.cfg.AutoRebalance {
		return nil
	}

	result, err := o.rebalancer.Rebalance(ctx)
	if err != nil {
		return fmt.Errorf("auto-rebalance failed: %w", err)
	}
	o.logger.Info("Auto-rebalance: %d/%d trades executed", result.Executed, len(result.Proposed))
	return nil
}

// handleError логирует ошибку цикла и уведомляет оператора
func (o *Orchestrator) handleError(err error) {
	o.logger.Error("Cycle error: %v", err)
	o.emit(domain.AlertError, domain.PriorityHigh, "Orchestrator cycle failed", err.Error())
}

func (o *Orchestrator) emit(alertType, priority, title, message string) {
	if o.alerts == nil {
		return
	}
	o.alerts.Emit(domain.Alert{
		Type:      alertType,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Priority:  priority,
	})
}

// driftedAssets строки вида "BTC +7.50%" для активов с |drift| > threshold
func driftedAssets(snapshot *domain.PortfolioSnapshot, threshold decimal.Decimal) []string {
	var assets []string
	for asset, drift := range snapshot.Drift {
		if drift.Abs().GreaterThan(threshold) {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)

	lines := make([]string, 0, len(assets))
	hundred := decimal.NewFromInt(100)
	for _, asset := range assets {
		pct := snapshot.Drift[asset].Mul(hundred)
		sign := ""
		if pct.IsPositive() {
			sign = "+"
		}
		lines = append(lines, fmt.Sprintf("%s %s%s%%", asset, sign, pct.StringFixed(2)))
	}
	return lines
}
