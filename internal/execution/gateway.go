package execution

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
	"github.com/shopspring/decimal"
)

// DefaultPaperFeeRate комиссия синтетических paper-сделок
var DefaultPaperFeeRate = decimal.RequireFromString("0.006")

const (
	paperOrderPrefix   = "paper-"
	defaultHistorySize = 100
	dailyWindow        = 24 * time.Hour
)

// SpotClient биржевой клиент шлюза. Limit-методы есть у клиента, но шлюз их не вызывает.
type SpotClient interface {
	GetSpotPrice(ctx context.Context, productID string) (decimal.Decimal, error)
	MarketBuy(ctx context.Context, productID string, quoteUSD decimal.Decimal) (*domain.OrderResult, error)
	MarketSell(ctx context.Context, productID string, baseAmount decimal.Decimal) (*domain.OrderResult, error)
	LimitBuy(ctx context.Context, productID string, baseAmount, limitPrice decimal.Decimal) (*domain.OrderResult, error)
	LimitSell(ctx context.Context, productID string, baseAmount, limitPrice decimal.Decimal) (*domain.OrderResult, error)
}

// FillRecorder получает каждую исполненную сделку (например, налоговый учет)
type FillRecorder interface {
	RecordFill(ctx context.Context, trade domain.TradeRecord) error
}

// TradeStore журнал сделок
type TradeStore interface {
	SaveTrade(ctx context.Context, trade *domain.TradeRecord) error
}

// AlertEmitter принимает события для уведомлений
type AlertEmitter interface {
	Emit(alert domain.Alert)
}

// Confirmer подтверждает сделку в режиме confirm
type Confirmer interface {
	Confirm(ctx context.Context, req TradeRequest, price, notionalUSD decimal.Decimal) bool
}

// Limits жесткие лимиты безопасности
type Limits struct {
	MaxTradeUSD       decimal.Decimal
	MaxDailyVolumeUSD decimal.Decimal
	MaxTradesPerDay   int
	Cooldown          time.Duration
	Whitelist         []string
	Blacklist         []string
}

// GatewayConfig настройки шлюза
type GatewayConfig struct {
	Mode        string
	Limits      Limits
	FeeRate     decimal.Decimal
	HistorySize int
}

// TradeRequest запрос сделки: для BUY нужна сумма в USD, для SELL количество актива
type TradeRequest struct {
	ProductID   string
	Side        string
	USDAmount   decimal.Decimal
	AssetAmount decimal.Decimal
}

// TradeSummary состояние шлюза за текущие сутки
type TradeSummary struct {
	Mode              string
	TradesToday       int
	VolumeTodayUSD    decimal.Decimal
	MaxTradesPerDay   int
	MaxDailyVolumeUSD decimal.Decimal
	DailyResetTime    time.Time
	KillSwitchActive  bool
	RecentTrades      []domain.TradeRecord
}

// TradeSafetyGateway исполняет сделки по одной под лимитами безопасности.
// Отказы возвращаются как TradeRecord с Executed=false, а не как ошибки.
// execMu держится всю сделку, mu только на время чтения и изменения состояния,
// поэтому TradeSummary не ждет ответа биржи или оператора.
type TradeSafetyGateway struct {
	execMu   sync.Mutex
	mu       sync.Mutex
	client   SpotClient
	cfg      GatewayConfig
	counters domain.SafetyCounters
	history  []domain.TradeRecord
	now      func() time.Time
	logger   *utils.Logger

	killSwitch *KillSwitch
	slippage   *SlippageGuard
	recorder   FillRecorder
	store      TradeStore
	alerts     AlertEmitter
	confirmer  Confirmer
}

// NewTradeSafetyGateway создает шлюз над клиентом
func NewTradeSafetyGateway(client SpotClient, cfg GatewayConfig, logger *utils.Logger) *TradeSafetyGateway {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModePaper
	}
	if cfg.FeeRate.IsZero() {
		cfg.FeeRate = DefaultPaperFeeRate
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	cfg.Limits.Whitelist = upperAll(cfg.Limits.Whitelist)
	cfg.Limits.Blacklist = upperAll(cfg.Limits.Blacklist)

	g := &TradeSafetyGateway{
		client: client,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
	g.counters = domain.SafetyCounters{
		DailyResetTime: g.now(),
		LastTradeTime:  make(map[string]time.Time),
	}

	logger.Info("Trade gateway started in %s mode: max trade $%s, daily $%s / %d trades, cooldown %v",
		cfg.Mode, cfg.Limits.MaxTradeUSD, cfg.Limits.MaxDailyVolumeUSD, cfg.Limits.MaxTradesPerDay, cfg.Limits.Cooldown)
	return g
}

// SetClock подменяет часы и начинает новые сутки от текущего времени
func (g *TradeSafetyGateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	g.counters.DailyResetTime = now()
}

func (g *TradeSafetyGateway) SetKillSwitch(ks *KillSwitch) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.killSwitch = ks
}

func (g *TradeSafetyGateway) SetSlippageGuard(sg *SlippageGuard) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.slippage = sg
}

func (g *TradeSafetyGateway) SetFillRecorder(r FillRecorder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recorder = r
}

func (g *TradeSafetyGateway) SetTradeStore(s TradeStore) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.store = s
}

func (g *TradeSafetyGateway) SetAlertEmitter(e AlertEmitter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.alerts = e
}

func (g *TradeSafetyGateway) SetConfirmer(c Confirmer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmer = c
}

// LoadHistory восстанавливает историю после перезапуска. Берутся только исполненные сделки;
// сделки последних суток возвращаются в дневные счетчики и cooldown. Возвращает число загруженных.
func (g *TradeSafetyGateway) LoadHistory(trades []domain.TradeRecord) int {
	executed := make([]domain.TradeRecord, 0, len(trades))
	for _, t := range trades {
		if t.Executed {
			executed = append(executed, t)
		}
	}
	sort.SliceStable(executed, func(i, j int) bool {
		return executed[i].CreatedAt.Before(executed[j].CreatedAt)
	})

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	windowStart := time.Time{}
	for _, t := range executed {
		g.appendHistory(t)
		if now.Sub(t.CreatedAt) >= dailyWindow {
			continue
		}
		if windowStart.IsZero() {
			windowStart = t.CreatedAt
		}
		g.counters.DailyTrades++
		g.counters.DailyVolumeUSD = g.counters.DailyVolumeUSD.Add(t.FillUSD)
		if last, ok := g.counters.LastTradeTime[t.Asset]; !ok || t.CreatedAt.After(last) {
			g.counters.LastTradeTime[t.Asset] = t.CreatedAt
		}
	}
	if !windowStart.IsZero() {
		g.counters.DailyResetTime = windowStart
	}
	return len(executed)
}

// Mode режим исполнения
func (g *TradeSafetyGateway) Mode() string {
	return g.cfg.Mode
}

// Buy покупка актива на сумму в USD
func (g *TradeSafetyGateway) Buy(ctx context.Context, asset string, usdAmount decimal.Decimal) domain.TradeRecord {
	return g.ExecuteTrade(ctx, TradeRequest{ProductID: domain.ProductID(asset), Side: domain.SideBuy, USDAmount: usdAmount})
}

// Sell продажа количества актива
func (g *TradeSafetyGateway) Sell(ctx context.Context, asset string, assetAmount decimal.Decimal) domain.TradeRecord {
	return g.ExecuteTrade(ctx, TradeRequest{ProductID: domain.ProductID(asset), Side: domain.SideSell, AssetAmount: assetAmount})
}

// ExecuteTrade проверяет лимиты по порядку и исполняет сделку.
// Любой отказ оставляет счетчики без изменений.
func (g *TradeSafetyGateway) ExecuteTrade(ctx context.Context, req TradeRequest) domain.TradeRecord {
	g.execMu.Lock()
	defer g.execMu.Unlock()

	rec := domain.TradeRecord{
		ProductID:      strings.ToUpper(strings.TrimSpace(req.ProductID)),
		Asset:          domain.BaseAsset(req.ProductID),
		Side:           strings.ToUpper(req.Side),
		RequestedUSD:   req.USDAmount,
		RequestedAsset: req.AssetAmount,
		Mode:           g.cfg.Mode,
		CreatedAt:      g.clock(),
	}
	limits := g.cfg.Limits

	if err := g.checkKillSwitch(); err != nil {
		return g.reject(ctx, rec, err)
	}

	// 1. обязательные параметры
	if rec.Asset == "" {
		return g.reject(ctx, rec, fmt.Errorf("%w: missing parameter product_id", domain.ErrValidation))
	}
	switch rec.Side {
	case domain.SideBuy:
		if !req.USDAmount.IsPositive() {
			return g.reject(ctx, rec, fmt.Errorf("%w: missing parameter usd_amount for BUY", domain.ErrValidation))
		}
	case domain.SideSell:
		if !req.AssetAmount.IsPositive() {
			return g.reject(ctx, rec, fmt.Errorf("%w: missing parameter asset_amount for SELL", domain.ErrValidation))
		}
	default:
		return g.reject(ctx, rec, fmt.Errorf("%w: unknown side %q", domain.ErrValidation, req.Side))
	}

	// 2. черный и белый списки
	if contains(limits.Blacklist, rec.Asset) {
		return g.reject(ctx, rec, fmt.Errorf("%w: %s is blacklisted", domain.ErrSafetyLimit, rec.Asset))
	}
	if len(limits.Whitelist) > 0 && !contains(limits.Whitelist, rec.Asset) {
		return g.reject(ctx, rec, fmt.Errorf("%w: %s is not whitelisted", domain.ErrSafetyLimit, rec.Asset))
	}

	// 3-4. cooldown и дневные лимиты; объем SELL известен только после цены
	buyUSD := decimal.Zero
	if rec.Side == domain.SideBuy {
		buyUSD = req.USDAmount
	}
	if err := g.checkCounters(rec.Asset, buyUSD); err != nil {
		return g.reject(ctx, rec, err)
	}

	// 5. текущая цена; ошибка дает ноль, а не отказ
	price, err := g.client.GetSpotPrice(ctx, rec.ProductID)
	if err != nil {
		g.logger.Warn("Price for %s unavailable, using 0: %v", rec.ProductID, err)
		price = decimal.Zero
	}
	if price.IsNegative() {
		price = decimal.Zero
	}

	// 6. пересчет USD <-> актив и лимит размера сделки
	usd, amount := req.USDAmount, req.AssetAmount
	if rec.Side == domain.SideBuy {
		amount = decimal.Zero
		if price.IsPositive() {
			amount = usd.Div(price)
		}
	} else {
		usd = amount.Mul(price)
	}
	if usd.GreaterThan(limits.MaxTradeUSD) {
		return g.reject(ctx, rec, fmt.Errorf("%w: trade $%s exceeds max $%s", domain.ErrSafetyLimit, usd.StringFixed(2), limits.MaxTradeUSD))
	}
	if rec.Side == domain.SideSell {
		if err := g.checkCounters(rec.Asset, usd); err != nil {
			return g.reject(ctx, rec, err)
		}
	}

	if g.cfg.Mode == domain.ModeConfirm {
		confirmer := g.currentConfirmer()
		if confirmer == nil {
			return g.reject(ctx, rec, fmt.Errorf("%w: confirm mode without confirmer", domain.ErrSafetyLimit))
		}
		if !confirmer.Confirm(ctx, req, price, usd) {
			return g.reject(ctx, rec, fmt.Errorf("%w: trade not confirmed", domain.ErrSafetyLimit))
		}

		// ожидание оператора может длиться минуты: kill switch и сутки проверяются заново
		if err := g.checkKillSwitch(); err != nil {
			return g.reject(ctx, rec, err)
		}
		if err := g.checkCounters(rec.Asset, usd); err != nil {
			return g.reject(ctx, rec, err)
		}
	}

	// 7. исполнение
	if g.cfg.Mode == domain.ModePaper {
		rec.FillPrice = price
		rec.FillAmount = amount
		rec.FillUSD = usd
		rec.Fee = usd.Mul(g.cfg.FeeRate)
		rec.OrderID = paperOrderPrefix + uuid.NewString()
	} else {
		if err := g.executeLive(ctx, &rec, usd, amount, price); err != nil {
			if ks := g.currentKillSwitch(); ks != nil {
				ks.RecordFailure(err)
			}
			return g.reject(ctx, rec, err)
		}
		if ks := g.currentKillSwitch(); ks != nil {
			ks.RecordSuccess()
		}
	}
	rec.Executed = true

	// 8. только после успеха
	recorder := g.commit(rec, usd)
	g.persist(ctx, &rec)

	g.logger.Info("Trade executed [%s]: %s %s %s @ %s ($%s, fee $%s, order %s)",
		rec.Mode, rec.Side, rec.FillAmount, rec.Asset, rec.FillPrice, rec.FillUSD.StringFixed(2), rec.Fee.StringFixed(2), rec.OrderID)

	if recorder != nil {
		if err := recorder.RecordFill(ctx, rec); err != nil {
			g.logger.Error("Failed to record fill %s: %v", rec.OrderID, err)
			g.emit(domain.AlertError, domain.PriorityHigh, "Fill not recorded",
				fmt.Sprintf("%s %s %s: %v", rec.Side, rec.FillAmount, rec.Asset, err))
		}
	}
	g.emit(domain.AlertTrade, domain.PriorityNormal, fmt.Sprintf("%s %s", rec.Side, rec.Asset),
		fmt.Sprintf("%s %s @ $%s ($%s) [%s]", rec.Side, rec.FillAmount, rec.FillPrice, rec.FillUSD.StringFixed(2), rec.Mode))

	return rec
}

// checkCounters cooldown, число сделок за сутки и дневной объем (если usd > 0)
func (g *TradeSafetyGateway) checkCounters(asset string, usd decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	limits := g.cfg.Limits

	if last, ok := g.counters.LastTradeTime[asset]; ok && now.Sub(last) < limits.Cooldown {
		wait := limits.Cooldown - now.Sub(last)
		return fmt.Errorf("%w: %s cooldown active, %v remaining", domain.ErrSafetyLimit, asset, wait.Round(time.Second))
	}

	if now.Sub(g.counters.DailyResetTime) >= dailyWindow {
		g.logger.Info("Daily counters reset: %d trades, $%s", g.counters.DailyTrades, g.counters.DailyVolumeUSD.StringFixed(2))
		g.counters.DailyTrades = 0
		g.counters.DailyVolumeUSD = decimal.Zero
		g.counters.DailyResetTime = now
	}
	if g.counters.DailyTrades >= limits.MaxTradesPerDay {
		return fmt.Errorf("%w: daily trade limit %d reached", domain.ErrSafetyLimit, limits.MaxTradesPerDay)
	}
	if usd.IsPositive() {
		return g.checkDailyVolume(usd)
	}
	return nil
}

func (g *TradeSafetyGateway) checkKillSwitch() error {
	ks := g.currentKillSwitch()
	if ks == nil || !ks.IsActive() {
		return nil
	}
	_, reason, _ := ks.Status()
	return fmt.Errorf("%w: %s", domain.ErrKillSwitchActive, reason)
}

// commit обновляет счетчики и историю исполненной сделкой
func (g *TradeSafetyGateway) commit(rec domain.TradeRecord, usd decimal.Decimal) FillRecorder {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counters.DailyTrades++
	g.counters.DailyVolumeUSD = g.counters.DailyVolumeUSD.Add(usd)
	g.counters.LastTradeTime[rec.Asset] = g.now()
	g.appendHistory(rec)
	return g.recorder
}

func (g *TradeSafetyGateway) clock() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now()
}

func (g *TradeSafetyGateway) currentKillSwitch() *KillSwitch {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killSwitch
}

func (g *TradeSafetyGateway) currentConfirmer() Confirmer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirmer
}

// executeLive отправляет market ордер и заполняет поля исполнения
func (g *TradeSafetyGateway) executeLive(ctx context.Context, rec *domain.TradeRecord, usd, amount, price decimal.Decimal) error {
	var (
		result *domain.OrderResult
		err    error
	)
	if rec.Side == domain.SideBuy {
		result, err = g.client.MarketBuy(ctx, rec.ProductID, usd)
	} else {
		result, err = g.client.MarketSell(ctx, rec.ProductID, amount)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	if result == nil || !result.Success {
		msg := "order not filled"
		if result != nil && result.Error != "" {
			msg = result.Error
		}
		return fmt.Errorf("%w: %s", domain.ErrProvider, msg)
	}

	rec.OrderID = result.OrderID
	rec.Fee = result.Fee
	rec.FillAmount = result.FilledAmount
	if rec.FillAmount.IsZero() {
		rec.FillAmount = amount
	}
	rec.FillPrice = result.FilledPrice
	if rec.FillPrice.IsZero() {
		rec.FillPrice = price
	}
	rec.FillUSD = rec.FillAmount.Mul(rec.FillPrice)
	if rec.FillUSD.IsZero() && rec.Side == domain.SideBuy {
		rec.FillUSD = usd
	}

	g.mu.Lock()
	slippage := g.slippage
	g.mu.Unlock()

	if slippage != nil && price.IsPositive() {
		if err := slippage.CheckSlippage(rec.FillPrice, price); err != nil {
			g.logger.Warn("%s %s: %v", rec.Side, rec.ProductID, err)
			g.emit(domain.AlertTrade, domain.PriorityHigh, "Slippage warning",
				fmt.Sprintf("%s %s filled @ %s, expected %s: %v", rec.Side, rec.Asset, rec.FillPrice, price, err))
		}
	}
	return nil
}

// checkDailyVolume вызывается под g.mu
func (g *TradeSafetyGateway) checkDailyVolume(usd decimal.Decimal) error {
	limit := g.cfg.Limits.MaxDailyVolumeUSD
	if g.counters.DailyVolumeUSD.Add(usd).GreaterThan(limit) {
		return fmt.Errorf("%w: daily volume $%s + $%s exceeds $%s", domain.ErrSafetyLimit,
			g.counters.DailyVolumeUSD.StringFixed(2), usd.StringFixed(2), limit)
	}
	return nil
}

func (g *TradeSafetyGateway) reject(ctx context.Context, rec domain.TradeRecord, err error) domain.TradeRecord {
	rec.Executed = false
	rec.Error = err.Error()
	rec.Reason = domain.Reason(err)
	g.logger.Warn("Trade rejected: %s %s: %v", rec.Side, rec.ProductID, err)
	g.persist(ctx, &rec)
	return rec
}

// persist журнал в store не влияет на результат сделки
func (g *TradeSafetyGateway) persist(ctx context.Context, rec *domain.TradeRecord) {
	g.mu.Lock()
	store := g.store
	g.mu.Unlock()

	if store == nil {
		return
	}
	if err := store.SaveTrade(ctx, rec); err != nil {
		g.logger.Error("Failed to save trade record: %v", err)
	}
}

func (g *TradeSafetyGateway) appendHistory(rec domain.TradeRecord) {
	g.history = append(g.history, rec)
	if over := len(g.history) - g.cfg.HistorySize; over > 0 {
		g.history = append([]domain.TradeRecord(nil), g.history[over:]...)
	}
}

func (g *TradeSafetyGateway) emit(alertType, priority, title, message string) {
	g.mu.Lock()
	alerts, now := g.alerts, g.now()
	g.mu.Unlock()

	if alerts == nil {
		return
	}
	alerts.Emit(domain.Alert{
		Type:      alertType,
		Title:     title,
		Message:   message,
		Timestamp: now,
		Priority:  priority,
	})
}

// TradeSummary режим, счетчики за сутки и последние limit сделок (limit <= 0 означает все)
func (g *TradeSafetyGateway) TradeSummary(limit int) TradeSummary {
	g.mu.Lock()
	defer g.mu.Unlock()

	summary := TradeSummary{
		Mode:              g.cfg.Mode,
		TradesToday:       g.counters.DailyTrades,
		VolumeTodayUSD:    g.counters.DailyVolumeUSD,
		MaxTradesPerDay:   g.cfg.Limits.MaxTradesPerDay,
		MaxDailyVolumeUSD: g.cfg.Limits.MaxDailyVolumeUSD,
		DailyResetTime:    g.counters.DailyResetTime,
		KillSwitchActive:  g.killSwitch != nil && g.killSwitch.IsActive(),
	}
	// сутки истекли, но сброс произойдет только при следующей сделке
	if g.now().Sub(g.counters.DailyResetTime) >= dailyWindow {
		summary.TradesToday = 0
		summary.VolumeTodayUSD = decimal.Zero
	}

	start := 0
	if limit > 0 && len(g.history) > limit {
		start = len(g.history) - limit
	}
	summary.RecentTrades = append([]domain.TradeRecord(nil), g.history[start:]...)
	return summary
}

func contains(list []string, asset string) bool {
	for _, s := range list {
		if s == asset {
			return true
		}
	}
	return false
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToUpper(strings.TrimSpace(s)))
	}
	return out
}
