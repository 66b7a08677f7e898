package execution

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
	"github.com/shopspring/decimal"
)

type fakeSpot struct {
	mu         sync.Mutex
	prices     map[string]decimal.Decimal
	priceErr   error
	orderErr   error
	result     *domain.OrderResult
	buys       []decimal.Decimal
	sells      []decimal.Decimal
	limitCalls int
}

func newFakeSpot() *fakeSpot {
	return &fakeSpot{prices: map[string]decimal.Decimal{
		"BTC-USD": d("50000"),
		"ETH-USD": d("2500"),
		"SOL-USD": d("100"),
	}}
}

func (f *fakeSpot) GetSpotPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.priceErr != nil {
		return decimal.Zero, f.priceErr
	}
	return f.prices[productID], nil
}

func (f *fakeSpot) MarketBuy(ctx context.Context, productID string, quoteUSD decimal.Decimal) (*domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buys = append(f.buys, quoteUSD)
	return f.order()
}

func (f *fakeSpot) MarketSell(ctx context.Context, productID string, baseAmount decimal.Decimal) (*domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sells = append(f.sells, baseAmount)
	return f.order()
}

func (f *fakeSpot) order() (*domain.OrderResult, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	if f.result != nil {
		r := *f.result
		return &r, nil
	}
	return &domain.OrderResult{Success: true, OrderID: "live-1"}, nil
}

func (f *fakeSpot) LimitBuy(ctx context.Context, productID string, baseAmount, limitPrice decimal.Decimal) (*domain.OrderResult, error) {
	f.limitCalls++
	return nil, domain.ErrUnsupported
}

func (f *fakeSpot) LimitSell(ctx context.Context, productID string, baseAmount, limitPrice decimal.Decimal) (*domain.OrderResult, error) {
	f.limitCalls++
	return nil, domain.ErrUnsupported
}

func (f *fakeSpot) orderCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buys) + len(f.sells) + f.limitCalls
}

type fakeRecorder struct {
	fills []domain.TradeRecord
	err   error
}

func (r *fakeRecorder) RecordFill(ctx context.Context, trade domain.TradeRecord) error {
	r.fills = append(r.fills, trade)
	return r.err
}

type fakeStore struct {
	trades []domain.TradeRecord
}

func (s *fakeStore) SaveTrade(ctx context.Context, trade *domain.TradeRecord) error {
	s.trades = append(s.trades, *trade)
	return nil
}

type fakeEmitter struct {
	alerts []domain.Alert
}

func (e *fakeEmitter) Emit(alert domain.Alert) {
	e.alerts = append(e.alerts, alert)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixedConfirmer bool

func (c fixedConfirmer) Confirm(ctx context.Context, req TradeRequest, price, notional decimal.Decimal) bool {
	return bool(c)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testLimits() Limits {
	return Limits{
		MaxTradeUSD:       d("500"),
		MaxDailyVolumeUSD: d("2000"),
		MaxTradesPerDay:   5,
		Cooldown:          time.Minute,
		Blacklist:         []string{"doge"},
	}
}

func newTestGateway(mode string, limits Limits) (*TradeSafetyGateway, *fakeSpot, *fakeClock) {
	spot := newFakeSpot()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	g := NewTradeSafetyGateway(spot, GatewayConfig{Mode: mode, Limits: limits}, utils.NewNopLogger())
	g.SetClock(clock.now)
	return g, spot, clock
}

func TestGateway_MaxTradeSize(t *testing.T) {
	g, _, _ := newTestGateway(domain.ModePaper, testLimits())
	ctx := context.Background()

	rec := g.Buy(ctx, "BTC", d("600"))
	if rec.Executed {
		t.Fatalf("$600 buy should be rejected with max_trade_usd=500")
	}
	if rec.Reason != "safety_limit" {
		t.Errorf("Reason = %q, want safety_limit", rec.Reason)
	}
	if summary := g.TradeSummary(0); summary.TradesToday != 0 || !summary.VolumeTodayUSD.IsZero() {
		t.Errorf("rejected trade changed counters: %+v", summary)
	}

	rec = g.Buy(ctx, "BTC", d("100"))
	if !rec.Executed {
		t.Fatalf("$100 buy rejected: %s", rec.Error)
	}
	if !rec.FillAmount.Equal(d("0.002")) {
		t.Errorf("FillAmount = %s, want 0.002", rec.FillAmount)
	}
}

func TestGateway_SellNotionalChecked(t *testing.T) {
	g, _, _ := newTestGateway(domain.ModePaper, testLimits())

	// 0.02 BTC @ 50000 = $1000
	rec := g.Sell(context.Background(), "BTC", d("0.02"))
	if rec.Executed {
		t.Fatalf("$1000 sell should exceed max_trade_usd")
	}
	if !strings.Contains(rec.Error, "exceeds max") {
		t.Errorf("Error = %q", rec.Error)
	}
}

func TestGateway_BlacklistAndWhitelist(t *testing.T) {
	ctx := context.Background()

	g, _, _ := newTestGateway(domain.ModePaper, testLimits())
	if rec := g.Buy(ctx, "DOGE", d("10")); rec.Executed {
		t.Errorf("blacklisted asset executed")
	}

	limits := testLimits()
	limits.Whitelist = []string{"BTC", "ETH"}
	g, _, _ = newTestGateway(domain.ModePaper, limits)
	if rec := g.Buy(ctx, "SOL", d("10")); rec.Executed {
		t.Errorf("asset outside whitelist executed")
	}
	if rec := g.Buy(ctx, "ETH", d("10")); !rec.Executed {
		t.Errorf("whitelisted asset rejected: %s", rec.Error)
	}
}

func TestGateway_DailyTradeLimit(t *testing.T) {
	g, _, clock := newTestGateway(domain.ModePaper, testLimits())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if rec := g.Buy(ctx, "BTC", d("10")); !rec.Executed {
			t.Fatalf("trade %d rejected: %s", i+1, rec.Error)
		}
		clock.advance(2 * time.Minute)
	}

	rec := g.Buy(ctx, "BTC", d("1"))
	if rec.Executed {
		t.Fatalf("6th trade should be rejected")
	}
	if !strings.Contains(rec.Error, "daily trade limit") {
		t.Errorf("Error = %q", rec.Error)
	}

	// новые сутки
	clock.advance(24 * time.Hour)
	if rec := g.Buy(ctx, "BTC", d("1")); !rec.Executed {
		t.Errorf("trade after daily reset rejected: %s", rec.Error)
	}
	if summary := g.TradeSummary(0); summary.TradesToday != 1 {
		t.Errorf("TradesToday = %d, want 1 after reset", summary.TradesToday)
	}
}

func TestGateway_DailyVolumeLimit(t *testing.T) {
	limits := testLimits()
	limits.MaxDailyVolumeUSD = d("250")
	g, _, clock := newTestGateway(domain.ModePaper, limits)
	ctx := context.Background()

	if rec := g.Buy(ctx, "BTC", d("200")); !rec.Executed {
		t.Fatalf("first buy rejected: %s", rec.Error)
	}
	clock.advance(2 * time.Minute)

	if rec := g.Buy(ctx, "ETH", d("100")); rec.Executed {
		t.Errorf("buy over daily volume executed")
	}
	// 0.5 SOL @ 100 = $50 fits exactly
	if rec := g.Sell(ctx, "SOL", d("0.5")); !rec.Executed {
		t.Errorf("sell within daily volume rejected: %s", rec.Error)
	}
}

func TestGateway_Cooldown(t *testing.T) {
	g, _, clock := newTestGateway(domain.ModePaper, testLimits())
	ctx := context.Background()

	if rec := g.Buy(ctx, "BTC", d("10")); !rec.Executed {
		t.Fatalf("first trade rejected: %s", rec.Error)
	}
	clock.advance(30 * time.Second)

	rec := g.Buy(ctx, "BTC", d("10"))
	if rec.Executed || !strings.Contains(rec.Error, "cooldown") {
		t.Errorf("second BTC trade within cooldown = %+v", rec)
	}
	if rec := g.Buy(ctx, "ETH", d("10")); !rec.Executed {
		t.Errorf("other asset affected by cooldown: %s", rec.Error)
	}

	clock.advance(31 * time.Second)
	if rec := g.Buy(ctx, "BTC", d("10")); !rec.Executed {
		t.Errorf("trade after cooldown rejected: %s", rec.Error)
	}
}

func TestGateway_MissingParameters(t *testing.T) {
	g, _, _ := newTestGateway(domain.ModePaper, testLimits())
	ctx := context.Background()

	tests := []struct {
		name string
		req  TradeRequest
	}{
		{"buy without usd", TradeRequest{ProductID: "BTC-USD", Side: domain.SideBuy, AssetAmount: d("1")}},
		{"sell without amount", TradeRequest{ProductID: "BTC-USD", Side: domain.SideSell, USDAmount: d("100")}},
		{"unknown side", TradeRequest{ProductID: "BTC-USD", Side: "HOLD", USDAmount: d("100")}},
		{"empty product", TradeRequest{Side: domain.SideBuy, USDAmount: d("100")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := g.ExecuteTrade(ctx, tt.req)
			if rec.Executed || rec.Reason != "validation" {
				t.Errorf("record = %+v, want validation rejection", rec)
			}
		})
	}
}

func TestGateway_PaperModeNeverCallsOrders(t *testing.T) {
	g, spot, clock := newTestGateway(domain.ModePaper, testLimits())
	ctx := context.Background()

	buy := g.Buy(ctx, "BTC", d("100"))
	clock.advance(2 * time.Minute)
	sell := g.Sell(ctx, "BTC", d("0.001"))

	if !buy.Executed || !sell.Executed {
		t.Fatalf("paper trades rejected: %s / %s", buy.Error, sell.Error)
	}
	if n := spot.orderCalls(); n != 0 {
		t.Errorf("paper mode issued %d client order calls", n)
	}
	if !strings.HasPrefix(buy.OrderID, "paper-") {
		t.Errorf("OrderID = %q, want paper- prefix", buy.OrderID)
	}
	if !buy.Fee.Equal(d("0.6")) {
		t.Errorf("Fee = %s, want 0.6 (0.6%% of 100)", buy.Fee)
	}
}

func TestGateway_PriceErrorTreatedAsZero(t *testing.T) {
	g, spot, _ := newTestGateway(domain.ModePaper, testLimits())
	spot.priceErr = errors.New("feed down")

	rec := g.Buy(context.Background(), "BTC", d("100"))
	if !rec.Executed {
		t.Fatalf("price failure should not reject: %s", rec.Error)
	}
	if !rec.FillPrice.IsZero() || !rec.FillAmount.IsZero() {
		t.Errorf("fill = %s @ %s, want zero", rec.FillAmount, rec.FillPrice)
	}
}

func TestGateway_LiveMode(t *testing.T) {
	ctx := context.Background()

	t.Run("fill from provider", func(t *testing.T) {
		g, spot, _ := newTestGateway(domain.ModeLive, testLimits())
		spot.result = &domain.OrderResult{Success: true, OrderID: "bybit-9", FilledAmount: d("0.002"), FilledPrice: d("50100"), Fee: d("0.1")}
		recorder := &fakeRecorder{}
		g.SetFillRecorder(recorder)

		rec := g.Buy(ctx, "BTC", d("100"))
		if !rec.Executed {
			t.Fatalf("live buy rejected: %s", rec.Error)
		}
		if rec.OrderID != "bybit-9" || !rec.FillPrice.Equal(d("50100")) || !rec.FillUSD.Equal(d("100.2")) {
			t.Errorf("record = %+v", rec)
		}
		if len(spot.buys) != 1 || !spot.buys[0].Equal(d("100")) {
			t.Errorf("MarketBuy calls = %v", spot.buys)
		}
		if len(recorder.fills) != 1 {
			t.Errorf("recorder got %d fills, want 1", len(recorder.fills))
		}
	})

	t.Run("provider error", func(t *testing.T) {
		g, spot, _ := newTestGateway(domain.ModeLive, testLimits())
		spot.orderErr = errors.New("insufficient balance")
		recorder := &fakeRecorder{}
		g.SetFillRecorder(recorder)

		rec := g.Sell(ctx, "ETH", d("0.1"))
		if rec.Executed {
			t.Fatalf("sell with provider error executed")
		}
		if !strings.Contains(rec.Error, "insufficient balance") || rec.Reason != "provider" {
			t.Errorf("record = %+v", rec)
		}
		if len(recorder.fills) != 0 {
			t.Errorf("failed trade reached recorder")
		}
		if summary := g.TradeSummary(0); summary.TradesToday != 0 {
			t.Errorf("failed trade counted")
		}
	})

	t.Run("slippage alert", func(t *testing.T) {
		g, spot, _ := newTestGateway(domain.ModeLive, testLimits())
		spot.result = &domain.OrderResult{Success: true, OrderID: "x", FilledAmount: d("0.002"), FilledPrice: d("52000")}
		emitter := &fakeEmitter{}
		g.SetAlertEmitter(emitter)
		g.SetSlippageGuard(NewSlippageGuard(d("1")))

		if rec := g.Buy(ctx, "BTC", d("100")); !rec.Executed {
			t.Fatalf("buy rejected: %s", rec.Error)
		}
		var found bool
		for _, a := range emitter.alerts {
			if a.Title == "Slippage warning" {
				found = true
			}
		}
		if !found {
			t.Errorf("no slippage alert in %+v", emitter.alerts)
		}
	})
}

func TestGateway_ConfirmMode(t *testing.T) {
	ctx := context.Background()

	g, spot, _ := newTestGateway(domain.ModeConfirm, testLimits())
	if rec := g.Buy(ctx, "BTC", d("100")); rec.Executed {
		t.Errorf("confirm mode without confirmer executed")
	}

	g.SetConfirmer(fixedConfirmer(false))
	if rec := g.Buy(ctx, "BTC", d("100")); rec.Executed {
		t.Errorf("declined trade executed")
	}

	g.SetConfirmer(fixedConfirmer(true))
	if rec := g.Buy(ctx, "BTC", d("100")); !rec.Executed {
		t.Errorf("confirmed trade rejected: %s", rec.Error)
	}
	if len(spot.buys) != 1 {
		t.Errorf("MarketBuy called %d times, want 1", len(spot.buys))
	}
}

func TestGateway_KillSwitch(t *testing.T) {
	g, _, _ := newTestGateway(domain.ModePaper, testLimits())
	ks := NewKillSwitch(utils.NewNopLogger())
	g.SetKillSwitch(ks)
	ctx := context.Background()

	ks.Activate("manual stop")
	rec := g.Buy(ctx, "BTC", d("10"))
	if rec.Executed || !strings.Contains(rec.Error, "manual stop") {
		t.Errorf("record = %+v, want kill switch rejection", rec)
	}

	ks.Deactivate()
	if rec := g.Buy(ctx, "BTC", d("10")); !rec.Executed {
		t.Errorf("trade after deactivate rejected: %s", rec.Error)
	}
}

func TestGateway_HistoryAndStore(t *testing.T) {
	g, _, clock := newTestGateway(domain.ModePaper, testLimits())
	store := &fakeStore{}
	emitter := &fakeEmitter{}
	g.SetTradeStore(store)
	g.SetAlertEmitter(emitter)
	ctx := context.Background()

	g.Buy(ctx, "BTC", d("100"))
	clock.advance(2 * time.Minute)
	g.Buy(ctx, "BTC", d("900"))
	g.Buy(ctx, "ETH", d("50"))

	summary := g.TradeSummary(10)
	if summary.Mode != domain.ModePaper || summary.TradesToday != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if !summary.VolumeTodayUSD.Equal(d("150")) {
		t.Errorf("VolumeTodayUSD = %s, want 150", summary.VolumeTodayUSD)
	}
	if len(summary.RecentTrades) != 2 {
		t.Errorf("RecentTrades = %d, want only executed trades", len(summary.RecentTrades))
	}
	if len(store.trades) != 3 {
		t.Errorf("store has %d records, want 3 including rejection", len(store.trades))
	}
	if len(emitter.alerts) != 2 {
		t.Errorf("alerts = %d, want one per executed trade", len(emitter.alerts))
	}
	if recent := g.TradeSummary(1).RecentTrades; len(recent) != 1 || recent[0].Asset != "ETH" {
		t.Errorf("TradeSummary(1) = %+v, want last ETH trade", recent)
	}
}

func TestGateway_ConcurrentSameAsset(t *testing.T) {
	g, _, _ := newTestGateway(domain.ModePaper, testLimits())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]domain.TradeRecord, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.Buy(ctx, "BTC", d("10"))
		}(i)
	}
	wg.Wait()

	executed := 0
	for _, r := range results {
		if r.Executed {
			executed++
		}
	}
	if executed != 1 {
		t.Errorf("executed = %d, want exactly 1 within cooldown", executed)
	}
}

func TestSlippageGuard(t *testing.T) {
	sg := NewSlippageGuard(d("1"))

	if err := sg.CheckSlippage(d("100.5"), d("100")); err != nil {
		t.Errorf("0.5%% slippage rejected: %v", err)
	}
	if err := sg.CheckSlippage(d("98"), d("100")); !errors.Is(err, ErrSlippageTooHigh) {
		t.Errorf("2%% slippage error = %v, want ErrSlippageTooHigh", err)
	}
	if got := sg.CalculateSlippage(d("102"), d("100")); !got.Equal(d("2")) {
		t.Errorf("CalculateSlippage = %s, want 2", got)
	}
	if err := sg.CheckSlippage(d("1"), d("0")); err == nil {
		t.Errorf("zero expected price should be an error")
	}
}

// haltingConfirmer подтверждает сделку, но за время ожидания оператор останавливает торговлю
type haltingConfirmer struct {
	ks *KillSwitch
}

func (c haltingConfirmer) Confirm(ctx context.Context, req TradeRequest, price, notional decimal.Decimal) bool {
	c.ks.Activate("operator halted trading")
	return true
}

// blockingConfirmer ждет ответа из release
type blockingConfirmer struct {
	entered chan struct{}
	release chan bool
}

func (c blockingConfirmer) Confirm(ctx context.Context, req TradeRequest, price, notional decimal.Decimal) bool {
	close(c.entered)
	return <-c.release
}

func TestGateway_KillSwitchDuringConfirmation(t *testing.T) {
	g, spot, _ := newTestGateway(domain.ModeConfirm, testLimits())
	ks := NewKillSwitch(utils.NewNopLogger())
	g.SetKillSwitch(ks)
	g.SetConfirmer(haltingConfirmer{ks: ks})

	rec := g.Buy(context.Background(), "BTC", d("100"))
	if rec.Executed {
		t.Fatalf("trade executed after kill switch was activated during confirmation")
	}
	if rec.Reason != "safety_limit" || !strings.Contains(rec.Error, "operator halted trading") {
		t.Errorf("record = %+v, want kill switch rejection", rec)
	}
	if n := spot.orderCalls(); n != 0 {
		t.Errorf("order calls = %d, want 0", n)
	}
	if summary := g.TradeSummary(0); summary.TradesToday != 0 {
		t.Errorf("TradesToday = %d, want 0", summary.TradesToday)
	}
}

func TestGateway_SummaryWhileAwaitingConfirmation(t *testing.T) {
	g, spot, _ := newTestGateway(domain.ModeConfirm, testLimits())
	confirmer := blockingConfirmer{entered: make(chan struct{}), release: make(chan bool)}
	g.SetConfirmer(confirmer)

	done := make(chan domain.TradeRecord, 1)
	go func() {
		done <- g.Buy(context.Background(), "BTC", d("100"))
	}()

	select {
	case <-confirmer.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("confirmation was never requested")
	}

	summaryDone := make(chan TradeSummary, 1)
	go func() {
		summaryDone <- g.TradeSummary(10)
	}()
	select {
	case summary := <-summaryDone:
		if summary.TradesToday != 0 || len(summary.RecentTrades) != 0 {
			t.Errorf("summary during confirmation = %+v, want empty", summary)
		}
	case <-time.After(500 * time.Millisecond):
		t.Errorf("TradeSummary blocked while confirmation is pending")
	}

	confirmer.release <- true
	select {
	case rec := <-done:
		if !rec.Executed {
			t.Errorf("confirmed trade rejected: %s", rec.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("trade did not finish after confirmation")
	}
	if n := spot.orderCalls(); n != 1 {
		t.Errorf("order calls = %d, want 1", n)
	}
}

func TestGateway_KillSwitchTripsOnOrderFailures(t *testing.T) {
	g, spot, _ := newTestGateway(domain.ModeLive, testLimits())
	ks := NewKillSwitch(utils.NewNopLogger())
	ks.SetMaxFailures(2)
	g.SetKillSwitch(ks)
	spot.orderErr = errors.New("exchange unavailable")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if rec := g.Buy(ctx, "BTC", d("10")); rec.Executed {
			t.Fatalf("buy %d executed with failing exchange", i)
		}
	}
	if !ks.IsActive() {
		t.Fatalf("kill switch inactive after 2 consecutive order failures")
	}

	rec := g.Buy(ctx, "ETH", d("10"))
	if rec.Executed || !strings.Contains(rec.Error, "consecutive order failures") {
		t.Errorf("record = %+v, want kill switch rejection", rec)
	}
	if n := spot.orderCalls(); n != 2 {
		t.Errorf("order calls = %d, want 2", n)
	}
}

func TestGateway_LoadHistory(t *testing.T) {
	g, _, clock := newTestGateway(domain.ModePaper, testLimits())
	now := clock.now()

	// как из store: новые первыми
	loaded := g.LoadHistory([]domain.TradeRecord{
		{Asset: "ETH", ProductID: "ETH-USD", Executed: true, FillUSD: d("50"), CreatedAt: now.Add(-30 * time.Second)},
		{Asset: "SOL", ProductID: "SOL-USD", Executed: false, Reason: "safety_limit", CreatedAt: now.Add(-10 * time.Minute)},
		{Asset: "BTC", ProductID: "BTC-USD", Executed: true, FillUSD: d("100"), CreatedAt: now.Add(-30 * time.Minute)},
		{Asset: "BTC", ProductID: "BTC-USD", Executed: true, FillUSD: d("300"), CreatedAt: now.Add(-27 * time.Hour)},
	})
	if loaded != 3 {
		t.Errorf("LoadHistory() = %d, want 3 executed trades", loaded)
	}

	summary := g.TradeSummary(0)
	if summary.TradesToday != 2 {
		t.Errorf("TradesToday = %d, want 2 within the last day", summary.TradesToday)
	}
	if !summary.VolumeTodayUSD.Equal(d("150")) {
		t.Errorf("VolumeTodayUSD = %s, want 150", summary.VolumeTodayUSD)
	}
	if len(summary.RecentTrades) != 3 || !summary.RecentTrades[0].FillUSD.Equal(d("300")) || summary.RecentTrades[2].Asset != "ETH" {
		t.Errorf("RecentTrades = %+v, want oldest first", summary.RecentTrades)
	}

	ctx := context.Background()
	if rec := g.Buy(ctx, "ETH", d("10")); rec.Executed || !strings.Contains(rec.Error, "cooldown") {
		t.Errorf("ETH buy = %+v, want cooldown from restored history", rec)
	}
	if rec := g.Buy(ctx, "BTC", d("10")); !rec.Executed {
		t.Errorf("BTC buy rejected: %s", rec.Error)
	}
	if got := g.TradeSummary(0).TradesToday; got != 3 {
		t.Errorf("TradesToday = %d, want 3", got)
	}
}
