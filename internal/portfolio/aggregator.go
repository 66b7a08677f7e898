package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// BalanceSource один аккаунт биржи
type BalanceSource interface {
	Name() string
	FetchBalances(ctx context.Context) (map[string]domain.Balance, error)
}

// PriceProvider пакетные цены в USD; активы без цены отсутствуют в ответе
type PriceProvider interface {
	GetPrices(ctx context.Context, assets []string) map[string]decimal.Decimal
}

// Config целевое распределение и параметры ребалансировки
type Config struct {
	TargetAllocation map[string]decimal.Decimal
	DriftThreshold   decimal.Decimal
	MinTradeUSD      decimal.Decimal
	MaxTradeFraction decimal.Decimal // 0 отключает ограничение
	StakingAPY       map[string]decimal.Decimal
	CashCurrencies   []string
}

// Aggregator собирает позиции со всех бирж и считает отклонение от цели
type Aggregator struct {
	sources []BalanceSource
	prices  PriceProvider
	cfg     Config
	logger  *utils.Logger
	now     func() time.Time

	mu   sync.RWMutex
	last *domain.PortfolioSnapshot
}

type sourceResult struct {
	balances map[string]domain.Balance
	err      error
}

func NewAggregator(sources []BalanceSource, prices PriceProvider, cfg Config, logger *utils.Logger) *Aggregator {
	if len(cfg.CashCurrencies) == 0 {
		cfg.CashCurrencies = domain.DefaultStablecoins
	}
	// стейблкоины в цели складываются в CASH, как и их балансы
	target := make(map[string]decimal.Decimal, len(cfg.TargetAllocation))
	for asset, w := range cfg.TargetAllocation {
		asset = strings.ToUpper(asset)
		if domain.IsStablecoin(asset, cfg.CashCurrencies) {
			asset = domain.AssetCash
		}
		target[asset] = target[asset].Add(w)
	}
	cfg.TargetAllocation = target
	return &Aggregator{
		sources: sources,
		prices:  prices,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock для тестов
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// Sync опрашивает все биржи параллельно. Сбой одной биржи исключает только ее;
// ошибка возвращается, если не ответила ни одна.
func (a *Aggregator) Sync(ctx context.Context) (*domain.PortfolioSnapshot, error) {
	results := make([]sourceResult, len(a.sources))

	// ошибки не возвращаются в errgroup, чтобы сбой не отменял соседние запросы
	var g errgroup.Group
	for i, src := range a.sources {
		i, src := i, src
		g.Go(func() error {
			balances, err := src.FetchBalances(ctx)
			results[i] = sourceResult{balances: balances, err: err}
			return nil
		})
	}
	g.Wait()

	snapshot := &domain.PortfolioSnapshot{
		Timestamp:        a.now(),
		Positions:        make(map[string]domain.Position),
		TargetAllocation: a.cfg.TargetAllocation,
		ActualAllocation: make(map[string]decimal.Decimal),
		Drift:            make(map[string]decimal.Decimal),
	}

	for i, res := range results {
		name := a.sources[i].Name()
		if res.err != nil {
			a.logger.Warn("Sync: %s excluded: %v", name, res.err)
			snapshot.FailedSources = append(snapshot.FailedSources, name)
			continue
		}
		a.addBalances(snapshot.Positions, name, res.balances)
	}
	if len(a.sources) > 0 && len(snapshot.FailedSources) == len(a.sources) {
		return nil, fmt.Errorf("%w: all %d exchanges failed", domain.ErrProvider, len(a.sources))
	}

	assets := make([]string, 0, len(snapshot.Positions)+len(a.cfg.TargetAllocation))
	for asset := range snapshot.Positions {
		assets = append(assets, asset)
	}
	for asset := range a.cfg.TargetAllocation {
		if _, held := snapshot.Positions[asset]; !held {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)

	priceable := make([]string, 0, len(assets))
	for _, asset := range assets {
		if asset != domain.AssetCash {
			priceable = append(priceable, asset)
		}
	}
	prices := a.prices.GetPrices(ctx, priceable)
	snapshot.Prices = make(map[string]decimal.Decimal, len(prices)+1)
	for asset, price := range prices {
		snapshot.Prices[asset] = price
	}
	snapshot.Prices[domain.AssetCash] = decimal.NewFromInt(1)

	total := decimal.Zero
	for asset, pos := range snapshot.Positions {
		if asset == domain.AssetCash {
			pos.Price = decimal.NewFromInt(1)
		} else {
			pos.Price = prices[asset]
		}
		pos.USDValue = pos.Total.Mul(pos.Price)
		total = total.Add(pos.USDValue)
		snapshot.Positions[asset] = pos

		if apy, ok := a.cfg.StakingAPY[asset]; ok && pos.Staked.IsPositive() {
			snapshot.ExpectedAnnualYield = snapshot.ExpectedAnnualYield.Add(pos.Staked.Mul(pos.Price).Mul(apy))
		}
	}
	snapshot.TotalUSDValue = total

	for _, asset := range assets {
		actual := decimal.Zero
		if pos, ok := snapshot.Positions[asset]; ok && total.IsPositive() {
			actual = pos.USDValue.Div(total)
		}
		if _, held := snapshot.Positions[asset]; held {
			snapshot.ActualAllocation[asset] = actual
		}
		snapshot.Drift[asset] = actual.Sub(a.cfg.TargetAllocation[asset])
	}

	snapshot.RebalanceSuggestions = a.rebalanceTrades(snapshot)

	a.mu.Lock()
	a.last = snapshot
	a.mu.Unlock()

	a.logger.Info("Portfolio synced: $%s across %d positions (%d/%d exchanges)",
		total.StringFixed(2), len(snapshot.Positions), len(a.sources)-len(snapshot.FailedSources), len(a.sources))
	return snapshot, nil
}

// addBalances стейблкоины складываются в позицию CASH
func (a *Aggregator) addBalances(positions map[string]domain.Position, source string, balances map[string]domain.Balance) {
	for currency, b := range balances {
		if b.Total.IsZero() && b.Staked.IsZero() {
			continue
		}
		asset := strings.ToUpper(currency)
		if domain.IsStablecoin(asset, a.cfg.CashCurrencies) {
			asset = domain.AssetCash
		}

		pos, ok := positions[asset]
		if !ok {
			pos = domain.Position{Asset: asset, Sources: make(map[string]domain.SourceBalance)}
		}
		pos.Total = pos.Total.Add(b.Total)
		pos.Available = pos.Available.Add(b.Available)
		pos.Staked = pos.Staked.Add(b.Staked)

		src := pos.Sources[source]
		src.Total = src.Total.Add(b.Total)
		src.Available = src.Available.Add(b.Available)
		src.Staked = src.Staked.Add(b.Staked)
		pos.Sources[source] = src

		positions[asset] = pos
	}
}

// LastSnapshot результат последней успешной синхронизации или nil
func (a *Aggregator) LastSnapshot() *domain.PortfolioSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// NeedsRebalance true если |drift| какого-либо актива больше threshold
func (a *Aggregator) NeedsRebalance(threshold decimal.Decimal) bool {
	snapshot := a.LastSnapshot()
	if snapshot == nil {
		return false
	}
	for _, drift := range snapshot.Drift {
		if drift.Abs().GreaterThan(threshold) {
			return true
		}
	}
	return false
}

// DriftThreshold порог из конфигурации
func (a *Aggregator) DriftThreshold() decimal.Decimal {
	return a.cfg.DriftThreshold
}

// GetRebalanceTrades предложения последней синхронизации
func (a *Aggregator) GetRebalanceTrades() []domain.RebalanceTrade {
	snapshot := a.LastSnapshot()
	if snapshot == nil {
		return nil
	}
	return append([]domain.RebalanceTrade(nil), snapshot.RebalanceSuggestions...)
}

// rebalanceTrades размер сделки min(|drift в USD|, стоимость портфеля * MaxTradeFraction);
// CASH и сделки меньше MinTradeUSD пропускаются, продажи идут первыми
func (a *Aggregator) rebalanceTrades(snapshot *domain.PortfolioSnapshot) []domain.RebalanceTrade {
	total := snapshot.TotalUSDValue
	if !total.IsPositive() {
		return nil
	}

	// доля всего портфеля, а не позиции: у целевого актива без позиции стоимость ноль
	maxTrade := total.Mul(a.cfg.MaxTradeFraction)

	var sells, buys []domain.RebalanceTrade
	for asset, drift := range snapshot.Drift {
		if asset == domain.AssetCash || drift.IsZero() {
			continue
		}

		usd := drift.Mul(total).Abs()
		if a.cfg.MaxTradeFraction.IsPositive() {
			usd = decimal.Min(usd, maxTrade)
		}
		usd = usd.Round(2)
		if usd.LessThan(a.cfg.MinTradeUSD) || usd.IsZero() {
			continue
		}

		price := snapshot.Prices[asset]
		if !price.IsPositive() {
			a.logger.Warn("Rebalance: no price for %s, skipped", asset)
			continue
		}

		trade := domain.RebalanceTrade{
			Asset:       asset,
			USDAmount:   usd,
			AssetAmount: usd.Div(price),
			Drift:       drift,
		}
		if drift.IsPositive() {
			trade.Side = domain.SideSell
			sells = append(sells, trade)
		} else {
			trade.Side = domain.SideBuy
			buys = append(buys, trade)
		}
	}

	byAsset := func(trades []domain.RebalanceTrade) {
		sort.Slice(trades, func(i, j int) bool { return trades[i].Asset < trades[j].Asset })
	}
	byAsset(sells)
	byAsset(buys)
	return append(sells, buys...)
}
