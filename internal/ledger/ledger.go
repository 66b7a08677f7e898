package ledger

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
)

// UnrealizedGain нереализованный результат по активу
type UnrealizedGain struct {
	CostBasis      decimal.Decimal
	CurrentValue   decimal.Decimal
	UnrealizedGain decimal.Decimal
}

// RealizedSummary налоговая сводка по продажам
type RealizedSummary struct {
	Year      int
	Proceeds  decimal.Decimal
	CostBasis decimal.Decimal
	ShortTerm decimal.Decimal
	LongTerm  decimal.Decimal
	Total     decimal.Decimal
	Disposals int
}

// Ledger учет налоговых лотов. Все изменения сначала сохраняются в store,
// и только потом попадают в память, поэтому ошибка не оставляет частичных изменений.
type Ledger struct {
	mu        sync.Mutex
	store     domain.LotRepository
	method    AccountingMethod
	lots      []domain.TaxLot
	disposals []domain.DisposalRecord
	logger    *utils.Logger
}

// New загружает лоты и продажи из store
func New(ctx context.Context, store domain.LotRepository, method AccountingMethod, logger *utils.Logger) (*Ledger, error) {
	lots, err := store.GetLots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load lots: %w", err)
	}
	disposals, err := store.GetDisposals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load disposals: %w", err)
	}

	logger.Info("Ledger loaded: %d lots, %d disposals, method %s", len(lots), len(disposals), method)

	return &Ledger{
		store:     store,
		method:    method,
		lots:      lots,
		disposals: disposals,
		logger:    logger,
	}, nil
}

// NormalizeAsset приводит символ к верхнему регистру
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// AddPurchase добавляет новый лот
func (l *Ledger) AddPurchase(ctx context.Context, asset string, quantity, costPerUnit decimal.Decimal, date time.Time, source string) (*domain.TaxLot, error) {
	asset = NormalizeAsset(asset)
	if asset == "" {
		return nil, fmt.Errorf("%w: asset is required", domain.ErrValidation)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive, got %s", domain.ErrValidation, quantity)
	}
	if costPerUnit.IsNegative() {
		return nil, fmt.Errorf("%w: cost per unit must not be negative, got %s", domain.ErrValidation, costPerUnit)
	}

	lot := domain.TaxLot{
		Asset:             asset,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		CostPerUnit:       costPerUnit,
		TotalCost:         quantity.Mul(costPerUnit),
		PurchaseDate:      date,
		Source:            source,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.SaveLot(ctx, &lot); err != nil {
		return nil, fmt.Errorf("failed to save lot: %w", err)
	}
	l.lots = append(l.lots, lot)

	l.logger.Debug("Lot added: %s %s @ %s (%s)", lot.Quantity, asset, costPerUnit, source)
	return &lot, nil
}

// RecordSale списывает лоты текущим методом и создает DisposalRecord
func (l *Ledger) RecordSale(ctx context.Context, asset string, quantity, salePricePerUnit decimal.Decimal, date time.Time, source string) (*domain.DisposalRecord, error) {
	asset = NormalizeAsset(asset)
	if asset == "" {
		return nil, fmt.Errorf("%w: asset is required", domain.ErrValidation)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive, got %s", domain.ErrValidation, quantity)
	}
	if salePricePerUnit.IsNegative() {
		return nil, fmt.Errorf("%w: sale price must not be negative, got %s", domain.ErrValidation, salePricePerUnit)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// открытые лоты актива и их суммарный остаток
	var lotCount int
	available := decimal.Zero
	eligible := make([]domain.TaxLot, 0)
	for _, lot := range l.lots {
		if lot.Asset != asset {
			continue
		}
		lotCount++
		if lot.IsOpen() {
			eligible = append(eligible, lot)
			available = available.Add(lot.RemainingQuantity)
		}
	}

	if lotCount == 0 {
		return nil, fmt.Errorf("%w for %s", domain.ErrNoLots, asset)
	}
	if available.LessThan(quantity) {
		return nil, fmt.Errorf("%w for %s: requested %s, available %s", domain.ErrInsufficientLots, asset, quantity, available)
	}

	l.method.order(eligible)

	disposal := domain.DisposalRecord{
		Asset:            asset,
		Quantity:         quantity,
		SalePricePerUnit: salePricePerUnit,
		TotalProceeds:    quantity.Mul(salePricePerUnit),
		SaleDate:         date,
		Source:           source,
		IsLongTerm:       true,
	}

	toSell := quantity
	costBasis := decimal.Zero
	touched := make([]domain.TaxLot, 0)
	for _, lot := range eligible {
		if !toSell.IsPositive() {
			break
		}

		consumed := decimal.Min(lot.RemainingQuantity, toSell)
		lotCost := consumed.Mul(lot.CostPerUnit)
		longTerm := IsLongTerm(lot.PurchaseDate, date)

		consumption := domain.LotConsumption{
			LotID:        lot.ID,
			Quantity:     consumed,
			CostPerUnit:  lot.CostPerUnit,
			CostBasis:    lotCost,
			Proceeds:     consumed.Mul(salePricePerUnit),
			PurchaseDate: lot.PurchaseDate,
			IsLongTerm:   longTerm,
		}
		disposal.LotsConsumed = append(disposal.LotsConsumed, consumption)

		if longTerm {
			disposal.LongTermGain = disposal.LongTermGain.Add(consumption.GainLoss())
		} else {
			disposal.ShortTermGain = disposal.ShortTermGain.Add(consumption.GainLoss())
			disposal.IsLongTerm = false
		}

		costBasis = costBasis.Add(lotCost)
		toSell = toSell.Sub(consumed)

		lot.RemainingQuantity = lot.RemainingQuantity.Sub(consumed)
		touched = append(touched, lot)
	}

	disposal.TotalCostBasis = costBasis
	disposal.GainLoss = disposal.TotalProceeds.Sub(costBasis)

	if err := l.store.ApplySale(ctx, &disposal, touched); err != nil {
		return nil, fmt.Errorf("failed to persist sale: %w", err)
	}

	// store принял изменения, применяем их в памяти
	updated := make(map[int64]decimal.Decimal, len(touched))
	for _, lot := range touched {
		updated[lot.ID] = lot.RemainingQuantity
	}
	for i := range l.lots {
		if rem, ok := updated[l.lots[i].ID]; ok {
			l.lots[i].RemainingQuantity = rem
		}
	}
	l.disposals = append(l.disposals, disposal)

	l.logger.Info("Sale recorded: %s %s @ %s, cost basis %s, gain %s (%s)",
		quantity, asset, salePricePerUnit, costBasis.StringFixed(2), disposal.GainLoss.StringFixed(2), l.method)

	return &disposal, nil
}

// IsLongTerm true если с покупки прошел год или больше
func IsLongTerm(purchase, sale time.Time) bool {
	return !sale.Before(purchase.AddDate(1, 0, 0))
}

// SetAccountingMethod влияет только на будущие продажи
func (l *Ledger) SetAccountingMethod(method AccountingMethod) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Info("Accounting method changed: %s -> %s", l.method, method)
	l.method = method
}

// AccountingMethod возвращает текущий метод
func (l *Ledger) AccountingMethod() AccountingMethod {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.method
}

// CurrentHoldings сумма остатков по активам, полностью проданные активы пропускаются
func (l *Ledger) CurrentHoldings() map[string]decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	holdings := make(map[string]decimal.Decimal)
	for _, lot := range l.lots {
		if !lot.IsOpen() {
			continue
		}
		holdings[lot.Asset] = holdings[lot.Asset].Add(lot.RemainingQuantity)
	}
	return holdings
}

// UnrealizedGains оценивает открытые лоты по ценам, отсутствующая цена считается нулем
func (l *Ledger) UnrealizedGains(prices map[string]decimal.Decimal) map[string]UnrealizedGain {
	l.mu.Lock()
	defer l.mu.Unlock()

	normalized := make(map[string]decimal.Decimal, len(prices))
	for asset, price := range prices {
		normalized[NormalizeAsset(asset)] = price
	}

	gains := make(map[string]UnrealizedGain)
	for _, lot := range l.lots {
		if !lot.IsOpen() {
			continue
		}
		g := gains[lot.Asset]
		g.CostBasis = g.CostBasis.Add(lot.RemainingQuantity.Mul(lot.CostPerUnit))
		g.CurrentValue = g.CurrentValue.Add(lot.RemainingQuantity.Mul(normalized[lot.Asset]))
		gains[lot.Asset] = g
	}

	for asset, g := range gains {
		g.UnrealizedGain = g.CurrentValue.Sub(g.CostBasis)
		gains[asset] = g
	}
	return gains
}

// Lots возвращает копию всех лотов актива, включая закрытые
func (l *Ledger) Lots(asset string) []domain.TaxLot {
	asset = NormalizeAsset(asset)

	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]domain.TaxLot, 0)
	for _, lot := range l.lots {
		if lot.Asset == asset {
			result = append(result, lot)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].PurchaseDate.Before(result[j].PurchaseDate)
	})
	return result
}

// Disposals возвращает копию журнала продаж
func (l *Ledger) Disposals() []domain.DisposalRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]domain.DisposalRecord, len(l.disposals))
	copy(result, l.disposals)
	return result
}

// RealizedGains сводка за налоговый год, year = 0 означает все годы
func (l *Ledger) RealizedGains(year int) RealizedSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	summary := RealizedSummary{Year: year}
	for _, d := range l.disposals {
		if year != 0 && d.SaleDate.Year() != year {
			continue
		}
		summary.Disposals++
		summary.Proceeds = summary.Proceeds.Add(d.TotalProceeds)
		summary.CostBasis = summary.CostBasis.Add(d.TotalCostBasis)
		summary.ShortTerm = summary.ShortTerm.Add(d.ShortTermGain)
		summary.LongTerm = summary.LongTerm.Add(d.LongTermGain)
		summary.Total = summary.Total.Add(d.GainLoss)
	}
	return summary
}
