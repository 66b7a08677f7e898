package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL время жизни кэша балансов и цен
const DefaultCacheTTL = 30 * time.Second

const balancesKey = "balances"

// LiveExchangeAdapter оборачивает Client кэшем с TTL. Чтение никогда не возвращает ошибку:
// при сбое используется последнее известное значение или ноль.
type LiveExchangeAdapter struct {
	name   string
	client Client
	cache  *cache.Cache
	group  singleflight.Group
	logger *utils.Logger

	mu           sync.RWMutex
	lastBalances map[string]domain.Balance
	lastPrices   map[string]decimal.Decimal
	now          func() time.Time
}

// NewLiveExchangeAdapter создает адаптер аккаунта name
func NewLiveExchangeAdapter(name string, client Client, ttl time.Duration, logger *utils.Logger) *LiveExchangeAdapter {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &LiveExchangeAdapter{
		name:         name,
		client:       client,
		cache:        cache.New(ttl, 2*ttl),
		logger:       logger.With("exchange", name),
		lastBalances: make(map[string]domain.Balance),
		lastPrices:   make(map[string]decimal.Decimal),
		now:          time.Now,
	}
}

// Name имя аккаунта биржи
func (a *LiveExchangeAdapter) Name() string {
	return a.name
}

// FetchBalances возвращает балансы из кэша или биржи и не скрывает ошибку
func (a *LiveExchangeAdapter) FetchBalances(ctx context.Context) (map[string]domain.Balance, error) {
	if cached, ok := a.cache.Get(balancesKey); ok {
		return copyBalances(cached.(map[string]domain.Balance)), nil
	}

	v, err, _ := a.group.Do(balancesKey, func() (interface{}, error) {
		balances, err := a.client.GetBalances(ctx)
		if err != nil {
			return nil, err
		}
		normalized := make(map[string]domain.Balance, len(balances))
		for currency, b := range balances {
			currency = strings.ToUpper(currency)
			b.Currency = currency
			normalized[currency] = b
		}
		a.cache.SetDefault(balancesKey, normalized)

		a.mu.Lock()
		a.lastBalances = normalized
		a.mu.Unlock()
		return normalized, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get balances: %w", a.name, err)
	}

	return copyBalances(v.(map[string]domain.Balance)), nil
}

// GetBalances как FetchBalances, но при ошибке отдает последние известные балансы
func (a *LiveExchangeAdapter) GetBalances(ctx context.Context) map[string]domain.Balance {
	balances, err := a.FetchBalances(ctx)
	if err == nil {
		return balances
	}

	a.logger.Warn("Using last known balances: %v", err)
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyBalances(a.lastBalances)
}

// GetBalance баланс одной валюты, отсутствующая валюта дает нулевой баланс
func (a *LiveExchangeAdapter) GetBalance(ctx context.Context, currency string) domain.Balance {
	currency = strings.ToUpper(currency)
	if b, ok := a.GetBalances(ctx)[currency]; ok {
		return b
	}
	return domain.Balance{Currency: currency}
}

// GetPrice цена актива; при ошибке последняя известная цена или ноль
func (a *LiveExchangeAdapter) GetPrice(ctx context.Context, asset string) decimal.Decimal {
	asset = strings.ToUpper(asset)
	key := "price:" + asset

	if cached, ok := a.cache.Get(key); ok {
		return cached.(decimal.Decimal)
	}

	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		price, err := a.client.GetTickerPrice(ctx, asset)
		if err != nil {
			return nil, err
		}
		a.cache.SetDefault(key, price)

		a.mu.Lock()
		a.lastPrices[asset] = price
		a.mu.Unlock()
		return price, nil
	})
	if err != nil {
		a.mu.RLock()
		last := a.lastPrices[asset]
		a.mu.RUnlock()
		a.logger.Warn("Failed to get %s price, using last known %s: %v", asset, last, err)
		return last
	}

	return v.(decimal.Decimal)
}

// MarketBuy покупка на сумму quote в котируемой валюте
func (a *LiveExchangeAdapter) MarketBuy(ctx context.Context, asset string, quote decimal.Decimal) (*domain.OrderResult, error) {
	return a.placeMarket(ctx, MarketOrderRequest{Asset: strings.ToUpper(asset), Side: domain.SideBuy, QuoteAmount: quote})
}

// MarketSell продажа amount базового актива
func (a *LiveExchangeAdapter) MarketSell(ctx context.Context, asset string, amount decimal.Decimal) (*domain.OrderResult, error) {
	return a.placeMarket(ctx, MarketOrderRequest{Asset: strings.ToUpper(asset), Side: domain.SideSell, Amount: amount})
}

func (a *LiveExchangeAdapter) placeMarket(ctx context.Context, req MarketOrderRequest) (*domain.OrderResult, error) {
	result, err := a.client.PlaceMarketOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}
	if !result.Success {
		return result, fmt.Errorf("%w: %s: %s", domain.ErrProvider, a.name, result.Error)
	}

	// после исполнения балансы устарели
	a.InvalidateBalances()
	return result, nil
}

// PlaceOrder исполняет обобщенный ордер как market. Ошибка не возвращается:
// ордер помечается FILLED или REJECTED.
func (a *LiveExchangeAdapter) PlaceOrder(ctx context.Context, order *domain.Order) *domain.Order {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = a.now()
	}
	order.Symbol = strings.ToUpper(order.Symbol)
	order.Exchange = a.name

	if !order.Quantity.IsPositive() {
		return a.reject(order, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation))
	}

	var (
		result *domain.OrderResult
		err    error
		price  = order.Price
	)
	switch order.Side {
	case domain.SideBuy:
		if !price.IsPositive() {
			price = a.GetPrice(ctx, order.Symbol)
		}
		quote := order.Quantity.Mul(price)
		if !quote.IsPositive() {
			return a.reject(order, fmt.Errorf("%w: no price for %s", domain.ErrProvider, order.Symbol))
		}
		result, err = a.MarketBuy(ctx, order.Symbol, quote)
	case domain.SideSell:
		result, err = a.MarketSell(ctx, order.Symbol, order.Quantity)
	default:
		return a.reject(order, fmt.Errorf("%w: unknown side %q", domain.ErrValidation, order.Side))
	}
	if err != nil {
		return a.reject(order, err)
	}

	order.Status = domain.StatusFilled
	order.ExchangeOrderID = result.OrderID
	order.FilledQuantity = result.FilledAmount
	if order.FilledQuantity.IsZero() {
		order.FilledQuantity = order.Quantity
	}
	order.FilledPrice = result.FilledPrice
	if order.FilledPrice.IsZero() {
		order.FilledPrice = price
	}
	order.Fee = result.Fee
	order.UpdatedAt = a.now()

	a.logger.Info("Order %s filled: %s %s %s @ %s", order.ID, order.Side, order.FilledQuantity, order.Symbol, order.FilledPrice)
	return order
}

func (a *LiveExchangeAdapter) reject(order *domain.Order, err error) *domain.Order {
	order.Status = domain.StatusRejected
	order.Error = err.Error()
	order.UpdatedAt = a.now()
	a.logger.Error("Order %s rejected: %v", order.ID, err)
	return order
}

// CancelOrder market ордера исполняются сразу, отменять нечего
func (a *LiveExchangeAdapter) CancelOrder(ctx context.Context, orderID string) bool {
	return false
}

// GetOrderStatus не поддерживается для market ордеров
func (a *LiveExchangeAdapter) GetOrderStatus(ctx context.Context, orderID string) (*domain.Order, error) {
	return nil, fmt.Errorf("%w: order status for %s", domain.ErrUnsupported, orderID)
}

// GetOpenOrders у market ордеров нет открытых
func (a *LiveExchangeAdapter) GetOpenOrders(ctx context.Context) []domain.Order {
	return []domain.Order{}
}

// InvalidateBalances сбрасывает кэш балансов
func (a *LiveExchangeAdapter) InvalidateBalances() {
	a.cache.Delete(balancesKey)
}

func copyBalances(in map[string]domain.Balance) map[string]domain.Balance {
	out := make(map[string]domain.Balance, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
