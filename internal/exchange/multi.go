package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
	"github.com/shopspring/decimal"
)

// MultiExchangeAdapter маршрутизирует символы по аккаунтам бирж
type MultiExchangeAdapter struct {
	adapters      map[string]*LiveExchangeAdapter
	names         []string
	routes        map[string]string
	defaultRoute  string
	quoteCurrency string
	logger        *utils.Logger
}

// NewMultiExchangeAdapter routes: символ -> имя адаптера; defaultRoute для остальных символов
func NewMultiExchangeAdapter(adapters []*LiveExchangeAdapter, routes map[string]string, defaultRoute string, logger *utils.Logger) *MultiExchangeAdapter {
	m := &MultiExchangeAdapter{
		adapters:      make(map[string]*LiveExchangeAdapter, len(adapters)),
		routes:        make(map[string]string, len(routes)),
		defaultRoute:  defaultRoute,
		quoteCurrency: bybitDefaultQuoteCoin,
		logger:        logger,
	}
	for _, a := range adapters {
		m.adapters[a.Name()] = a
		m.names = append(m.names, a.Name())
	}
	sort.Strings(m.names)
	for symbol, name := range routes {
		m.routes[strings.ToUpper(symbol)] = name
	}
	return m
}

// SetQuoteCurrency валюта, баланс которой суммируется по всем биржам
func (m *MultiExchangeAdapter) SetQuoteCurrency(currency string) {
	m.quoteCurrency = strings.ToUpper(currency)
}

// Adapters все адаптеры в порядке имен
func (m *MultiExchangeAdapter) Adapters() []*LiveExchangeAdapter {
	out := make([]*LiveExchangeAdapter, 0, len(m.names))
	for _, name := range m.names {
		out = append(out, m.adapters[name])
	}
	return out
}

// Route адаптер для символа: явный маршрут, затем маршрут по умолчанию
func (m *MultiExchangeAdapter) Route(symbol string) (*LiveExchangeAdapter, error) {
	symbol = strings.ToUpper(symbol)
	if name, ok := m.routes[symbol]; ok {
		if a, ok := m.adapters[name]; ok {
			return a, nil
		}
		return nil, fmt.Errorf("%w: route %s -> %s has no adapter", domain.ErrRouting, symbol, name)
	}
	if a, ok := m.adapters[m.defaultRoute]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: no route for %s", domain.ErrRouting, symbol)
}

// GetBalance котируемая валюта суммируется по всем биржам, остальные берутся с маршрута
func (m *MultiExchangeAdapter) GetBalance(ctx context.Context, currency string) domain.Balance {
	currency = strings.ToUpper(currency)

	if currency == m.quoteCurrency {
		total := domain.Balance{Currency: currency}
		for _, name := range m.names {
			b := m.adapters[name].GetBalance(ctx, currency)
			total.Total = total.Total.Add(b.Total)
			total.Available = total.Available.Add(b.Available)
			total.Staked = total.Staked.Add(b.Staked)
		}
		return total
	}

	a, err := m.Route(currency)
	if err != nil {
		m.logger.Warn("Balance for %s unavailable: %v", currency, err)
		return domain.Balance{Currency: currency}
	}
	return a.GetBalance(ctx, currency)
}

// GetPrice цена с маршрута; если она не положительна, первая положительная с другой биржи
func (m *MultiExchangeAdapter) GetPrice(ctx context.Context, asset string) decimal.Decimal {
	asset = strings.ToUpper(asset)

	routed, err := m.Route(asset)
	if err == nil {
		if price := routed.GetPrice(ctx, asset); price.IsPositive() {
			return price
		}
	}

	for _, name := range m.names {
		a := m.adapters[name]
		if a == routed {
			continue
		}
		if price := a.GetPrice(ctx, asset); price.IsPositive() {
			m.logger.Debug("Price for %s taken from %s", asset, name)
			return price
		}
	}

	return decimal.Zero
}

// PlaceOrder строго по маршруту, без повторов на других биржах
func (m *MultiExchangeAdapter) PlaceOrder(ctx context.Context, order *domain.Order) *domain.Order {
	a, err := m.Route(order.Symbol)
	if err != nil {
		if order.ID == "" {
			order.ID = uuid.NewString()
		}
		order.Status = domain.StatusRejected
		order.Error = err.Error()
		order.UpdatedAt = time.Now()
		m.logger.Error("Order %s rejected: %v", order.ID, err)
		return order
	}
	return a.PlaceOrder(ctx, order)
}

// MarketBuy покупка через адаптер маршрута
func (m *MultiExchangeAdapter) MarketBuy(ctx context.Context, asset string, quote decimal.Decimal) (*domain.OrderResult, error) {
	a, err := m.Route(asset)
	if err != nil {
		return nil, err
	}
	return a.MarketBuy(ctx, asset, quote)
}

// MarketSell продажа через адаптер маршрута
func (m *MultiExchangeAdapter) MarketSell(ctx context.Context, asset string, amount decimal.Decimal) (*domain.OrderResult, error) {
	a, err := m.Route(asset)
	if err != nil {
		return nil, err
	}
	return a.MarketSell(ctx, asset, amount)
}
