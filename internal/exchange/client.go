package exchange

import (
	"context"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/shopspring/decimal"
)

// Client контракт биржевого клиента. Символы передаются как базовый актив ("BTC"),
// пару с котируемой валютой собирает сам клиент.
type Client interface {
	GetBalances(ctx context.Context) (map[string]domain.Balance, error)
	GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (*domain.OrderResult, error)
}

// MarketOrderRequest market ордер: Amount в базовом активе или QuoteAmount в котируемой валюте
type MarketOrderRequest struct {
	Asset       string
	Side        string
	Amount      decimal.Decimal
	QuoteAmount decimal.Decimal
}
