package exchange

import (
	"context"
	"fmt"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/shopspring/decimal"
)

// Venue то, что нужно шлюзу от биржи: цена и market ордера
type Venue interface {
	GetPrice(ctx context.Context, asset string) decimal.Decimal
	MarketBuy(ctx context.Context, asset string, quote decimal.Decimal) (*domain.OrderResult, error)
	MarketSell(ctx context.Context, asset string, amount decimal.Decimal) (*domain.OrderResult, error)
}

// SpotAdapter приводит Venue к спот-клиенту шлюза с product id вида "BTC-USD"
type SpotAdapter struct {
	venue Venue
}

func NewSpotAdapter(venue Venue) *SpotAdapter {
	return &SpotAdapter{venue: venue}
}

func (s *SpotAdapter) GetSpotPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	asset := domain.BaseAsset(productID)
	price := s.venue.GetPrice(ctx, asset)
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: no price for %s", domain.ErrProvider, productID)
	}
	return price, nil
}

func (s *SpotAdapter) MarketBuy(ctx context.Context, productID string, quoteUSD decimal.Decimal) (*domain.OrderResult, error) {
	return s.venue.MarketBuy(ctx, domain.BaseAsset(productID), quoteUSD)
}

func (s *SpotAdapter) MarketSell(ctx context.Context, productID string, baseAmount decimal.Decimal) (*domain.OrderResult, error) {
	return s.venue.MarketSell(ctx, domain.BaseAsset(productID), baseAmount)
}

// LimitBuy адаптер работает только с market ордерами
func (s *SpotAdapter) LimitBuy(ctx context.Context, productID string, baseAmount, limitPrice decimal.Decimal) (*domain.OrderResult, error) {
	return nil, fmt.Errorf("%w: limit buy %s", domain.ErrUnsupported, productID)
}

// LimitSell адаптер работает только с market ордерами
func (s *SpotAdapter) LimitSell(ctx context.Context, productID string, baseAmount, limitPrice decimal.Decimal) (*domain.OrderResult, error) {
	return nil, fmt.Errorf("%w: limit sell %s", domain.ErrUnsupported, productID)
}
