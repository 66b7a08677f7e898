package exchange

import (
	"context"
	"errors"
	"sync"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/shopspring/decimal"
)

var errDown = errors.New("exchange down")

type fakeClient struct {
	mu           sync.Mutex
	balances     map[string]domain.Balance
	prices       map[string]decimal.Decimal
	balanceErr   error
	priceErr     error
	orderErr     error
	orderResult  *domain.OrderResult
	balanceCalls int
	priceCalls   int
	orders       []MarketOrderRequest
	gate         chan struct{} // если задан, GetBalances ждет закрытия
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		balances: map[string]domain.Balance{},
		prices:   map[string]decimal.Decimal{},
	}
}

func (f *fakeClient) GetBalances(ctx context.Context) (map[string]domain.Balance, error) {
	f.mu.Lock()
	f.balanceCalls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	out := make(map[string]domain.Balance, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeClient) GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	if f.priceErr != nil {
		return decimal.Zero, f.priceErr
	}
	return f.prices[symbol], nil
}

func (f *fakeClient) PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (*domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	if f.orderResult != nil {
		r := *f.orderResult
		return &r, nil
	}
	return &domain.OrderResult{Success: true, OrderID: "ex-1"}, nil
}

func (f *fakeClient) set(fn func(f *fakeClient)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeClient) calls() (balances, prices, orders int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balanceCalls, f.priceCalls, len(f.orders)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
