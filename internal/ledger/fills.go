package ledger

import (
	"context"
	"fmt"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/shopspring/decimal"
)

// FillRecorder переносит исполненные сделки шлюза в налоговый учет.
// Комиссия покупки входит в стоимость лота, комиссия продажи уменьшает выручку.
type FillRecorder struct {
	ledger *Ledger
	source string
}

// NewFillRecorder создает recorder с меткой источника лотов
func NewFillRecorder(l *Ledger, source string) *FillRecorder {
	return &FillRecorder{ledger: l, source: source}
}

// RecordFill вызывается шлюзом только для исполненных сделок
func (r *FillRecorder) RecordFill(ctx context.Context, trade domain.TradeRecord) error {
	if !trade.Executed {
		return nil
	}
	if !trade.FillAmount.IsPositive() {
		return fmt.Errorf("%w: fill amount must be positive for %s", domain.ErrValidation, trade.ProductID)
	}

	source := r.source
	if trade.OrderID != "" {
		source = fmt.Sprintf("%s:%s", r.source, trade.OrderID)
	}

	switch trade.Side {
	case domain.SideBuy:
		costPerUnit := trade.FillUSD.Add(trade.Fee).Div(trade.FillAmount)
		_, err := r.ledger.AddPurchase(ctx, trade.Asset, trade.FillAmount, costPerUnit, trade.CreatedAt, source)
		return err
	case domain.SideSell:
		netPerUnit := decimal.Max(trade.FillUSD.Sub(trade.Fee), decimal.Zero).Div(trade.FillAmount)
		_, err := r.ledger.RecordSale(ctx, trade.Asset, trade.FillAmount, netPerUnit, trade.CreatedAt, source)
		return err
	default:
		return fmt.Errorf("%w: unknown side %q", domain.ErrValidation, trade.Side)
	}
}
