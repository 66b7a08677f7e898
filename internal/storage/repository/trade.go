package repository

import (
	"context"
	"database/sql"

	"github.com/kirillm/tradeguard/internal/domain"
)

// TradeRepository журнал сделок шлюза
type TradeRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewTradeRepository создает новый репозиторий для торговых операций
func NewTradeRepository(db *sql.DB, dialect Dialect) *TradeRepository {
	return &TradeRepository{db: db, dialect: dialect}
}

// SaveTrade сохраняет TradeRecord (и исполненные, и отклоненные)
func (r *TradeRepository) SaveTrade(ctx context.Context, trade *domain.TradeRecord) error {
	query := `
		INSERT INTO trade_record (product_id, asset, side, requested_usd, requested_asset, executed,
		                          fill_price, fill_amount, fill_usd, fee, order_id, mode, reason, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	return r.db.QueryRowContext(
		ctx,
		r.dialect.Rebind(query),
		trade.ProductID,
		trade.Asset,
		trade.Side,
		trade.RequestedUSD,
		trade.RequestedAsset,
		trade.Executed,
		trade.FillPrice,
		trade.FillAmount,
		trade.FillUSD,
		trade.Fee,
		trade.OrderID,
		trade.Mode,
		trade.Reason,
		trade.Error,
		trade.CreatedAt,
	).Scan(&trade.ID)
}

// GetRecentTrades получает последние N сделок, новые первыми
func (r *TradeRepository) GetRecentTrades(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	query := `
		SELECT id, product_id, asset, side, requested_usd, requested_asset, executed,
		       fill_price, fill_amount, fill_usd, fee, order_id, mode, reason, error, created_at
		FROM trade_record
		ORDER BY id DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		err := rows.Scan(
			&t.ID,
			&t.ProductID,
			&t.Asset,
			&t.Side,
			&t.RequestedUSD,
			&t.RequestedAsset,
			&t.Executed,
			&t.FillPrice,
			&t.FillAmount,
			&t.FillUSD,
			&t.Fee,
			&t.OrderID,
			&t.Mode,
			&t.Reason,
			&t.Error,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}

	return trades, rows.Err()
}
