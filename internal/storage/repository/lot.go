package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillm/tradeguard/internal/domain"
)

// LotRepository реализует хранение лотов и продаж
type LotRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewLotRepository создает новый репозиторий для налоговых лотов
func NewLotRepository(db *sql.DB, dialect Dialect) *LotRepository {
	return &LotRepository{db: db, dialect: dialect}
}

// SaveLot сохраняет новый лот и заполняет его ID
func (r *LotRepository) SaveLot(ctx context.Context, lot *domain.TaxLot) error {
	query := `
		INSERT INTO lot (asset, quantity, remaining_quantity, cost_per_unit, total_cost, purchase_date, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return r.db.QueryRowContext(
		ctx,
		r.dialect.Rebind(query),
		lot.Asset,
		lot.Quantity,
		lot.RemainingQuantity,
		lot.CostPerUnit,
		lot.TotalCost,
		lot.PurchaseDate,
		lot.Source,
	).Scan(&lot.ID)
}

// GetLots получает все лоты в порядке добавления
func (r *LotRepository) GetLots(ctx context.Context) ([]domain.TaxLot, error) {
	query := `
		SELECT id, asset, quantity, remaining_quantity, cost_per_unit, total_cost, purchase_date, source
		FROM lot
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []domain.TaxLot
	for rows.Next() {
		var lot domain.TaxLot
		err := rows.Scan(
			&lot.ID,
			&lot.Asset,
			&lot.Quantity,
			&lot.RemainingQuantity,
			&lot.CostPerUnit,
			&lot.TotalCost,
			&lot.PurchaseDate,
			&lot.Source,
		)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}

	return lots, rows.Err()
}

// ApplySale в одной транзакции сохраняет продажу, списания и остатки лотов
func (r *LotRepository) ApplySale(ctx context.Context, disposal *domain.DisposalRecord, lots []domain.TaxLot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, lot := range lots {
		res, err := tx.ExecContext(ctx,
			r.dialect.Rebind(`UPDATE lot SET remaining_quantity = $1 WHERE id = $2`),
			lot.RemainingQuantity, lot.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update lot %d: %w", lot.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("lot %d: %w", lot.ID, domain.ErrNotFound)
		}
	}

	query := `
		INSERT INTO disposal (asset, quantity, sale_price_per_unit, proceeds, cost_basis, gain_loss,
		                      short_term_gain, long_term_gain, is_long_term, sale_date, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err = tx.QueryRowContext(
		ctx,
		r.dialect.Rebind(query),
		disposal.Asset,
		disposal.Quantity,
		disposal.SalePricePerUnit,
		disposal.TotalProceeds,
		disposal.TotalCostBasis,
		disposal.GainLoss,
		disposal.ShortTermGain,
		disposal.LongTermGain,
		disposal.IsLongTerm,
		disposal.SaleDate,
		disposal.Source,
	).Scan(&disposal.ID)
	if err != nil {
		return fmt.Errorf("failed to insert disposal: %w", err)
	}

	for _, c := range disposal.LotsConsumed {
		_, err := tx.ExecContext(ctx, r.dialect.Rebind(`
			INSERT INTO disposal_lot (disposal_id, lot_id, quantity, cost_per_unit, cost_basis, proceeds, purchase_date, is_long_term)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`), disposal.ID, c.LotID, c.Quantity, c.CostPerUnit, c.CostBasis, c.Proceeds, c.PurchaseDate, c.IsLongTerm)
		if err != nil {
			return fmt.Errorf("failed to insert disposal lot: %w", err)
		}
	}

	return tx.Commit()
}

// GetDisposals получает все продажи вместе со списаниями
func (r *LotRepository) GetDisposals(ctx context.Context) ([]domain.DisposalRecord, error) {
	query := `
		SELECT id, asset, quantity, sale_price_per_unit, proceeds, cost_basis, gain_loss,
		       short_term_gain, long_term_gain, is_long_term, sale_date, source
		FROM disposal
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disposals []domain.DisposalRecord
	index := make(map[int64]int)
	for rows.Next() {
		var d domain.DisposalRecord
		err := rows.Scan(
			&d.ID,
			&d.Asset,
			&d.Quantity,
			&d.SalePricePerUnit,
			&d.TotalProceeds,
			&d.TotalCostBasis,
			&d.GainLoss,
			&d.ShortTermGain,
			&d.LongTermGain,
			&d.IsLongTerm,
			&d.SaleDate,
			&d.Source,
		)
		if err != nil {
			return nil, err
		}
		index[d.ID] = len(disposals)
		disposals = append(disposals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	consumptions, err := r.db.QueryContext(ctx, `
		SELECT disposal_id, lot_id, quantity, cost_per_unit, cost_basis, proceeds, purchase_date, is_long_term
		FROM disposal_lot
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer consumptions.Close()

	for consumptions.Next() {
		var disposalID int64
		var c domain.LotConsumption
		err := consumptions.Scan(
			&disposalID,
			&c.LotID,
			&c.Quantity,
			&c.CostPerUnit,
			&c.CostBasis,
			&c.Proceeds,
			&c.PurchaseDate,
			&c.IsLongTerm,
		)
		if err != nil {
			return nil, err
		}
		if i, ok := index[disposalID]; ok {
			disposals[i].LotsConsumed = append(disposals[i].LotsConsumed, c)
		}
	}

	return disposals, consumptions.Err()
}
