package domain

import "context"

// LotRepository хранение налоговых лотов и продаж
type LotRepository interface {
	SaveLot(ctx context.Context, lot *TaxLot) error
	GetLots(ctx context.Context) ([]TaxLot, error)
	// ApplySale атомарно сохраняет продажу и новые остатки затронутых лотов
	ApplySale(ctx context.Context, disposal *DisposalRecord, lots []TaxLot) error
	GetDisposals(ctx context.Context) ([]DisposalRecord, error)
}

// TradeRepository журнал TradeRecord
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade *TradeRecord) error
	GetRecentTrades(ctx context.Context, limit int) ([]TradeRecord, error)
}
