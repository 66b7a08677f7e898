package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillm/tradeguard/internal/config"
	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/internal/storage/repository"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLStorage является фасадом для работы с БД (PostgreSQL или SQLite) через репозитории
type SQLStorage struct {
	db      *sql.DB
	dialect repository.Dialect
	lots    *repository.LotRepository
	trades  *repository.TradeRepository
}

// NewPostgresStorage подключается к PostgreSQL и запускает миграции
func NewPostgresStorage(cfg config.DatabaseConfig) (*SQLStorage, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Настройка connection pool из конфигурации
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return newSQLStorage(db, repository.Postgres)
}

// NewSQLiteStorage открывает файл SQLite; ":memory:" дает временную БД
func NewSQLiteStorage(path string) (*SQLStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", path, err)
	}

	// SQLite не поддерживает параллельную запись, а :memory: живет в одном соединении
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return newSQLStorage(db, repository.SQLite)
}

func newSQLStorage(db *sql.DB, dialect repository.Dialect) (*SQLStorage, error) {
	storage := &SQLStorage{
		db:      db,
		dialect: dialect,
		lots:    repository.NewLotRepository(db, dialect),
		trades:  repository.NewTradeRepository(db, dialect),
	}

	// Запускаем миграции
	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

func (s *SQLStorage) migrate() error {
	migrations := []string{
		// Налоговые лоты никогда не удаляются
		`CREATE TABLE IF NOT EXISTS lot (
			id {{serial}},
			asset VARCHAR(20) NOT NULL,
			quantity {{decimal}} NOT NULL,
			remaining_quantity {{decimal}} NOT NULL,
			cost_per_unit {{decimal}} NOT NULL,
			total_cost {{decimal}} NOT NULL,
			purchase_date TIMESTAMP NOT NULL,
			source VARCHAR(100) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS disposal (
			id {{serial}},
			asset VARCHAR(20) NOT NULL,
			quantity {{decimal}} NOT NULL,
			sale_price_per_unit {{decimal}} NOT NULL,
			proceeds {{decimal}} NOT NULL,
			cost_basis {{decimal}} NOT NULL,
			gain_loss {{decimal}} NOT NULL,
			short_term_gain {{decimal}} NOT NULL,
			long_term_gain {{decimal}} NOT NULL,
			is_long_term BOOLEAN NOT NULL,
			sale_date TIMESTAMP NOT NULL,
			source VARCHAR(100) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS disposal_lot (
			id {{serial}},
			disposal_id BIGINT NOT NULL REFERENCES disposal(id),
			lot_id BIGINT NOT NULL REFERENCES lot(id),
			quantity {{decimal}} NOT NULL,
			cost_per_unit {{decimal}} NOT NULL,
			cost_basis {{decimal}} NOT NULL,
			proceeds {{decimal}} NOT NULL,
			purchase_date TIMESTAMP NOT NULL,
			is_long_term BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trade_record (
			id {{serial}},
			product_id VARCHAR(30) NOT NULL,
			asset VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			requested_usd {{decimal}} NOT NULL,
			requested_asset {{decimal}} NOT NULL,
			executed BOOLEAN NOT NULL,
			fill_price {{decimal}} NOT NULL,
			fill_amount {{decimal}} NOT NULL,
			fill_usd {{decimal}} NOT NULL,
			fee {{decimal}} NOT NULL,
			order_id VARCHAR(100) NOT NULL DEFAULT '',
			mode VARCHAR(10) NOT NULL,
			reason VARCHAR(30) NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		// Индексы
		`CREATE INDEX IF NOT EXISTS idx_lot_asset ON lot(asset)`,
		`CREATE INDEX IF NOT EXISTS idx_disposal_asset ON disposal(asset)`,
		`CREATE INDEX IF NOT EXISTS idx_disposal_sale_date ON disposal(sale_date)`,
		`CREATE INDEX IF NOT EXISTS idx_disposal_lot_disposal ON disposal_lot(disposal_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_record_created_at ON trade_record(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(s.dialect.Expand(migration)); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// ==================== LOTS ====================

func (s *SQLStorage) SaveLot(ctx context.Context, lot *domain.TaxLot) error {
	return s.lots.SaveLot(ctx, lot)
}

func (s *SQLStorage) GetLots(ctx context.Context) ([]domain.TaxLot, error) {
	return s.lots.GetLots(ctx)
}

func (s *SQLStorage) ApplySale(ctx context.Context, disposal *domain.DisposalRecord, lots []domain.TaxLot) error {
	return s.lots.ApplySale(ctx, disposal, lots)
}

func (s *SQLStorage) GetDisposals(ctx context.Context) ([]domain.DisposalRecord, error) {
	return s.lots.GetDisposals(ctx)
}

// ==================== TRADES ====================

func (s *SQLStorage) SaveTrade(ctx context.Context, trade *domain.TradeRecord) error {
	return s.trades.SaveTrade(ctx, trade)
}

func (s *SQLStorage) GetRecentTrades(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.trades.GetRecentTrades(ctx, limit)
}

// Close закрывает соединение с базой данных
func (s *SQLStorage) Close() error {
	return s.db.Close()
}
