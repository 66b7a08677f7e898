package storage

import (
	"context"
	"sync"

	"github.com/kirillm/tradeguard/internal/domain"
)

// MemoryStorage временное хранилище без персистентности
type MemoryStorage struct {
	mu        sync.RWMutex
	lots      []domain.TaxLot
	disposals []domain.DisposalRecord
	trades    []domain.TradeRecord
	nextID    int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStorage) SaveLot(_ context.Context, lot *domain.TaxLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot.ID = m.id()
	m.lots = append(m.lots, *lot)
	return nil
}

func (m *MemoryStorage) GetLots(_ context.Context) ([]domain.TaxLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.TaxLot, len(m.lots))
	copy(out, m.lots)
	return out, nil
}

func (m *MemoryStorage) ApplySale(_ context.Context, disposal *domain.DisposalRecord, lots []domain.TaxLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// сначала проверяем все лоты, чтобы не применить продажу частично
	positions := make([]int, len(lots))
	for i, lot := range lots {
		pos := -1
		for j := range m.lots {
			if m.lots[j].ID == lot.ID {
				pos = j
				break
			}
		}
		if pos < 0 {
			return domain.ErrNotFound
		}
		positions[i] = pos
	}

	for i, lot := range lots {
		m.lots[positions[i]].RemainingQuantity = lot.RemainingQuantity
	}

	disposal.ID = m.id()
	stored := *disposal
	stored.LotsConsumed = append([]domain.LotConsumption(nil), disposal.LotsConsumed...)
	m.disposals = append(m.disposals, stored)
	return nil
}

func (m *MemoryStorage) GetDisposals(_ context.Context) ([]domain.DisposalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DisposalRecord, len(m.disposals))
	copy(out, m.disposals)
	return out, nil
}

func (m *MemoryStorage) SaveTrade(_ context.Context, trade *domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade.ID = m.id()
	m.trades = append(m.trades, *trade)
	return nil
}

// GetRecentTrades новые первыми
func (m *MemoryStorage) GetRecentTrades(_ context.Context, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.TradeRecord, 0, limit)
	for i := len(m.trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.trades[i])
	}
	return out, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
