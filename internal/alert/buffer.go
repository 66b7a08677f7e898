package alert

import (
	"context"
	"sync"

	"github.com/kirillm/tradeguard/internal/domain"
)

// Buffer хранит последние алерты в памяти
type Buffer struct {
	mu     sync.Mutex
	size   int
	alerts []domain.Alert
}

func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 50
	}
	return &Buffer{size: size}
}

func (b *Buffer) Send(_ context.Context, alert domain.Alert) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, alert)
	if over := len(b.alerts) - b.size; over > 0 {
		b.alerts = append([]domain.Alert(nil), b.alerts[over:]...)
	}
	return nil
}

// Recent последние n алертов, новые в конце
func (b *Buffer) Recent(n int) []domain.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := 0
	if n > 0 && len(b.alerts) > n {
		start = len(b.alerts) - n
	}
	return append([]domain.Alert(nil), b.alerts[start:]...)
}
