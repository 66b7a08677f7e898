package alert

import (
	"context"
	"sync"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
)

// Sink получатель алертов (Telegram, буфер в памяти)
type Sink interface {
	Send(ctx context.Context, alert domain.Alert) error
}

// Dispatcher асинхронно рассылает алерты по sink-ам. Emit не блокирует:
// при переполненной очереди алерт отбрасывается с предупреждением в лог.
type Dispatcher struct {
	queue  chan domain.Alert
	sinks  []Sink
	logger *utils.Logger

	sendTimeout time.Duration
	closeOnce   sync.Once
	done        chan struct{}
}

// NewDispatcher запускает фоновую доставку
func NewDispatcher(queueSize int, logger *utils.Logger, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 100
	}
	d := &Dispatcher{
		queue:       make(chan domain.Alert, queueSize),
		sinks:       sinks,
		logger:      logger,
		sendTimeout: 10 * time.Second,
		done:        make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit ставит алерт в очередь
func (d *Dispatcher) Emit(alert domain.Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if alert.Priority == "" {
		alert.Priority = domain.PriorityNormal
	}

	select {
	case d.queue <- alert:
	default:
		d.logger.Warn("Alert queue full, dropping %s alert: %s", alert.Type, alert.Title)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for alert := range d.queue {
		for _, sink := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
			if err := sink.Send(ctx, alert); err != nil {
				d.logger.Error("Failed to deliver %s alert %q: %v", alert.Type, alert.Title, err)
			}
			cancel()
		}
	}
}

// Close доставляет оставшиеся алерты и останавливает dispatcher. Emit после Close недопустим.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	<-d.done
}
