package execution

import (
	"fmt"
	"sync"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
)

// KillSwitch аварийная остановка торговли: пока активен, шлюз отклоняет все сделки.
// Включается оператором или сам после maxFailures подряд неудачных live-ордеров.
type KillSwitch struct {
	mu          sync.RWMutex
	active      bool
	activatedAt time.Time
	reason      string
	failures    int
	maxFailures int
	now         func() time.Time
	alerts      AlertEmitter
	logger      *utils.Logger
}

// NewKillSwitch создает новый kill switch
func NewKillSwitch(logger *utils.Logger) *KillSwitch {
	return &KillSwitch{
		active: false,
		now:    time.Now,
		logger: logger,
	}
}

func (ks *KillSwitch) SetAlertEmitter(e AlertEmitter) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.alerts = e
}

func (ks *KillSwitch) SetClock(now func() time.Time) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.now = now
}

// SetMaxFailures порог автоматического срабатывания, 0 отключает
func (ks *KillSwitch) SetMaxFailures(n int) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.maxFailures = n
}

// Activate активирует kill switch; повторный вызов только обновляет причину
func (ks *KillSwitch) Activate(reason string) {
	ks.mu.Lock()
	wasActive := ks.active
	ks.active = true
	ks.reason = reason
	if !wasActive {
		ks.activatedAt = ks.now()
	}
	at, alerts := ks.activatedAt, ks.alerts
	ks.mu.Unlock()

	if wasActive {
		ks.logger.Warn("Kill switch already active, reason updated: %s", reason)
		return
	}
	ks.logger.Error("KILL SWITCH ACTIVATED: %s", reason)
	if alerts != nil {
		alerts.Emit(domain.Alert{
			Type:      domain.AlertError,
			Title:     "Trading halted",
			Message:   reason,
			Timestamp: at,
			Priority:  domain.PriorityCritical,
		})
	}
}

// Deactivate деактивирует kill switch (требует ручного вмешательства)
func (ks *KillSwitch) Deactivate() {
	ks.mu.Lock()
	wasActive := ks.active
	ks.active = false
	ks.reason = ""
	ks.failures = 0
	now, alerts := ks.now(), ks.alerts
	ks.mu.Unlock()

	if !wasActive {
		return
	}
	ks.logger.Info("Kill switch deactivated")
	if alerts != nil {
		alerts.Emit(domain.Alert{
			Type:      domain.AlertTrade,
			Title:     "Trading resumed",
			Message:   "kill switch deactivated",
			Timestamp: now,
			Priority:  domain.PriorityHigh,
		})
	}
}

// RecordFailure учитывает неудачный ордер; возвращает true если kill switch сработал
func (ks *KillSwitch) RecordFailure(err error) bool {
	ks.mu.Lock()
	ks.failures++
	trip := ks.maxFailures > 0 && ks.failures >= ks.maxFailures && !ks.active
	failures := ks.failures
	ks.mu.Unlock()

	if !trip {
		return false
	}
	ks.Activate(fmt.Sprintf("%d consecutive order failures, last: %v", failures, err))
	return true
}

// RecordSuccess сбрасывает счетчик неудач
func (ks *KillSwitch) RecordSuccess() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.failures = 0
}

// IsActive проверяет активен ли kill switch
func (ks *KillSwitch) IsActive() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	return ks.active
}

// Status возвращает статус kill switch
func (ks *KillSwitch) Status() (bool, string, time.Time) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	return ks.active, ks.reason, ks.activatedAt
}
