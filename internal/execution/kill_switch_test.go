package execution

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillm/tradeguard/internal/domain"
	"github.com/kirillm/tradeguard/pkg/utils"
)

func TestKillSwitch_Alerts(t *testing.T) {
	ks := NewKillSwitch(utils.NewNopLogger())
	emitter := &fakeEmitter{}
	ks.SetAlertEmitter(emitter)
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ks.SetClock(func() time.Time { return at })

	ks.Activate("manual stop")
	ks.Activate("still stopped")

	active, reason, activatedAt := ks.Status()
	if !active || reason != "still stopped" || !activatedAt.Equal(at) {
		t.Errorf("Status() = %v, %q, %v", active, reason, activatedAt)
	}
	if len(emitter.alerts) != 1 {
		t.Fatalf("alerts = %d after repeated Activate, want 1", len(emitter.alerts))
	}
	halted := emitter.alerts[0]
	if halted.Title != "Trading halted" || halted.Priority != domain.PriorityCritical || halted.Message != "manual stop" {
		t.Errorf("halt alert = %+v", halted)
	}

	ks.Deactivate()
	ks.Deactivate()
	if ks.IsActive() {
		t.Errorf("kill switch still active after Deactivate")
	}
	if len(emitter.alerts) != 2 {
		t.Fatalf("alerts = %d, want halt and resume only", len(emitter.alerts))
	}
	if resumed := emitter.alerts[1]; resumed.Title != "Trading resumed" || resumed.Priority != domain.PriorityHigh {
		t.Errorf("resume alert = %+v", resumed)
	}
}

func TestKillSwitch_RecordFailure(t *testing.T) {
	ks := NewKillSwitch(utils.NewNopLogger())
	ks.SetMaxFailures(3)
	orderErr := errors.New("exchange unavailable")

	ks.RecordFailure(orderErr)
	ks.RecordFailure(orderErr)
	ks.RecordSuccess()
	if ks.RecordFailure(orderErr) || ks.RecordFailure(orderErr) {
		t.Fatalf("tripped before 3 consecutive failures")
	}
	if !ks.RecordFailure(orderErr) {
		t.Fatalf("third consecutive failure did not trip")
	}
	_, reason, _ := ks.Status()
	if !strings.Contains(reason, "3 consecutive order failures") || !strings.Contains(reason, "exchange unavailable") {
		t.Errorf("reason = %q", reason)
	}
	if ks.RecordFailure(orderErr) {
		t.Errorf("RecordFailure reported a trip while already active")
	}

	ks.Deactivate()
	if ks.RecordFailure(orderErr) {
		t.Errorf("failure counter not reset by Deactivate")
	}
}

func TestKillSwitch_AutoTripDisabled(t *testing.T) {
	ks := NewKillSwitch(utils.NewNopLogger())
	for i := 0; i < 10; i++ {
		if ks.RecordFailure(errors.New("timeout")) {
			t.Fatalf("tripped with max failures 0")
		}
	}
	if ks.IsActive() {
		t.Errorf("kill switch active with auto trip disabled")
	}
}
