package metrics

import (
	"testing"
	"time"

	"github.com/sweeney/irrigator/internal/logic"
)

// value gathers the registry and returns the value of the named metric whose
// labels match. Returns -1 if not found.
func value(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metric:
		for _, mm := range f.GetMetric() {
			for _, lp := range mm.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			if c := mm.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := mm.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	return -1
}

func TestObserveEvent(t *testing.T) {
	m := New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.ObserveEvent(logic.Event{Timestamp: now, Type: logic.EventWateringStart, Reason: logic.ReasonStartup})
	m.ObserveEvent(logic.Event{Timestamp: now, Type: logic.EventWateringStop, Reason: logic.ReasonDuration, WateredFor: 10 * time.Minute})
	m.ObserveEvent(logic.Event{Timestamp: now, Type: logic.EventWateringStart, Reason: logic.ReasonInterval})

	if got := value(t, m, "irrigator_transitions_total", map[string]string{"event": "WATERING_START", "reason": "STARTUP"}); got != 1 {
		t.Errorf("start/STARTUP: got %v, want 1", got)
	}
	if got := value(t, m, "irrigator_transitions_total", map[string]string{"event": "WATERING_START", "reason": "INTERVAL"}); got != 1 {
		t.Errorf("start/INTERVAL: got %v, want 1", got)
	}
	if got := value(t, m, "irrigator_last_watering_seconds", nil); got != 600 {
		t.Errorf("last watering: got %v, want 600", got)
	}
}

func TestIgnoredAndErrors(t *testing.T) {
	m := New()
	m.IgnoredStart()
	m.IgnoredStart()
	m.IgnoredStop()
	m.WriteError()

	if got := value(t, m, "irrigator_ignored_requests_total", map[string]string{"op": "start"}); got != 2 {
		t.Errorf("ignored start: got %v, want 2", got)
	}
	if got := value(t, m, "irrigator_ignored_requests_total", map[string]string{"op": "stop"}); got != 1 {
		t.Errorf("ignored stop: got %v, want 1", got)
	}
	if got := value(t, m, "irrigator_actuator_write_errors_total", nil); got != 1 {
		t.Errorf("write errors: got %v, want 1", got)
	}
}

func TestSetState(t *testing.T) {
	m := New()

	m.SetState(logic.StateWatering, 42)
	if got := value(t, m, "irrigator_watering", nil); got != 1 {
		t.Errorf("watering: got %v, want 1", got)
	}
	if got := value(t, m, "irrigator_seconds_since_last_watering", nil); got != 42 {
		t.Errorf("elapsed: got %v, want 42", got)
	}

	m.SetState(logic.StateIdle, 0)
	if got := value(t, m, "irrigator_watering", nil); got != 0 {
		t.Errorf("watering: got %v, want 0", got)
	}

	m.SetBuffered(7)
	if got := value(t, m, "irrigator_mqtt_buffered_messages", nil); got != 7 {
		t.Errorf("buffered: got %v, want 7", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveEvent(logic.Event{Type: logic.EventWateringStart})
	m.IgnoredStart()
	m.IgnoredStop()
	m.WriteError()
	m.SetState(logic.StateIdle, 0)
	m.SetBuffered(1)
}
