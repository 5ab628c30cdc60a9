package logic

import (
	"errors"
	"testing"
	"time"
)

func TestNewMachine(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMachine(now)
	if m == nil {
		t.Fatal("NewMachine returned nil")
	}
	if m.State() != StateIdle {
		t.Errorf("expected IDLE, got %s", m.State())
	}
	if m.Watering() {
		t.Error("new machine should not be watering")
	}
	if !m.LastStop().Equal(now) {
		t.Errorf("expected lastStop %v, got %v", now, m.LastStop())
	}
	if !m.LastStart().IsZero() {
		t.Errorf("expected zero lastStart, got %v", m.LastStart())
	}
	if m.CountsSnapshot() != (Counts{}) {
		t.Errorf("expected zero counts, got %+v", m.CountsSnapshot())
	}
}

func TestStartFromIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMachine(now)

	e, ok := m.Start(now.Add(time.Second), ReasonStartup)
	if !ok {
		t.Fatal("expected start to succeed from IDLE")
	}
	if e.Type != EventWateringStart {
		t.Errorf("expected WATERING_START, got %s", e.Type)
	}
	if e.State != StateWatering {
		t.Errorf("expected event state WATERING, got %s", e.State)
	}
	if e.Reason != ReasonStartup {
		t.Errorf("expected reason STARTUP, got %s", e.Reason)
	}
	if !e.Timestamp.Equal(now.Add(time.Second)) {
		t.Errorf("unexpected timestamp: %v", e.Timestamp)
	}
	if m.State() != StateWatering {
		t.Errorf("expected WATERING, got %s", m.State())
	}
	if !m.Since().Equal(now.Add(time.Second)) {
		t.Errorf("unexpected since: %v", m.Since())
	}
	if got := m.CountsSnapshot().Starts; got != 1 {
		t.Errorf("expected 1 start, got %d", got)
	}
}

// Only the first of a run of starts may transition.
func TestRepeatedStartIsIgnored(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMachine(now)

	if _, ok := m.Start(now, ReasonStartup); !ok {
		t.Fatal("first start should succeed")
	}
	for i := 1; i <= 5; i++ {
		if _, ok := m.Start(now.Add(time.Duration(i)*time.Second), ReasonInterval); ok {
			t.Errorf("start %d: expected no-op while watering", i)
		}
	}

	if !m.LastStart().Equal(now) {
		t.Errorf("lastStart moved on ignored start: %v", m.LastStart())
	}
	c := m.CountsSnapshot()
	if c.Starts != 1 {
		t.Errorf("expected 1 start, got %d", c.Starts)
	}
	if c.IgnoredStarts != 5 {
		t.Errorf("expected 5 ignored starts, got %d", c.IgnoredStarts)
	}
}

func TestStopFromWatering(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMachine(now)
	m.Start(now, ReasonStartup)

	stopAt := now.Add(10 * time.Minute)
	e, ok := m.Stop(stopAt, ReasonDuration)
	if !ok {
		t.Fatal("expected stop to succeed while watering")
	}
	if e.Type != EventWateringStop {
		t.Errorf("expected WATERING_STOP, got %s", e.Type)
	}
	if e.State != StateIdle {
		t.Errorf("expected event state IDLE, got %s", e.State)
	}
	if e.WateredFor != 10*time.Minute {
		t.Errorf("expected watered for 10m, got %v", e.WateredFor)
	}
	if m.State() != StateIdle {
		t.Errorf("expected IDLE, got %s", m.State())
	}
	if !m.LastStop().Equal(stopAt) {
		t.Errorf("expected lastStop %v, got %v", stopAt, m.LastStop())
	}
}

// Only the first of a run of stops may transition.
func TestRepeatedStopIsIgnored(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMachine(now)
	m.Start(now, ReasonStartup)

	stopAt := now.Add(time.Minute)
	if _, ok := m.Stop(stopAt, ReasonDuration); !ok {
		t.Fatal("first stop should succeed")
	}
	for i := 1; i <= 3; i++ {
		if _, ok := m.Stop(stopAt.Add(time.Duration(i)*time.Second), ReasonShutdown); ok {
			t.Errorf("stop %d: expected no-op while idle", i)
		}
	}

	if !m.LastStop().Equal(stopAt) {
		t.Errorf("lastStop moved on ignored stop: %v", m.LastStop())
	}
	c := m.CountsSnapshot()
	if c.Stops != 1 {
		t.Errorf("expected 1 stop, got %d", c.Stops)
	}
	if c.IgnoredStops != 3 {
		t.Errorf("expected 3 ignored stops, got %d", c.IgnoredStops)
	}
}

func TestStopWhileIdleAtInit(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMachine(now)

	if _, ok := m.Stop(now, ReasonShutdown); ok {
		t.Error("stop on a fresh machine should be a no-op")
	}
	if m.State() != StateIdle {
		t.Errorf("expected IDLE, got %s", m.State())
	}
}

func TestFaultDuringWateringForcesIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMachine(now)
	m.Start(now, ReasonStartup)

	e := m.Fault(now.Add(time.Second), errors.New("line busy"))
	if e.Type != EventActuatorFault {
		t.Errorf("expected ACTUATOR_FAULT, got %s", e.Type)
	}
	if e.Reason != ReasonFault {
		t.Errorf("expected reason FAULT, got %s", e.Reason)
	}
	if e.Err != "line busy" {
		t.Errorf("expected error text, got %q", e.Err)
	}
	if e.State != StateIdle {
		t.Errorf("expected event state IDLE, got %s", e.State)
	}
	if m.State() != StateIdle {
		t.Errorf("expected IDLE after fault, got %s", m.State())
	}
	if !m.LastStop().Equal(now.Add(time.Second)) {
		t.Errorf("fault should restart the interval, lastStop=%v", m.LastStop())
	}

	c := m.CountsSnapshot()
	if c.Faults != 1 {
		t.Errorf("expected 1 fault, got %d", c.Faults)
	}
	if c.Stops != 0 {
		t.Errorf("aborted start must not count as a stop, got %d", c.Stops)
	}
	if c.Starts != 0 {
		t.Errorf("aborted start must not count as a start, got %d", c.Starts)
	}
	if !m.LastStart().IsZero() {
		t.Errorf("aborted start should not move lastStart, got %v", m.LastStart())
	}
}

func TestFaultAfterCompletedCycleRestoresLastStart(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMachine(now)
	m.Start(now, ReasonStartup)
	m.Stop(now.Add(10*time.Minute), ReasonDuration)

	m.Start(now.Add(time.Hour), ReasonInterval)
	m.Fault(now.Add(time.Hour), errors.New("line busy"))

	if !m.LastStart().Equal(now) {
		t.Errorf("lastStart: got %v, want %v", m.LastStart(), now)
	}
	if c := m.CountsSnapshot(); c.Starts != 1 || c.Stops != 1 || c.Faults != 1 {
		t.Errorf("counts: got %+v", c)
	}
}

func TestFaultWhileIdleKeepsLastStop(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMachine(now)
	m.Start(now, ReasonStartup)
	m.Stop(now.Add(time.Minute), ReasonDuration)

	e := m.Fault(now.Add(2*time.Minute), nil)
	if e.Err != "" {
		t.Errorf("expected empty error text, got %q", e.Err)
	}
	if !m.LastStop().Equal(now.Add(time.Minute)) {
		t.Errorf("fault while idle should not move lastStop, got %v", m.LastStop())
	}
}

func TestStartStopCycleCounts(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMachine(now)

	for i := 0; i < 3; i++ {
		base := now.Add(time.Duration(i) * time.Hour)
		if _, ok := m.Start(base, ReasonInterval); !ok {
			t.Fatalf("cycle %d: start failed", i)
		}
		if _, ok := m.Stop(base.Add(10*time.Minute), ReasonDuration); !ok {
			t.Fatalf("cycle %d: stop failed", i)
		}
	}

	want := Counts{Starts: 3, Stops: 3}
	if got := m.CountsSnapshot(); got != want {
		t.Errorf("counts: got %+v, want %+v", got, want)
	}
}
