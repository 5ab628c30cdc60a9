package internal

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/irrigator/internal/controller"
	"github.com/sweeney/irrigator/internal/gpio"
	"github.com/sweeney/irrigator/internal/logic"
	"github.com/sweeney/irrigator/internal/metrics"
	"github.com/sweeney/irrigator/internal/mqtt"
	"github.com/sweeney/irrigator/internal/status"
	"github.com/sweeney/irrigator/internal/timer"
)

var startTime = time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

type system struct {
	clock     *timer.Fake
	out       *gpio.FakeWriter
	publisher *mqtt.FakePublisher
	tracker   *status.Tracker
	metrics   *metrics.Metrics
	ctrl      *controller.Controller
	sched     *controller.Scheduler
}

func newSystem(interval, duration time.Duration) *system {
	s := &system{
		clock:     timer.NewFake(startTime),
		out:       gpio.NewFakeWriter(),
		publisher: mqtt.NewFakePublisher(),
		metrics:   metrics.New(),
	}
	s.tracker = status.NewTracker(startTime, status.Config{
		Interval: interval,
		Duration: duration,
		Tick:     time.Second,
		PinMotor: gpio.DefaultPinMotor,
		PinLight: gpio.DefaultPinLight,
	})
	s.tracker.SetClock(s.clock.Now)
	s.ctrl = controller.New(controller.Config{
		Interval: interval,
		Duration: duration,
		PinMotor: gpio.DefaultPinMotor,
		PinLight: gpio.DefaultPinLight,
	}, s.out, controller.Options{
		Clock:     s.clock,
		Publisher: s.publisher,
		Tracker:   s.tracker,
		Metrics:   s.metrics,
		Retry:     controller.NoRetry,
	})
	s.sched = controller.NewScheduler(s.ctrl, s.clock, time.Second)
	return s
}

// run simulates the main loop: one tick per second, with the reporter (if
// any) woken on the same cadence.
func (s *system) run(total time.Duration, reporter *status.Reporter) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += time.Second {
		s.clock.Advance(time.Second)
		s.sched.Tick()
		if reporter != nil {
			reporter.Tick()
		}
	}
}

func (s *system) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := s.metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

// TestIntegrationWateringDay runs a full production day and checks the
// published stream, the motor line, metrics and status agree.
func TestIntegrationWateringDay(t *testing.T) {
	s := newSystem(8*time.Hour, 10*time.Minute)

	if err := s.sched.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	s.run(24*time.Hour, nil)

	// Parse all payloads
	var starts, stops []time.Time
	for i, payload := range s.publisher.Payloads {
		var parsed mqtt.Payload
		if err := json.Unmarshal(payload, &parsed); err != nil {
			t.Fatalf("payload %d: invalid JSON: %v", i, err)
		}
		ts, err := time.Parse(time.RFC3339, parsed.Irrigation.Timestamp)
		if err != nil {
			t.Fatalf("payload %d: bad timestamp %q", i, parsed.Irrigation.Timestamp)
		}
		switch parsed.Irrigation.Event {
		case "WATERING_START":
			starts = append(starts, ts)
		case "WATERING_STOP":
			stops = append(stops, ts)
			if parsed.Irrigation.WateredForSeconds != 600 {
				t.Errorf("payload %d: watered_for_seconds=%d", i, parsed.Irrigation.WateredForSeconds)
			}
		default:
			t.Errorf("payload %d: unexpected event %s", i, parsed.Irrigation.Event)
		}
	}

	wantStarts := []time.Duration{0, 8*time.Hour + 10*time.Minute, 16*time.Hour + 20*time.Minute}
	if len(starts) != len(wantStarts) || len(stops) != len(wantStarts) {
		t.Fatalf("expected %d starts and stops, got %d/%d", len(wantStarts), len(starts), len(stops))
	}
	for i, want := range wantStarts {
		if got := starts[i].Sub(startTime); got != want {
			t.Errorf("start %d at %v, want %v", i, got, want)
		}
		if got := stops[i].Sub(starts[i]); got != 10*time.Minute {
			t.Errorf("cycle %d lasted %v", i, got)
		}
	}

	// Motor toggled HIGH/LOW once per cycle and is off at the end.
	if n := s.out.WriteCount(gpio.DefaultPinMotor); n != 6 {
		t.Errorf("expected 6 motor writes, got %d", n)
	}
	if s.out.Level(gpio.DefaultPinMotor) {
		t.Error("motor should be LOW at 24h")
	}

	if got := s.counter(t, "irrigator_transitions_total", map[string]string{"event": "WATERING_START", "reason": "INTERVAL"}); got != 2 {
		t.Errorf("interval starts metric: got %v, want 2", got)
	}
	if got := s.counter(t, "irrigator_transitions_total", map[string]string{"event": "WATERING_STOP", "reason": "DURATION"}); got != 3 {
		t.Errorf("duration stops metric: got %v, want 3", got)
	}
	if got := s.counter(t, "irrigator_last_watering_seconds", nil); got != 600 {
		t.Errorf("last watering metric: got %v, want 600", got)
	}

	// Last stop at 16h30m; 24h - 16h30m = 7h30m since last watering.
	snap := s.tracker.Snapshot()
	if snap.Elapsed != 7*time.Hour+30*time.Minute {
		t.Errorf("elapsed: got %v", snap.Elapsed)
	}
	if snap.NextWatering() != 30*time.Minute {
		t.Errorf("next watering: got %v, want 30m", snap.NextWatering())
	}
	if snap.Counts.Starts != 3 || snap.Counts.Stops != 3 {
		t.Errorf("counts: got %+v", snap.Counts)
	}
}

// TestIntegrationPayloadFormat verifies the exact JSON structure.
func TestIntegrationPayloadFormat(t *testing.T) {
	s := newSystem(8*time.Hour, 10*time.Minute)
	s.sched.Begin()
	s.clock.Advance(10 * time.Minute)

	if len(s.publisher.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(s.publisher.Payloads))
	}

	expected := []string{
		`{"irrigation":{"timestamp":"2026-01-01T06:00:00Z","event":"WATERING_START","state":"WATERING","reason":"STARTUP"}}`,
		`{"irrigation":{"timestamp":"2026-01-01T06:10:00Z","event":"WATERING_STOP","state":"IDLE","reason":"DURATION","watered_for_seconds":600}}`,
	}
	for i, want := range expected {
		if got := string(s.publisher.Payloads[i]); got != want {
			t.Errorf("payload %d:\ngot:  %s\nwant: %s", i, got, want)
		}
	}
}

// TestIntegrationActuatorFault checks a failed start leaves everything off,
// is reported everywhere, and the schedule resumes one interval later.
func TestIntegrationActuatorFault(t *testing.T) {
	s := newSystem(time.Hour, time.Minute)
	s.out.FailNext(gpio.DefaultPinMotor, 1)

	if err := s.sched.Begin(); err == nil {
		t.Fatal("expected start error")
	}
	if s.ctrl.State() != logic.StateIdle {
		t.Fatalf("expected IDLE after fault, got %s", s.ctrl.State())
	}

	snap := s.tracker.Snapshot()
	if !strings.Contains(status.Summary(snap), "last actuator fault") {
		t.Errorf("summary should mention the fault: %q", status.Summary(snap))
	}
	if got := s.counter(t, "irrigator_actuator_write_errors_total", nil); got != 1 {
		t.Errorf("write errors metric: got %v, want 1", got)
	}

	s.run(time.Hour, nil)

	types := s.publisher.EventTypes()
	if len(types) != 2 || types[0] != logic.EventActuatorFault || types[1] != logic.EventWateringStart {
		t.Fatalf("expected [ACTUATOR_FAULT WATERING_START], got %v", types)
	}
	if s.publisher.Events[1].Timestamp.Sub(startTime) != time.Hour {
		t.Errorf("resumed start at %v, want 1h", s.publisher.Events[1].Timestamp.Sub(startTime))
	}
	if snap := s.tracker.Snapshot(); snap.Fault != "" {
		t.Errorf("successful start should clear the fault, got %q", snap.Fault)
	}
}

// TestIntegrationReporterHourly checks the reporter fires once per hour and
// never disturbs the controller.
func TestIntegrationReporterHourly(t *testing.T) {
	s := newSystem(8*time.Hour, 10*time.Minute)

	var reports []status.Snapshot
	reporter := status.NewReporter(s.tracker, time.Second, time.Hour, func(snap status.Snapshot) {
		reports = append(reports, snap)
	})

	s.sched.Begin()
	s.run(3*time.Hour, reporter)

	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}
	for i, snap := range reports {
		if want := time.Duration(i+1) * time.Hour; snap.Uptime() != want {
			t.Errorf("report %d: uptime %v, want %v", i, snap.Uptime(), want)
		}
		if snap.Watering() {
			t.Errorf("report %d: unexpectedly watering", i)
		}
	}

	// Stopped at 10m; first report at 1h says 8h - 50m remain.
	if got := reports[0].NextWatering(); got != 7*time.Hour+10*time.Minute {
		t.Errorf("first report next watering: got %v", got)
	}
	if got := status.Summary(reports[0]); got != "system running - next watering in 7h 10m" {
		t.Errorf("summary: got %q", got)
	}

	counts := s.ctrl.Counts()
	if counts.Starts != 1 || counts.Stops != 1 || counts.IgnoredStarts != 0 {
		t.Errorf("reporter must not affect the controller, counts=%+v", counts)
	}
}

// TestIntegrationShutdownMidCycle stops watering early and checks the next
// cycle is measured from the early stop.
func TestIntegrationShutdownMidCycle(t *testing.T) {
	s := newSystem(time.Hour, 10*time.Minute)
	s.sched.Begin()
	s.run(4*time.Minute, nil)

	if err := s.ctrl.Stop(logic.ReasonShutdown); err != nil {
		t.Fatalf("stop: %v", err)
	}
	s.run(time.Hour, nil)

	var starts []time.Duration
	for _, e := range s.publisher.Events {
		if e.Type == logic.EventWateringStart {
			starts = append(starts, e.Timestamp.Sub(startTime))
		}
	}
	if len(starts) != 2 || starts[1] != time.Hour+4*time.Minute {
		t.Errorf("expected second start at 1h4m, got %v", starts)
	}
	if got := s.ctrl.Counts().IgnoredStops; got != 0 {
		t.Errorf("disarmed deadline must not fire, got %d ignored stops", got)
	}
}
