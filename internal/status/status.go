// Package status provides a thread-safe status tracker for the irrigator daemon.
// The controller writes to it; the status reporter, HTTP handlers and MQTT
// heartbeat only read snapshots from it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/irrigator/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Interval    time.Duration
	Duration    time.Duration
	Tick        time.Duration
	ReportEvery time.Duration
	PinMotor    int
	PinLight    int // gpio.NoPin when disabled
	Broker      string
	HTTPAddr    string
}

// Controller is the part of the snapshot owned by the watering controller.
type Controller struct {
	State     logic.State
	Since     time.Time
	LastStart time.Time
	LastStop  time.Time
	Elapsed   time.Duration
	Counts    logic.Counts
	Fault     string // last actuator error, empty when healthy
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Controller
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Watering reports whether the actuator is on.
func (s Snapshot) Watering() bool {
	return s.State == logic.StateWatering
}

// NextWatering returns the time until the next watering start.
func (s Snapshot) NextWatering() time.Duration {
	return logic.UntilNextWatering(s.State, s.Now, s.LastStart, s.LastStop, s.Config.Interval, s.Config.Duration)
}

// StopsIn returns the time until the current watering ends (0 when idle).
func (s Snapshot) StopsIn() time.Duration {
	if !s.Watering() {
		return 0
	}
	return logic.UntilStop(s.Now, s.LastStart, s.Config.Duration)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Controller: Controller{
				State:    logic.StateIdle,
				Since:    startTime,
				LastStop: startTime,
			},
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock overrides the time source used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update replaces the controller part of the snapshot.
// Called by the controller after every transition and tick.
func (t *Tracker) Update(c Controller) {
	t.mu.Lock()
	t.snap.Controller = c
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
