// Package logic contains the pure watering state machine and interval tracking.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the watering state of the controller.
type State string

const (
	StateIdle     State = "IDLE"
	StateWatering State = "WATERING"
)

// EventType represents a controller transition to be published.
type EventType string

const (
	EventWateringStart EventType = "WATERING_START"
	EventWateringStop  EventType = "WATERING_STOP"
	EventActuatorFault EventType = "ACTUATOR_FAULT"
)

// Reason records why a transition was requested.
type Reason string

const (
	ReasonStartup  Reason = "STARTUP"  // first cycle at boot
	ReasonInterval Reason = "INTERVAL" // scheduler saw the interval elapse
	ReasonDuration Reason = "DURATION" // stop deadline expired
	ReasonShutdown Reason = "SHUTDOWN" // process is exiting
	ReasonFault    Reason = "FAULT"    // actuator write failed
)

// Event represents a state transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State // state after the transition
	Reason    Reason
	// WateredFor is how long the actuator was on. Set on WATERING_STOP only.
	WateredFor time.Duration
	// Err describes the actuator failure. Set on ACTUATOR_FAULT only.
	Err string
}

// Counts tracks the number of each transition outcome since startup.
type Counts struct {
	Starts        int
	Stops         int
	IgnoredStarts int
	IgnoredStops  int
	Faults        int
}
