package logic

import "time"

// Machine tracks watering state and transition counts.
// It is not safe for concurrent use; the controller serialises access.
type Machine struct {
	state     State
	since     time.Time // when the current state was entered
	lastStart time.Time
	lastStop  time.Time
	prevStart time.Time // lastStart before the current cycle, restored if it aborts
	counts    Counts
}

// NewMachine creates an idle machine. now is treated as the last stop time so
// that time-since-last-watering starts at zero.
func NewMachine(now time.Time) *Machine {
	return &Machine{
		state:    StateIdle,
		since:    now,
		lastStop: now,
	}
}

// Start transitions IDLE -> WATERING.
// Returns false (and counts an ignored start) if watering is already in progress.
func (m *Machine) Start(now time.Time, reason Reason) (Event, bool) {
	if m.state == StateWatering {
		m.counts.IgnoredStarts++
		return Event{}, false
	}

	m.state = StateWatering
	m.since = now
	m.prevStart = m.lastStart
	m.lastStart = now
	m.counts.Starts++

	return Event{
		Timestamp: now,
		Type:      EventWateringStart,
		State:     StateWatering,
		Reason:    reason,
	}, true
}

// Stop transitions WATERING -> IDLE.
// Returns false (and counts an ignored stop) if no watering is in progress.
func (m *Machine) Stop(now time.Time, reason Reason) (Event, bool) {
	if m.state == StateIdle {
		m.counts.IgnoredStops++
		return Event{}, false
	}

	watered := now.Sub(m.lastStart)
	if watered < 0 {
		watered = 0
	}

	m.state = StateIdle
	m.since = now
	m.lastStop = now
	m.counts.Stops++

	return Event{
		Timestamp:  now,
		Type:       EventWateringStop,
		State:      StateIdle,
		Reason:     reason,
		WateredFor: watered,
	}, true
}

// Fault records an actuator failure and forces the machine IDLE.
// A fault during a start aborts the cycle: the start is taken back, it is not
// counted as a stop, and the time since last watering restarts from now.
func (m *Machine) Fault(now time.Time, err error) Event {
	m.counts.Faults++
	if m.state == StateWatering {
		m.counts.Starts--
		m.lastStart = m.prevStart
		m.state = StateIdle
		m.since = now
		m.lastStop = now
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{
		Timestamp: now,
		Type:      EventActuatorFault,
		State:     m.state,
		Reason:    ReasonFault,
		Err:       msg,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Watering reports whether watering is in progress.
func (m *Machine) Watering() bool {
	return m.state == StateWatering
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	return m.since
}

// LastStart returns when watering last started (zero if never).
func (m *Machine) LastStart() time.Time {
	return m.lastStart
}

// LastStop returns when watering last stopped, or the init time.
func (m *Machine) LastStop() time.Time {
	return m.lastStop
}

// CountsSnapshot returns a copy of the transition counts.
func (m *Machine) CountsSnapshot() Counts {
	return m.counts
}
