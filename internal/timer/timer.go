// Package timer provides the one-shot timer facility used by the controller.
// The real implementation wraps time.AfterFunc; Fake is a manually advanced
// clock for deterministic tests.
package timer

import "time"

// Timer is an armed one-shot expiry.
type Timer interface {
	// Stop disarms the timer. It returns false if the timer already fired
	// or was already stopped.
	Stop() bool
}

// Clock supplies the current time and one-shot timers.
type Clock interface {
	Now() time.Time

	// AfterFunc arms a one-shot timer that calls f in its own goroutine
	// after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
