package logic

import "time"

// Interval tracks time since watering last stopped.
//
// Elapsed is derived from the clock (now minus the last reset) rather than by
// counting ticks, so a late or dropped tick never stretches the schedule. It
// only moves when Advance is called while idle; while watering it is frozen.
type Interval struct {
	period  time.Duration
	anchor  time.Time
	elapsed time.Duration
}

// NewInterval creates a tracker that becomes due period after now.
func NewInterval(period time.Duration, now time.Time) *Interval {
	return &Interval{
		period: period,
		anchor: now,
	}
}

// Advance updates elapsed time for a scheduler tick and reports whether the
// interval has been reached. Ticks received while watering do not advance the
// counter.
func (iv *Interval) Advance(now time.Time, watering bool) bool {
	if watering {
		return false
	}

	e := now.Sub(iv.anchor)
	if e < iv.elapsed {
		// never run backwards
		e = iv.elapsed
	}
	iv.elapsed = e

	return iv.elapsed >= iv.period
}

// Reset zeroes elapsed time. Called the instant watering stops.
func (iv *Interval) Reset(now time.Time) {
	iv.anchor = now
	iv.elapsed = 0
}

// Elapsed returns the time since the last reset as of the last Advance.
func (iv *Interval) Elapsed() time.Duration {
	return iv.elapsed
}

// UntilNextWatering returns the time until the next watering start.
//
// Time spent watering never counts toward the interval: while idle the answer
// is interval minus time since lastStop; while watering it is the remaining
// watering time plus a full interval.
func UntilNextWatering(state State, now, lastStart, lastStop time.Time, interval, duration time.Duration) time.Duration {
	if state == StateWatering {
		return UntilStop(now, lastStart, duration) + interval
	}
	left := interval - now.Sub(lastStop)
	if left < 0 {
		return 0
	}
	return left
}

// UntilStop returns the time until the current watering cycle ends.
func UntilStop(now, lastStart time.Time, duration time.Duration) time.Duration {
	left := duration - now.Sub(lastStart)
	if left < 0 {
		return 0
	}
	return left
}
