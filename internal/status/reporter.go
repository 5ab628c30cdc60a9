package status

import (
	"context"
	"log"
	"time"
)

// Reporter wakes on every tick and, once per report period, logs a summary
// line and hands the snapshot to OnReport (the MQTT heartbeat).
//
// It only ever reads the Tracker. The tick counter is its own.
type Reporter struct {
	tracker  *Tracker
	every    int
	count    int
	onReport func(Snapshot)
}

// NewReporter creates a Reporter that reports every reportEvery, counted in
// ticks of length tick. onReport may be nil.
func NewReporter(tracker *Tracker, tick, reportEvery time.Duration, onReport func(Snapshot)) *Reporter {
	every := 1
	if tick > 0 && reportEvery > tick {
		every = int(reportEvery / tick)
	}
	return &Reporter{
		tracker:  tracker,
		every:    every,
		onReport: onReport,
	}
}

// Tick advances the reporter's counter and reports when the period is
// reached. Returns true if a report was produced.
func (r *Reporter) Tick() bool {
	r.count++
	if r.count < r.every {
		return false
	}
	r.count = 0

	snap := r.tracker.Snapshot()
	log.Print(Summary(snap))
	if r.onReport != nil {
		r.onReport(snap)
	}
	return true
}

// Run calls Tick for every value received on tick until ctx is done.
func (r *Reporter) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			r.Tick()
		}
	}
}
