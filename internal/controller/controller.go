// Package controller drives the watering actuator on a fixed schedule.
//
// Controller owns the watering state and the pending stop deadline; every
// transition runs under its mutex, so a start while watering can never re-arm
// the deadline or re-actuate the motor. Scheduler feeds it periodic ticks and
// starts a cycle whenever the interval since the last stop has elapsed.
package controller

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/irrigator/internal/gpio"
	"github.com/sweeney/irrigator/internal/logic"
	"github.com/sweeney/irrigator/internal/metrics"
	"github.com/sweeney/irrigator/internal/status"
	"github.com/sweeney/irrigator/internal/timer"
)

// Config holds the fixed schedule and pin assignment.
type Config struct {
	Interval time.Duration
	Duration time.Duration
	PinMotor int
	PinLight int // gpio.NoPin to disable the indicator
}

// Publisher receives controller events.
type Publisher interface {
	Publish(event logic.Event) error
}

// Options are the optional collaborators of a Controller.
type Options struct {
	Clock     timer.Clock      // defaults to timer.Real()
	Publisher Publisher        // may be nil
	Tracker   *status.Tracker  // may be nil
	Metrics   *metrics.Metrics // may be nil
	Retry     RetryPolicy      // defaults to DefaultRetry
}

// Controller is the single authority over watering state.
type Controller struct {
	cfg     Config
	clock   timer.Clock
	act     *actuator
	pub     Publisher
	tracker *status.Tracker
	metrics *metrics.Metrics

	mu       sync.Mutex
	machine  *logic.Machine
	interval *logic.Interval
	pending  timer.Timer // stop deadline, nil when disarmed
	gen      uint64      // bumped on every arm/disarm; stale expiries compare unequal
	fault    string
}

// New creates an idle controller. Outputs are not touched until the first
// Start.
func New(cfg Config, out gpio.Writer, opts Options) *Controller {
	clock := opts.Clock
	if clock == nil {
		clock = timer.Real()
	}
	retry := opts.Retry
	if retry == nil {
		retry = DefaultRetry
	}

	now := clock.Now()
	c := &Controller{
		cfg:     cfg,
		clock:   clock,
		pub:     opts.Publisher,
		tracker: opts.Tracker,
		metrics: opts.Metrics,
		act: &actuator{
			out:     out,
			motor:   cfg.PinMotor,
			light:   cfg.PinLight,
			retry:   retry,
			metrics: opts.Metrics,
		},
		machine:  logic.NewMachine(now),
		interval: logic.NewInterval(cfg.Interval, now),
	}

	c.mu.Lock()
	c.syncLocked()
	c.mu.Unlock()
	return c
}

// Start begins a watering cycle: motor and indicator HIGH, stop deadline
// armed for the configured duration. It is a no-op (logged as a warning) if
// watering is already in progress.
//
// If the motor cannot be driven after retries, the actuator is forced LOW,
// the controller stays idle, the interval restarts and the error is returned.
func (c *Controller) Start(reason logic.Reason) error {
	c.mu.Lock()
	events, err := c.startLocked(reason)
	c.mu.Unlock()

	c.emit(events)
	return err
}

// Stop ends the current watering cycle: motor and indicator LOW, time since
// last watering reset, stop deadline disarmed. It is a no-op (logged as a
// warning) if no watering is in progress.
func (c *Controller) Stop(reason logic.Reason) error {
	c.mu.Lock()
	events, err := c.stopLocked(reason)
	c.mu.Unlock()

	c.emit(events)
	return err
}

// Shutdown stops any cycle in progress and leaves every output LOW.
// Unlike Stop it is quiet when already idle.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	var events []logic.Event
	var err error
	if c.machine.Watering() {
		events, err = c.stopLocked(logic.ReasonShutdown)
	} else {
		c.disarmLocked()
		c.act.forceOff()
	}
	c.mu.Unlock()

	c.emit(events)
	return err
}

// State returns the current watering state.
func (c *Controller) State() logic.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// Elapsed returns the time since watering last stopped, as of the last tick.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval.Elapsed()
}

// Counts returns the transition counts.
func (c *Controller) Counts() logic.Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.CountsSnapshot()
}

// Armed reports whether a stop deadline is outstanding.
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// advance is the scheduler tick: it moves the interval forward while idle and
// starts a cycle once the interval is reached. Returns whether a start was
// attempted.
func (c *Controller) advance() (bool, error) {
	c.mu.Lock()
	due := c.interval.Advance(c.clock.Now(), c.machine.Watering())
	var events []logic.Event
	var err error
	if due {
		log.Printf("interval reached - starting new watering cycle")
		events, err = c.startLocked(logic.ReasonInterval)
	} else {
		c.syncLocked()
	}
	c.mu.Unlock()

	c.emit(events)
	return due, err
}

func (c *Controller) startLocked(reason logic.Reason) ([]logic.Event, error) {
	now := c.clock.Now()

	ev, ok := c.machine.Start(now, reason)
	if !ok {
		log.Printf("WARN: watering already in progress, ignoring start request (%s)", reason)
		c.metrics.IgnoredStart()
		c.syncLocked()
		return nil, nil
	}

	if err := c.act.drive(true); err != nil {
		log.Printf("ERROR: start watering: %v; forcing actuator off", err)
		c.act.forceOff()
		fault := c.machine.Fault(now, err)
		c.interval.Reset(now)
		c.fault = err.Error()
		c.syncLocked()
		return []logic.Event{fault}, err
	}

	c.fault = ""
	c.armLocked()
	log.Printf("watering started: reason=%s duration=%v", reason, c.cfg.Duration)
	c.syncLocked()
	return []logic.Event{ev}, nil
}

func (c *Controller) stopLocked(reason logic.Reason) ([]logic.Event, error) {
	now := c.clock.Now()

	ev, ok := c.machine.Stop(now, reason)
	if !ok {
		log.Printf("WARN: no watering in progress, ignoring stop request (%s)", reason)
		c.metrics.IgnoredStop()
		c.syncLocked()
		return nil, nil
	}

	c.disarmLocked()
	c.interval.Reset(now)
	events := []logic.Event{ev}

	if err := c.act.drive(false); err != nil {
		log.Printf("ERROR: stop watering: %v", err)
		c.act.forceOff()
		events = append(events, c.machine.Fault(now, err))
		c.fault = err.Error()
		c.syncLocked()
		return events, err
	}

	c.fault = ""
	log.Printf("watering stopped: reason=%s watered=%v", reason, ev.WateredFor)
	c.syncLocked()
	return events, nil
}

func (c *Controller) armLocked() {
	c.gen++
	gen := c.gen
	c.pending = c.clock.AfterFunc(c.cfg.Duration, func() { c.expire(gen) })
}

func (c *Controller) disarmLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.gen++
}

// expire is the stop deadline callback.
func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		// Deadline from a cycle that was already stopped.
		c.mu.Unlock()
		return
	}
	c.pending = nil
	events, err := c.stopLocked(logic.ReasonDuration)
	c.mu.Unlock()

	c.emit(events)
	if err == nil {
		log.Printf("watering cycle completed")
	}
}

// syncLocked pushes controller state to the tracker and gauges.
func (c *Controller) syncLocked() {
	state := c.machine.State()
	elapsed := c.interval.Elapsed()
	c.metrics.SetState(state, elapsed.Seconds())

	if c.tracker == nil {
		return
	}
	c.tracker.Update(status.Controller{
		State:     state,
		Since:     c.machine.Since(),
		LastStart: c.machine.LastStart(),
		LastStop:  c.machine.LastStop(),
		Elapsed:   elapsed,
		Counts:    c.machine.CountsSnapshot(),
		Fault:     c.fault,
	})
}

// emit publishes events outside the lock so a slow broker never delays a
// transition.
func (c *Controller) emit(events []logic.Event) {
	for _, e := range events {
		c.metrics.ObserveEvent(e)
		if c.pub == nil {
			continue
		}
		if err := c.pub.Publish(e); err != nil {
			log.Printf("publish error: %v", err)
		}
	}
}
