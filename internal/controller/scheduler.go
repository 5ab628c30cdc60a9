package controller

import (
	"log"
	"time"

	"github.com/sweeney/irrigator/internal/logic"
	"github.com/sweeney/irrigator/internal/timer"
)

// Scheduler turns periodic ticks into watering starts.
//
// The first cycle starts in Begin, without waiting a full interval. After
// that every Tick advances the time since last watering (frozen while
// watering) and starts a new cycle once it reaches the interval.
type Scheduler struct {
	ctrl     *Controller
	clock    timer.Clock
	period   time.Duration
	lastTick time.Time
	ticks    uint64
}

// NewScheduler creates a scheduler expecting ticks every period.
func NewScheduler(ctrl *Controller, clock timer.Clock, period time.Duration) *Scheduler {
	if clock == nil {
		clock = timer.Real()
	}
	return &Scheduler{
		ctrl:   ctrl,
		clock:  clock,
		period: period,
	}
}

// Begin starts the first watering cycle.
func (s *Scheduler) Begin() error {
	s.lastTick = s.clock.Now()
	return s.ctrl.Start(logic.ReasonStartup)
}

// Tick handles one periodic check. It returns the actuator error if a start
// was attempted and failed.
func (s *Scheduler) Tick() error {
	now := s.clock.Now()
	if !s.lastTick.IsZero() && s.period > 0 {
		if gap := now.Sub(s.lastTick); gap > 2*s.period {
			log.Printf("WARN: scheduler: tick late by %v", gap-s.period)
		}
	}
	s.lastTick = now
	s.ticks++

	_, err := s.ctrl.advance()
	return err
}

// Ticks returns the number of ticks handled.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks
}
