package controller

import (
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sweeney/irrigator/internal/gpio"
	"github.com/sweeney/irrigator/internal/metrics"
)

// RetryPolicy returns a fresh BackOff for one motor write.
type RetryPolicy func() backoff.BackOff

// DefaultRetry retries a failed motor write a few times over about a second.
func DefaultRetry() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

// NoRetry makes a single attempt.
func NoRetry() backoff.BackOff {
	return &backoff.StopBackOff{}
}

// actuator drives the motor and optional indicator lines.
type actuator struct {
	out     gpio.Writer
	motor   int
	light   int
	retry   RetryPolicy
	metrics *metrics.Metrics
}

// drive sets the motor (with retries) and then the indicator. An indicator
// failure is logged but does not fail the call.
func (a *actuator) drive(on bool) error {
	attempt := func() error {
		err := a.out.Set(a.motor, on)
		if err != nil {
			a.metrics.WriteError()
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("WARN: motor pin %d write failed, retrying in %v: %v", a.motor, wait, err)
	}

	if err := backoff.RetryNotify(attempt, a.retry(), notify); err != nil {
		return fmt.Errorf("drive motor pin %d %s: %w", a.motor, level(on), err)
	}

	if a.light != gpio.NoPin {
		if err := a.out.Set(a.light, on); err != nil {
			a.metrics.WriteError()
			log.Printf("WARN: indicator pin %d write failed: %v", a.light, err)
		}
	}
	return nil
}

// forceOff is the fail-safe: one best-effort LOW write to every line.
func (a *actuator) forceOff() {
	if err := a.out.Set(a.motor, false); err != nil {
		a.metrics.WriteError()
		log.Printf("ERROR: fail-safe: motor pin %d LOW failed: %v", a.motor, err)
	}
	if a.light != gpio.NoPin {
		if err := a.out.Set(a.light, false); err != nil {
			a.metrics.WriteError()
			log.Printf("WARN: fail-safe: indicator pin %d LOW failed: %v", a.light, err)
		}
	}
}

func level(on bool) string {
	if on {
		return "HIGH"
	}
	return "LOW"
}
