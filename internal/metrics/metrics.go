// Package metrics exposes controller activity as Prometheus collectors.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/irrigator/internal/logic"
)

const namespace = "irrigator"

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	transitions  *prometheus.CounterVec
	ignored      *prometheus.CounterVec
	writeErrors  prometheus.Counter
	watering     prometheus.Gauge
	elapsed      prometheus.Gauge
	lastWatering prometheus.Gauge
	mqttBuffered prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Controller transitions by event type and reason.",
		}, []string{"event", "reason"}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ignored_requests_total",
			Help:      "Redundant start/stop requests that were ignored.",
		}, []string{"op"}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_write_errors_total",
			Help:      "Failed GPIO write attempts, including retried ones.",
		}),
		watering: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watering",
			Help:      "1 while the actuator is on.",
		}),
		elapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seconds_since_last_watering",
			Help:      "Time since watering last stopped, frozen while watering.",
		}),
		lastWatering: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_watering_seconds",
			Help:      "Length of the most recent completed watering cycle.",
		}),
		mqttBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_buffered_messages",
			Help:      "Messages held while the broker is unreachable.",
		}),
	}

	m.Registry.MustRegister(
		m.transitions,
		m.ignored,
		m.writeErrors,
		m.watering,
		m.elapsed,
		m.lastWatering,
		m.mqttBuffered,
	)
	return m
}

// ObserveEvent counts a published transition.
func (m *Metrics) ObserveEvent(e logic.Event) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(e.Type), string(e.Reason)).Inc()
	if e.Type == logic.EventWateringStop {
		m.lastWatering.Set(e.WateredFor.Seconds())
	}
}

// IgnoredStart counts a start requested while already watering.
func (m *Metrics) IgnoredStart() {
	if m == nil {
		return
	}
	m.ignored.WithLabelValues("start").Inc()
}

// IgnoredStop counts a stop requested while idle.
func (m *Metrics) IgnoredStop() {
	if m == nil {
		return
	}
	m.ignored.WithLabelValues("stop").Inc()
}

// WriteError counts one failed GPIO write attempt.
func (m *Metrics) WriteError() {
	if m == nil {
		return
	}
	m.writeErrors.Inc()
}

// SetState records the current state and elapsed time since last watering.
func (m *Metrics) SetState(state logic.State, elapsedSeconds float64) {
	if m == nil {
		return
	}
	if state == logic.StateWatering {
		m.watering.Set(1)
	} else {
		m.watering.Set(0)
	}
	m.elapsed.Set(elapsedSeconds)
}

// SetBuffered records the MQTT buffer depth.
func (m *Metrics) SetBuffered(n int) {
	if m == nil {
		return
	}
	m.mqttBuffered.Set(float64(n))
}
