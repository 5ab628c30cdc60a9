// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/irrigator/internal/logic"
)

// Topic is the MQTT topic for watering events.
const Topic = "garden/irrigation/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "garden/irrigation/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a watering event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Irrigation IrrigationPayload `json:"irrigation"`
}

// IrrigationPayload contains the watering event details.
type IrrigationPayload struct {
	Timestamp         string `json:"timestamp"`
	Event             string `json:"event"`
	State             string `json:"state"`
	Reason            string `json:"reason"`
	WateredForSeconds int64  `json:"watered_for_seconds,omitempty"`
	Error             string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a watering event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Irrigation: IrrigationPayload{
			Timestamp:         event.Timestamp.UTC().Format(time.RFC3339),
			Event:             string(event.Type),
			State:             string(event.State),
			Reason:            string(event.Reason),
			WateredForSeconds: int64(event.WateredFor.Truncate(time.Second).Seconds()),
			Error:             event.Err,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Discard is a Publisher that drops everything. Used when no broker is
// configured.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(logic.Event) error       { return nil }
func (discard) PublishSystem(SystemEvent) error { return nil }
func (discard) Close() error                    { return nil }
func (discard) IsConnected() bool               { return false }
