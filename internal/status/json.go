package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event                 string       `json:"event,omitempty"`
	Reason                string       `json:"reason,omitempty"`
	State                 string       `json:"state"`
	StateSince            string       `json:"state_since"`
	LastStart             string       `json:"last_start,omitempty"`
	LastStop              string       `json:"last_stop"`
	SecondsSinceLastWater int64        `json:"seconds_since_last_watering"`
	NextWateringSeconds   int64        `json:"next_watering_seconds"`
	StopsInSeconds        int64        `json:"stops_in_seconds,omitempty"`
	Fault                 string       `json:"fault,omitempty"`
	UptimeSeconds         int64        `json:"uptime_seconds"`
	StartTime             string       `json:"start_time"`
	Timestamp             string       `json:"timestamp"`
	MQTT                  MQTTStatus   `json:"mqtt"`
	Counts                CountsJSON   `json:"counts"`
	Network               *NetworkJSON `json:"network,omitempty"`
	Config                ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of transition counts.
type CountsJSON struct {
	Starts        int `json:"starts"`
	Stops         int `json:"stops"`
	IgnoredStarts int `json:"ignored_starts"`
	IgnoredStops  int `json:"ignored_stops"`
	Faults        int `json:"faults"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalSeconds    int64  `json:"interval_seconds"`
	DurationSeconds    int64  `json:"duration_seconds"`
	TickMs             int64  `json:"tick_ms"`
	ReportEverySeconds int64  `json:"report_every_seconds"`
	PinMotor           int    `json:"pin_motor"`
	PinLight           int    `json:"pin_light"`
	Broker             string `json:"broker"`
	HTTPAddr           string `json:"http_addr"`
}

func seconds(d time.Duration) int64 {
	return int64(d.Truncate(time.Second).Seconds())
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:                 state,
		StateSince:            timestamp(snap.Since),
		LastStart:             timestamp(snap.LastStart),
		LastStop:              timestamp(snap.LastStop),
		SecondsSinceLastWater: seconds(snap.Elapsed),
		NextWateringSeconds:   seconds(snap.NextWatering()),
		StopsInSeconds:        seconds(snap.StopsIn()),
		Fault:                 snap.Fault,
		UptimeSeconds:         seconds(snap.Uptime()),
		StartTime:             timestamp(snap.StartTime),
		Timestamp:             timestamp(snap.Now),
		MQTT:                  MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Starts:        snap.Counts.Starts,
			Stops:         snap.Counts.Stops,
			IgnoredStarts: snap.Counts.IgnoredStarts,
			IgnoredStops:  snap.Counts.IgnoredStops,
			Faults:        snap.Counts.Faults,
		},
		Config: ConfigJSON{
			IntervalSeconds:    seconds(snap.Config.Interval),
			DurationSeconds:    seconds(snap.Config.Duration),
			TickMs:             snap.Config.Tick.Milliseconds(),
			ReportEverySeconds: seconds(snap.Config.ReportEvery),
			PinMotor:           snap.Config.PinMotor,
			PinLight:           snap.Config.PinLight,
			Broker:             snap.Config.Broker,
			HTTPAddr:           snap.Config.HTTPAddr,
		},
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
