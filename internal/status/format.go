package status

import (
	"fmt"
	"time"
)

// FormatDuration renders d coarsely for humans, e.g. "7h 50m" or "4m 10s".
func FormatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, h, m)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// Summary returns the one-line status used by the hourly log.
func Summary(snap Snapshot) string {
	if snap.Watering() {
		return fmt.Sprintf("system running - watering, stops in %s", FormatDuration(snap.StopsIn()))
	}
	line := fmt.Sprintf("system running - next watering in %s", FormatDuration(snap.NextWatering()))
	if snap.Fault != "" {
		line += fmt.Sprintf(" (last actuator fault: %s)", snap.Fault)
	}
	return line
}
