//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives GPIO on actual hardware using Linux GPIO character device.
type RealWriter struct {
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
	order []int
}

// NewRealWriter requests each pin as an output, initially LOW.
// Pins equal to NoPin are skipped.
func NewRealWriter(chipName string, pins ...int) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	w := &RealWriter{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
	}

	for _, pin := range pins {
		if pin == NoPin {
			continue
		}
		if _, dup := w.lines[pin]; dup {
			continue
		}
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("request output pin %d: %w", pin, err)
		}
		w.lines[pin] = line
		w.order = append(w.order, pin)
	}

	return w, nil
}

// Set drives the pin HIGH or LOW.
func (w *RealWriter) Set(pin int, on bool) error {
	line, ok := w.lines[pin]
	if !ok {
		return fmt.Errorf("pin %d not requested", pin)
	}
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", pin, err)
	}
	return nil
}

// Close drives every line LOW, then reconfigures it to input with pull-down
// (matching Pi boot defaults) before releasing it, so the actuator stays off
// across a restart.
func (w *RealWriter) Close() error {
	var errs []error

	for _, pin := range w.order {
		line := w.lines[pin]
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive pin %d low: %w", pin, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	w.lines = map[int]*gpiocdev.Line{}
	w.order = nil

	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		w.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
