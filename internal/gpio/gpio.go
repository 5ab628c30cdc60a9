// Package gpio provides GPIO output driving with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Writer drives GPIO output lines.
type Writer interface {
	// Set drives the pin HIGH (on=true) or LOW (on=false).
	Set(pin int, on bool) error

	// Close drives all lines LOW and releases GPIO resources.
	Close() error
}

// Default pin definitions (BCM numbering).
const (
	DefaultChip     = "gpiochip0"
	DefaultPinMotor = 14 // motor driver / pump relay
	DefaultPinLight = 2  // status indicator
)

// NoPin disables an optional output.
const NoPin = -1
