// Package gpio provides the manual pulse button and the hold-phase LED with
// hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Button reads a push button.
type Button interface {
	// Pressed returns the logical button state. The line is active-low:
	// the button shorts the pin to ground against the internal pull-up.
	Pressed() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// LED drives an indicator output.
type LED interface {
	Set(on bool) error
	Close() error
}

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Disabled is the pin number that turns a line off.
const Disabled = -1

// Default pins (BCM numbering)
const (
	DefaultPinButton = 17
	DefaultPinLED    = 27
)
