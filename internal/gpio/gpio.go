// Package gpio reads the local power buttons.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the logical button states.
type Reader interface {
	// Read returns whether each button is currently pressed.
	// The lines are active-low: a raw 0 means pressed.
	// A button whose pin is disabled always reads released.
	Read() (on bool, off bool, err error)

	// Close releases GPIO resources.
	Close() error
}

// PinDisabled marks a button with no line attached.
const PinDisabled = -1
