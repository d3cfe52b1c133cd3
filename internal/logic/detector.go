package logic

import "time"

// Detector debounces the two power buttons and reports press edges.
type Detector struct {
	debounceDuration time.Duration
	on               ChannelState
	off              ChannelState
	baselined        bool
	presses          int
}

// NewDetector creates a button detector with the given debounce duration.
func NewDetector(debounceDuration time.Duration) *Detector {
	return &Detector{debounceDuration: debounceDuration}
}

// Process takes a new input sample and returns any presses that should be acted on.
// A button held down at startup becomes the baseline and does not produce a press.
func (d *Detector) Process(input Input) []Press {
	onPressed := d.processChannel(&d.on, toState(input.On), input.Time)
	offPressed := d.processChannel(&d.off, toState(input.Off), input.Time)

	if !d.baselined {
		if d.on.Baselined && d.off.Baselined {
			d.baselined = true
		}
		return nil
	}

	var presses []Press

	// Order: power-on first, matching the controller's drain order
	if onPressed {
		presses = append(presses, Press{Timestamp: input.Time, Button: ButtonPowerOn})
	}
	if offPressed {
		presses = append(presses, Press{Timestamp: input.Time, Button: ButtonPowerOff})
	}

	d.presses += len(presses)
	return presses
}

// processChannel handles debounce logic for a single button.
// Returns true on a debounced released-to-pressed transition.
func (d *Detector) processChannel(ch *ChannelState, newState ButtonState, now time.Time) bool {
	if !ch.Baselined {
		if ch.Pending == "" || ch.Pending != newState {
			ch.Pending = newState
			ch.PendingSince = now
			return false
		}

		if now.Sub(ch.PendingSince) >= d.debounceDuration {
			ch.Stable = newState
			ch.Baselined = true
			ch.Pending = ""
		}
		return false
	}

	if newState == ch.Stable {
		ch.Pending = ""
		return false
	}

	if ch.Pending != newState {
		ch.Pending = newState
		ch.PendingSince = now
		return false
	}

	if now.Sub(ch.PendingSince) < d.debounceDuration {
		return false
	}

	ch.Stable = newState
	ch.Pending = ""
	return newState == StatePressed
}

func toState(pressed bool) ButtonState {
	if pressed {
		return StatePressed
	}
	return StateReleased
}

// IsBaselined returns whether both buttons have a stable baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// CurrentState returns the current stable button states.
func (d *Detector) CurrentState() (on ButtonState, off ButtonState) {
	return d.on.Stable, d.off.Stable
}

// Presses returns the number of presses reported since creation.
func (d *Detector) Presses() int {
	return d.presses
}
