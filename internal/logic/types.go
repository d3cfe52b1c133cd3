// Package logic contains pure business logic for cec-dpms.
// This package has NO external dependencies (no CEC, GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// ActionType identifies the bus command the controller decided on.
type ActionType string

const (
	ActionPowerOn ActionType = "POWER_ON"
	ActionStandby ActionType = "STANDBY"
)

// Outcome is the result of one controller decision.
type Outcome string

const (
	OutcomeSent    Outcome = "SENT"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeIgnored Outcome = "IGNORED" // standby suppressed, we are not the active source
)

// Action records one flag-triggered decision, whether or not a command went out.
type Action struct {
	Timestamp time.Time
	Type      ActionType
	// Trigger names what raised the flag, e.g. "SIGUSR1" or "GPIO".
	Trigger string
	// Target is the addressed device, e.g. "TV".
	Target string
	// ActiveSource is the active source observed before a standby decision.
	// Empty for power-on.
	ActiveSource string
	Outcome      Outcome
	Err          string
}

// ActionCounts tracks decisions since startup.
type ActionCounts struct {
	PowerOn int // power-on commands sent
	Standby int // standby commands sent
	Ignored int // standby requests suppressed
	Failed  int // commands the bus rejected
}

// Add counts a single action.
func (c *ActionCounts) Add(a Action) {
	switch a.Outcome {
	case OutcomeFailed:
		c.Failed++
	case OutcomeIgnored:
		c.Ignored++
	case OutcomeSent:
		switch a.Type {
		case ActionPowerOn:
			c.PowerOn++
		case ActionStandby:
			c.Standby++
		}
	}
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    ActionCounts
}

// ButtonState is the debounced state of a push button.
type ButtonState string

const (
	StateReleased ButtonState = "RELEASED"
	StatePressed  ButtonState = "PRESSED"
)

// Button identifies one of the two local push buttons.
type Button string

const (
	ButtonPowerOn  Button = "POWER_ON"
	ButtonPowerOff Button = "POWER_OFF"
)

// Press is emitted once per debounced released-to-pressed edge.
type Press struct {
	Timestamp time.Time
	Button    Button
}

// ChannelState tracks debounce state for a single button.
type ChannelState struct {
	// Current stable (debounced) state
	Stable ButtonState
	// Pending state during debounce
	Pending ButtonState
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Input represents a single sample of logical button states.
type Input struct {
	On   bool // true = pressed (already inverted from the active-low line)
	Off  bool
	Time time.Time
}
