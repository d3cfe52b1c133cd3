// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/cec-dpms/internal/logic"
)

// DefaultTopicRoot is prefixed with the device name when no prefix is set.
const DefaultTopicRoot = "cec-dpms"

// Topics holds the resolved publish topics.
type Topics struct {
	Events string // controller actions
	System string // lifecycle and heartbeat
}

// NewTopics derives the topics from prefix, or from cec-dpms/<name> when
// prefix is empty.
func NewTopics(prefix, name string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicRoot + "/" + name
	}
	return Topics{
		Events: prefix + "/events",
		System: prefix + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishAction sends a controller action to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishAction(action logic.Action) error

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

// ActionPayload represents the MQTT message payload for a controller action.
type ActionPayload struct {
	Action ActionInner `json:"action"`
}

// ActionInner contains the action details.
type ActionInner struct {
	Timestamp    string `json:"timestamp"`
	Type         string `json:"type"`
	Trigger      string `json:"trigger"`
	Target       string `json:"target"`
	ActiveSource string `json:"active_source,omitempty"`
	Outcome      string `json:"outcome"`
	Error        string `json:"error,omitempty"`
}

// FormatActionPayload creates the JSON payload for a controller action.
func FormatActionPayload(action logic.Action) ([]byte, error) {
	payload := ActionPayload{
		Action: ActionInner{
			Timestamp:    action.Timestamp.UTC().Format(time.RFC3339),
			Type:         string(action.Type),
			Trigger:      action.Trigger,
			Target:       action.Target,
			ActiveSource: action.ActiveSource,
			Outcome:      string(action.Outcome),
			Error:        action.Err,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
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
			Event:  event.Event,
			Reason: event.Reason,
		},
	}
	if !event.Timestamp.IsZero() {
		payload.System.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(payload)
}
