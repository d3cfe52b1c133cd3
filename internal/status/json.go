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
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Name           string       `json:"name"`
	LogicalAddress string       `json:"logical_address"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Counts         CountsJSON   `json:"action_counts"`
	LastAction     *ActionJSON  `json:"last_action,omitempty"`
	Network        *NetworkJSON `json:"network,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of action counts.
type CountsJSON struct {
	PowerOn int `json:"power_on"`
	Standby int `json:"standby"`
	Ignored int `json:"ignored"`
	Failed  int `json:"failed"`
}

// ActionJSON summarises the most recent action.
type ActionJSON struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Trigger   string `json:"trigger"`
	Outcome   string `json:"outcome"`
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
	Device         string `json:"device"`
	PollMs         int64  `json:"poll_ms"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	Broker         string `json:"broker"`
	ActivateSource bool   `json:"activate_source"`
	PowerOnPin     *int   `json:"power_on_pin,omitempty"`
	PowerOffPin    *int   `json:"power_off_pin,omitempty"`
}

func pin(p int) *int {
	if p < 0 {
		return nil
	}
	return &p
}

func buildInner(snap Snapshot) StatusInner {
	la := snap.LogicalAddress
	if la == "" {
		la = "UNKNOWN"
	}

	inner := StatusInner{
		Name:           snap.Name,
		LogicalAddress: la,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			PowerOn: snap.Counts.PowerOn,
			Standby: snap.Counts.Standby,
			Ignored: snap.Counts.Ignored,
			Failed:  snap.Counts.Failed,
		},
		Config: ConfigJSON{
			Device:         snap.Config.Device,
			PollMs:         snap.Config.PollMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			Broker:         snap.Config.Broker,
			ActivateSource: snap.Config.ActivateSource,
			PowerOnPin:     pin(snap.Config.PowerOnPin),
			PowerOffPin:    pin(snap.Config.PowerOffPin),
		},
	}

	if a := snap.LastAction; a != nil {
		inner.LastAction = &ActionJSON{
			Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
			Type:      string(a.Type),
			Trigger:   a.Trigger,
			Outcome:   string(a.Outcome),
		}
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

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
