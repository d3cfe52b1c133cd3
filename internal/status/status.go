// Package status provides a thread-safe status tracker for the cec-dpms daemon.
// Snapshots feed the MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/cec-dpms/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Device         string
	PollMs         int64
	HeartbeatMs    int64
	Broker         string
	ActivateSource bool
	PowerOnPin     int // negative when the button is disabled
	PowerOffPin    int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	Name           string
	LogicalAddress string
	Counts         logic.ActionCounts
	LastAction     *logic.Action
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetIdentity records the advertised name and the claimed logical address.
func (t *Tracker) SetIdentity(name, logicalAddress string) {
	t.mu.Lock()
	t.snap.Name = name
	t.snap.LogicalAddress = logicalAddress
	t.mu.Unlock()
}

// Record counts an action and keeps it as the most recent one.
func (t *Tracker) Record(a logic.Action) {
	t.mu.Lock()
	t.snap.Counts.Add(a)
	last := a
	t.snap.LastAction = &last
	t.mu.Unlock()
}

// Counts returns the action counters.
func (t *Tracker) Counts() logic.ActionCounts {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Counts
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastAction != nil {
		last := *s.LastAction
		s.LastAction = &last
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
