// Package controller drains the trigger flags and drives the CEC bus.
package controller

import (
	"log/slog"
	"time"

	"github.com/sweeney/cec-dpms/internal/cec"
	"github.com/sweeney/cec-dpms/internal/logging"
	"github.com/sweeney/cec-dpms/internal/logic"
	"github.com/sweeney/cec-dpms/internal/mqtt"
	"github.com/sweeney/cec-dpms/internal/signals"
	"github.com/sweeney/cec-dpms/internal/status"
)

// Bus is the part of cec.Connection the controller needs.
type Bus interface {
	ActiveSource() cec.LogicalAddress
	LogicalAddress() cec.LogicalAddress
	PowerOn(target cec.LogicalAddress) error
	Standby(target cec.LogicalAddress) error
}

// Flags are the pending-event indicators the controller drains.
// A nil flag is never pending.
type Flags struct {
	PowerOn   *signals.Flag
	PowerOff  *signals.Flag
	Terminate *signals.Flag
}

// State is the controller lifecycle state.
type State int

const (
	Running State = iota
	Terminating
)

func (s State) String() string {
	if s == Terminating {
		return "terminating"
	}
	return "running"
}

// Target is the device every command is addressed to.
const Target = cec.LogicalAddressTV

// Options configures a Controller. Bus and Flags are required.
type Options struct {
	Bus   Bus
	Flags Flags

	// Publisher receives actions and lifecycle events. Nil discards them.
	Publisher mqtt.Publisher
	// MQTTStatus is sampled into status snapshots when set.
	MQTTStatus mqtt.ConnectionStatus
	// Tracker records actions when set.
	Tracker *status.Tracker
	// Network refreshes network info before each heartbeat when set.
	Network func() *status.NetworkInfo

	// Heartbeat is the interval between HEARTBEAT events. Zero disables.
	Heartbeat time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Controller is the power-state controller.
type Controller struct {
	bus        Bus
	flags      Flags
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	network    func() *status.NetworkInfo
	interval   time.Duration
	heartbeat  *logic.Heartbeat
	counts     logic.ActionCounts
	logger     *slog.Logger
	now        func() time.Time
	state      State
}

// New creates a controller in the Running state.
func New(opts Options) *Controller {
	c := &Controller{
		bus:        opts.Bus,
		flags:      opts.Flags,
		publisher:  opts.Publisher,
		mqttStatus: opts.MQTTStatus,
		tracker:    opts.Tracker,
		network:    opts.Network,
		interval:   opts.Heartbeat,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if c.publisher == nil {
		c.publisher = mqtt.NopPublisher{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.heartbeat = logic.NewHeartbeat(c.now())
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Counts returns the actions taken so far.
func (c *Controller) Counts() logic.ActionCounts {
	return c.counts
}

// Step handles every raised flag once, in the order power-on, power-off,
// terminate. Nothing is sent once the controller is terminating.
func (c *Controller) Step(now time.Time) State {
	if c.state == Terminating {
		return c.state
	}

	if trigger, ok := take(c.flags.PowerOn); ok {
		c.powerOn(now, trigger)
	}
	if trigger, ok := take(c.flags.PowerOff); ok {
		c.standby(now, trigger)
	}
	if _, ok := take(c.flags.Terminate); ok {
		c.state = Terminating
	}
	return c.state
}

// Run steps on every tick or wake until terminated, then publishes the
// SHUTDOWN event. Flags already raised are handled before the first wait.
func (c *Controller) Run(tick <-chan time.Time, wake <-chan struct{}) error {
	now := c.now()
	for {
		if c.Step(now) == Terminating {
			c.shutdown()
			return nil
		}

		select {
		case <-wake:
			now = c.now()
			logging.Trace(c.logger, "woken by trigger")
		case now = <-tick:
			c.checkHeartbeat(now)
		}
	}
}

func take(f *signals.Flag) (string, bool) {
	if f == nil || !f.Take() {
		return "", false
	}
	return f.Source(), true
}

func (c *Controller) powerOn(now time.Time, trigger string) {
	a := logic.Action{
		Timestamp: now,
		Type:      logic.ActionPowerOn,
		Trigger:   trigger,
		Target:    Target.String(),
	}

	c.logger.Info("Powering on", "target", Target.String(), "trigger", trigger)
	if err := c.bus.PowerOn(Target); err != nil {
		c.logger.Error("power on failed", "target", Target.String(), "error", err)
		a.Outcome = logic.OutcomeFailed
		a.Err = err.Error()
	} else {
		a.Outcome = logic.OutcomeSent
	}
	c.record(a)
}

func (c *Controller) standby(now time.Time, trigger string) {
	active := c.bus.ActiveSource()
	self := c.bus.LogicalAddress()
	a := logic.Action{
		Timestamp:    now,
		Type:         logic.ActionStandby,
		Trigger:      trigger,
		Target:       Target.String(),
		ActiveSource: active.String(),
	}

	switch {
	case !registered(self) || active != self:
		c.logger.Info("request ignored: we are not an active source",
			"active_source", active.String(), "self", self.String(), "trigger", trigger)
		a.Outcome = logic.OutcomeIgnored
	default:
		c.logger.Info("Entering standby", "target", Target.String(), "trigger", trigger)
		if err := c.bus.Standby(Target); err != nil {
			c.logger.Error("standby failed", "target", Target.String(), "error", err)
			a.Outcome = logic.OutcomeFailed
			a.Err = err.Error()
		} else {
			a.Outcome = logic.OutcomeSent
		}
	}
	c.record(a)
}

// registered reports whether a is an address the bus assigned to us.
// Broadcast doubles as "unregistered" for a device without a claim.
func registered(a cec.LogicalAddress) bool {
	return a.Valid() && a != cec.LogicalAddressBroadcast
}

func (c *Controller) record(a logic.Action) {
	c.counts.Add(a)
	if c.tracker != nil {
		c.tracker.Record(a)
	}
	if err := c.publisher.PublishAction(a); err != nil {
		// Publishing is best effort; the bus command already happened.
		c.logger.Warn("publish action failed", "error", err)
	}
}

func (c *Controller) checkHeartbeat(t time.Time) {
	hb := c.heartbeat.Check(t, c.interval, c.counts)
	if hb == nil {
		return
	}

	c.logger.Info("heartbeat",
		"uptime", hb.Uptime.Round(time.Second),
		"power_on", hb.Counts.PowerOn,
		"standby", hb.Counts.Standby,
		"ignored", hb.Counts.Ignored,
		"failed", hb.Counts.Failed)

	event := mqtt.SystemEvent{
		Timestamp: hb.Timestamp,
		Event:     "HEARTBEAT",
	}
	if c.tracker != nil {
		if c.network != nil {
			if net := c.network(); net != nil {
				c.tracker.SetNetwork(net)
			}
		}
		c.refreshMQTT()
		event.RawPayload = status.FormatStatusEvent(c.tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := c.publisher.PublishSystem(event); err != nil {
		c.logger.Warn("heartbeat publish failed", "error", err)
	}
}

func (c *Controller) shutdown() {
	reason := "UNKNOWN"
	if c.flags.Terminate != nil && c.flags.Terminate.Source() != "" {
		reason = c.flags.Terminate.Source()
	}
	c.logger.Info("Terminating", "reason", reason)

	event := mqtt.SystemEvent{
		Timestamp: c.now(),
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if c.tracker != nil {
		c.refreshMQTT()
		event.RawPayload = status.FormatStatusEvent(c.tracker.Snapshot(), "SHUTDOWN", reason)
	}
	if err := c.publisher.PublishSystem(event); err != nil {
		c.logger.Warn("failed to publish shutdown event", "error", err)
	}
}

func (c *Controller) refreshMQTT() {
	if c.mqttStatus != nil {
		c.tracker.SetMQTTConnected(c.mqttStatus.IsConnected())
	}
}
