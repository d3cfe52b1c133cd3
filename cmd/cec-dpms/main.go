// Command cec-dpms powers an HDMI-CEC display on and off in response to
// process signals: SIGUSR1 wakes the TV, SIGUSR2 puts it into standby when
// this device is the active source, SIGTERM or SIGINT exits.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/sweeney/cec-dpms/internal/buttons"
	"github.com/sweeney/cec-dpms/internal/cec"
	"github.com/sweeney/cec-dpms/internal/config"
	"github.com/sweeney/cec-dpms/internal/controller"
	"github.com/sweeney/cec-dpms/internal/gpio"
	"github.com/sweeney/cec-dpms/internal/identity"
	"github.com/sweeney/cec-dpms/internal/logging"
	"github.com/sweeney/cec-dpms/internal/mqtt"
	"github.com/sweeney/cec-dpms/internal/signals"
	"github.com/sweeney/cec-dpms/internal/status"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "cec-dpms: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, cfg.Debug)
	slog.SetDefault(logger)

	if err := run(cfg, logger, defaultEnv()); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// newFlagSet declares the command line. Flags left unset keep the value
// from the config file.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("cec-dpms", pflag.ContinueOnError)
	d := config.Default()

	fs.BoolP("debug", "d", false, "enable debug logging")
	fs.StringP("input", "i", d.Device, "CEC adapter device path")
	fs.StringP("config", "c", "", "YAML configuration file")
	fs.String("name", "", "advertised OSD name (default: short host name)")
	fs.Duration("poll", d.Poll, "controller poll interval")
	fs.Bool("activate-source", false, "announce this device as active source on start and power on")
	fs.String("log-format", d.Logging.Format, "log format: text or json")
	fs.String("log-level", d.Logging.Level, "log level: trace, debug, info, warn or error")
	fs.String("broker", "", "MQTT broker URL, e.g. tcp://192.168.1.200:1883 (empty disables)")
	fs.Duration("heartbeat", d.MQTT.Heartbeat, "MQTT heartbeat interval (0 to disable)")
	fs.String("gpio-chip", d.GPIO.Chip, "GPIO chip for the power buttons")
	fs.Int("power-on-pin", d.GPIO.PowerOnPin, "GPIO line of the power-on button (-1 disables)")
	fs.Int("power-off-pin", d.GPIO.PowerOffPin, "GPIO line of the power-off button (-1 disables)")
	fs.Duration("debounce", d.GPIO.Debounce, "button debounce duration")
	return fs
}

// loadConfig parses args, decodes the config file, applies environment
// overrides and then the flags the user set. Validation runs once, last.
func loadConfig(args []string, lookup func(string) (string, bool)) (*config.Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	path, _ := fs.GetString("config")
	cfg, err := config.Decode(path)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := applyFlags(fs, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetBool(name)
		}
	}
	duration := func(name string, dst *time.Duration) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetDuration(name)
		}
	}
	integer := func(name string, dst *int) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetInt(name)
		}
	}

	boolean("debug", &cfg.Debug)
	str("input", &cfg.Device)
	str("name", &cfg.Name)
	duration("poll", &cfg.Poll)
	boolean("activate-source", &cfg.ActivateSource)
	str("log-format", &cfg.Logging.Format)
	str("log-level", &cfg.Logging.Level)
	str("broker", &cfg.MQTT.Broker)
	duration("heartbeat", &cfg.MQTT.Heartbeat)
	str("gpio-chip", &cfg.GPIO.Chip)
	integer("power-on-pin", &cfg.GPIO.PowerOnPin)
	integer("power-off-pin", &cfg.GPIO.PowerOffPin)
	duration("debounce", &cfg.GPIO.Debounce)
	return err
}

// registry is the part of *signals.Registry that run uses.
type registry interface {
	Register(kind signals.Kind) (*signals.Flag, error)
	Raise(kind signals.Kind, source string) error
	Wake() <-chan struct{}
	Stop()
}

// publisher is what the controller publishes to and samples for status.
type publisher interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

// env holds the process-level collaborators so tests can replace them.
type env struct {
	hostname     func() (string, error)
	open         func(cec.Config) (cec.Connection, error)
	newRegistry  func() registry
	newPublisher func(mqtt.Options) (publisher, error)
	openButtons  func(chip string, on, off int) (gpio.Reader, error)
	network      func() *status.NetworkInfo
	now          func() time.Time
}

func defaultEnv() env {
	return env{
		hostname: os.Hostname,
		open: func(c cec.Config) (cec.Connection, error) {
			conn, err := cec.Open(c)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		newRegistry: func() registry { return signals.NewRegistry() },
		newPublisher: func(o mqtt.Options) (publisher, error) {
			p, err := mqtt.NewRealPublisher(o)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		openButtons: func(chip string, on, off int) (gpio.Reader, error) {
			r, err := gpio.NewRealReader(chip, on, off)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
		network: readNetworkInfo,
		now:     time.Now,
	}
}

func run(cfg *config.Config, logger *slog.Logger, e env) error {
	startTime := e.now()
	name := identity.Choose(cfg.Name, e.hostname)

	tracker := status.NewTracker(startTime, status.Config{
		Device:         cfg.Device,
		PollMs:         cfg.Poll.Milliseconds(),
		HeartbeatMs:    cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:         cfg.MQTT.Broker,
		ActivateSource: cfg.ActivateSource,
		PowerOnPin:     cfg.GPIO.PowerOnPin,
		PowerOffPin:    cfg.GPIO.PowerOffPin,
	})
	if net := e.network(); net != nil {
		tracker.SetNetwork(net)
	}

	conn, err := e.open(cec.Config{
		Port:           cfg.Device,
		DeviceName:     name,
		DeviceType:     cec.DeviceTypePlayback,
		ActivateSource: cfg.ActivateSource,
		OnCommand:      controller.CommandObserver(logger),
		OnLog:          controller.LogObserver(logger),
	})
	if err != nil {
		return fmt.Errorf("open cec adapter %s: %w", cfg.Device, err)
	}
	defer conn.Close()

	self := conn.LogicalAddress()
	tracker.SetIdentity(name, self.String())
	logger.Info("CEC connection opened", "device", cfg.Device, "name", name, "logical_address", self.String())

	reg := e.newRegistry()
	defer reg.Stop()

	var flags controller.Flags
	for _, r := range []struct {
		kind signals.Kind
		dst  **signals.Flag
	}{
		{signals.PowerOn, &flags.PowerOn},
		{signals.PowerOff, &flags.PowerOff},
		{signals.Terminate, &flags.Terminate},
	} {
		f, err := reg.Register(r.kind)
		if err != nil {
			return fmt.Errorf("register %s trigger: %w", r.kind, err)
		}
		*r.dst = f
	}

	var pub publisher = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = "cec-dpms-" + name
		}
		p, err := e.newPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   clientID,
			Topics:     mqtt.NewTopics(cfg.MQTT.TopicPrefix, name),
			BufferSize: cfg.MQTT.BufferSize,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		pub = p
		defer pub.Close()
	}

	startup := mqtt.SystemEvent{
		Timestamp:  startTime,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "STARTUP", ""),
	}
	if err := pub.PublishSystem(startup); err != nil {
		logger.Warn("failed to publish startup event", "error", err)
	}

	if cfg.GPIO.Enabled() {
		stop := startButtons(cfg.GPIO, reg, logger, e)
		defer stop()
	}

	logger.Info("Active source: " + conn.ActiveSource().String())
	logger.Info("Waiting for signals...")

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	ctrl := controller.New(controller.Options{
		Bus:        conn,
		Flags:      flags,
		Publisher:  pub,
		MQTTStatus: pub,
		Tracker:    tracker,
		Network:    e.network,
		Heartbeat:  cfg.MQTT.Heartbeat,
		Logger:     logger,
		Now:        e.now,
	})
	return ctrl.Run(ticker.C, reg.Wake())
}

// startButtons runs the GPIO watcher until the returned stop is called.
// Buttons are a convenience: if the lines cannot be opened the daemon keeps
// running on signals alone.
func startButtons(cfg config.GPIOConfig, reg registry, logger *slog.Logger, e env) (stop func()) {
	reader, err := e.openButtons(cfg.Chip, cfg.PowerOnPin, cfg.PowerOffPin)
	if err != nil {
		logger.Warn("GPIO buttons disabled", "chip", cfg.Chip, "error", err)
		return func() {}
	}

	w := buttons.NewWatcher(reader, reg, cfg.Debounce, logger)
	ticker := time.NewTicker(cfg.Poll)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ticker.C, done)
	}()

	logger.Info("GPIO buttons enabled", "chip", cfg.Chip,
		"power_on_pin", cfg.PowerOnPin, "power_off_pin", cfg.PowerOffPin)

	return func() {
		close(done)
		wg.Wait()
		ticker.Stop()
		if err := reader.Close(); err != nil {
			logger.Warn("gpio close failed", "error", err)
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
