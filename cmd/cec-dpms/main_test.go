package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/sweeney/cec-dpms/internal/cec"
	"github.com/sweeney/cec-dpms/internal/config"
	"github.com/sweeney/cec-dpms/internal/gpio"
	"github.com/sweeney/cec-dpms/internal/logging"
	"github.com/sweeney/cec-dpms/internal/mqtt"
	"github.com/sweeney/cec-dpms/internal/signals"
	"github.com/sweeney/cec-dpms/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")

	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

// --- flag and config tests ---

func noEnv(string) (string, bool) { return "", false }

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil, noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device != "/dev/cec0" {
		t.Errorf("device: got %q", cfg.Device)
	}
	if cfg.Debug {
		t.Error("debug should default off")
	}
	if cfg.Poll != time.Second {
		t.Errorf("poll: got %v", cfg.Poll)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("broker should default empty, got %q", cfg.MQTT.Broker)
	}
}

func TestLoadConfigShortFlags(t *testing.T) {
	cfg, err := loadConfig([]string{"-d", "-i", "/dev/cec1"}, noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Debug {
		t.Error("-d should enable debug")
	}
	if cfg.Device != "/dev/cec1" {
		t.Errorf("device: got %q", cfg.Device)
	}
}

func TestLoadConfigLongFlags(t *testing.T) {
	cfg, err := loadConfig([]string{
		"--debug",
		"--input=/dev/cec2",
		"--name", "lounge",
		"--poll", "250ms",
		"--activate-source",
		"--broker", "tcp://broker:1883",
		"--heartbeat", "0",
		"--log-format", "json",
		"--power-on-pin", "17",
		"--debounce", "80ms",
	}, noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device != "/dev/cec2" || cfg.Name != "lounge" || cfg.Poll != 250*time.Millisecond {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !cfg.ActivateSource {
		t.Error("activate-source should be set")
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" || cfg.MQTT.Heartbeat != 0 {
		t.Errorf("unexpected mqtt config: %+v", cfg.MQTT)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("log format: got %q", cfg.Logging.Format)
	}
	if cfg.GPIO.PowerOnPin != 17 || cfg.GPIO.PowerOffPin != -1 || cfg.GPIO.Debounce != 80*time.Millisecond {
		t.Errorf("unexpected gpio config: %+v", cfg.GPIO)
	}
}

func TestLoadConfigFileWithFlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cec-dpms.yaml")
	yaml := "device: /dev/cec3\nname: bedroom\npoll: 2s\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig([]string{"-c", path, "--name", "override"}, noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device != "/dev/cec3" {
		t.Errorf("device from file: got %q", cfg.Device)
	}
	if cfg.Poll != 2*time.Second {
		t.Errorf("poll from file: got %v", cfg.Poll)
	}
	if cfg.Name != "override" {
		t.Errorf("flag should override file, got %q", cfg.Name)
	}
}

func TestLoadConfigEnvWithoutFile(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "CEC_DPMS_DEVICE" {
			return "/dev/cec9", true
		}
		return "", false
	}
	cfg, err := loadConfig(nil, lookup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device != "/dev/cec9" {
		t.Errorf("device from env: got %q", cfg.Device)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cec-dpms.yaml")
	if err := os.WriteFile(path, []byte("device: /dev/cec3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lookup := func(k string) (string, bool) {
		if k == "CEC_DPMS_DEVICE" {
			return "/dev/cec9", true
		}
		return "", false
	}

	cfg, err := loadConfig([]string{"-c", path}, lookup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device != "/dev/cec9" {
		t.Errorf("env should override file, got %q", cfg.Device)
	}
}

func TestLoadConfigFlagRepairsFile(t *testing.T) {
	// buffer_size 0 is only invalid while a broker is set.
	path := filepath.Join(t.TempDir(), "cec-dpms.yaml")
	yaml := "mqtt:\n  broker: tcp://192.168.1.200:1883\n  buffer_size: 0\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := loadConfig([]string{"-c", path}, noEnv); err == nil {
		t.Fatal("expected validation error without the flag")
	}

	cfg, err := loadConfig([]string{"-c", path, "--broker="}, noEnv)
	if err != nil {
		t.Fatalf("flag should be applied before validation: %v", err)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("broker: got %q, want disabled", cfg.MQTT.Broker)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"positional argument", []string{"extra"}},
		{"unknown flag", []string{"--bogus"}},
		{"invalid poll", []string{"--poll", "0s"}},
		{"invalid log format", []string{"--log-format", "xml"}},
		{"missing file", []string{"-c", "/nonexistent/cec-dpms.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(tt.args, noEnv); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadConfigValidationWrapsErrInvalid(t *testing.T) {
	_, err := loadConfig([]string{"--poll=-1s"}, noEnv)
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestLoadConfigHelp(t *testing.T) {
	fs := newFlagSet()
	fs.SetOutput(&bytes.Buffer{})
	if err := fs.Parse([]string{"--help"}); !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("expected ErrHelp, got %v", err)
	}
}

// --- run tests ---

type fakeRegistry struct {
	mu          sync.Mutex
	registered  []signals.Kind
	flags       map[signals.Kind]*signals.Flag
	preset      map[signals.Kind]string // flags raised at registration
	registerErr error
	raised      []signals.Kind
	wake        chan struct{}
	stopped     bool
}

func newFakeRegistry(preset map[signals.Kind]string) *fakeRegistry {
	return &fakeRegistry{
		flags:  make(map[signals.Kind]*signals.Flag),
		preset: preset,
		wake:   make(chan struct{}, 1),
	}
}

func (r *fakeRegistry) Register(kind signals.Kind) (*signals.Flag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, kind)
	if r.registerErr != nil {
		return nil, r.registerErr
	}
	f := signals.NewFlag(kind)
	if src, ok := r.preset[kind]; ok {
		f.Set(src)
	}
	r.flags[kind] = f
	return f, nil
}

func (r *fakeRegistry) Raise(kind signals.Kind, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raised = append(r.raised, kind)
	if f, ok := r.flags[kind]; ok {
		f.Set(source)
	}
	return nil
}

func (r *fakeRegistry) Wake() <-chan struct{} { return r.wake }

func (r *fakeRegistry) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

type testEnv struct {
	env
	conn       *cec.FakeConnection
	reg        *fakeRegistry
	pub        *mqtt.FakePublisher
	openCalls  int
	regCalls   int
	openConfig cec.Config
}

func newTestEnv(preset map[signals.Kind]string) *testEnv {
	te := &testEnv{
		conn: cec.NewFakeConnection(cec.LogicalAddressPlayback1),
		reg:  newFakeRegistry(preset),
		pub:  mqtt.NewFakePublisher(),
	}
	te.env = env{
		hostname: func() (string, error) { return "htpc.lan", nil },
		open: func(c cec.Config) (cec.Connection, error) {
			te.openCalls++
			te.openConfig = c
			return te.conn, nil
		},
		newRegistry: func() registry {
			te.regCalls++
			return te.reg
		},
		newPublisher: func(mqtt.Options) (publisher, error) { return te.pub, nil },
		openButtons: func(string, int, int) (gpio.Reader, error) {
			return nil, errors.New("no gpio in tests")
		},
		network: func() *status.NetworkInfo { return nil },
		now:     func() time.Time { return time.Date(2026, 2, 2, 22, 0, 0, 0, time.UTC) },
	}
	return te
}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return logging.NewWithWriter(buf, config.LoggingConfig{Level: "debug"}, false)
}

func TestRunOpenFailure(t *testing.T) {
	te := newTestEnv(nil)
	openErr := errors.New("no such device")
	te.open = func(cec.Config) (cec.Connection, error) { return nil, openErr }

	var logs bytes.Buffer
	err := run(config.Default(), testLogger(&logs), te.env)
	if !errors.Is(err, openErr) {
		t.Fatalf("expected wrapped open error, got %v", err)
	}
	if !strings.Contains(err.Error(), "/dev/cec0") {
		t.Errorf("error should name the device: %v", err)
	}
	if te.regCalls != 0 || len(te.reg.registered) != 0 {
		t.Error("no trigger registration may be attempted after open fails")
	}
}

func TestRunTerminate(t *testing.T) {
	te := newTestEnv(map[signals.Kind]string{signals.Terminate: "SIGTERM"})

	var logs bytes.Buffer
	if err := run(config.Default(), testLogger(&logs), te.env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(te.conn.PowerOns()) != 0 || len(te.conn.Standbys()) != 0 {
		t.Error("no bus commands expected")
	}
	if !te.conn.Closed() {
		t.Error("connection should be closed")
	}
	if !te.reg.stopped {
		t.Error("registry should be stopped")
	}

	want := []signals.Kind{signals.PowerOn, signals.PowerOff, signals.Terminate}
	if len(te.reg.registered) != len(want) {
		t.Fatalf("registered: got %v", te.reg.registered)
	}
	for i, k := range want {
		if te.reg.registered[i] != k {
			t.Errorf("registered[%d]: got %s, want %s", i, te.reg.registered[i], k)
		}
	}

	out := logs.String()
	for _, line := range []string{"Active source: Playback 1", "Waiting for signals...", "Terminating"} {
		if !strings.Contains(out, line) {
			t.Errorf("missing log %q in\n%s", line, out)
		}
	}
}

func TestRunAdvertisesShortHostName(t *testing.T) {
	te := newTestEnv(map[signals.Kind]string{signals.Terminate: "SIGINT"})

	var logs bytes.Buffer
	if err := run(config.Default(), testLogger(&logs), te.env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if te.openConfig.DeviceName != "htpc" {
		t.Errorf("device name: got %q, want htpc", te.openConfig.DeviceName)
	}
	if te.openConfig.Port != "/dev/cec0" || te.openConfig.DeviceType != cec.DeviceTypePlayback {
		t.Errorf("unexpected open config: %+v", te.openConfig)
	}
	if te.openConfig.OnCommand == nil || te.openConfig.OnLog == nil {
		t.Error("observers should be wired")
	}
}

func TestRunHostnameFailureUsesDefault(t *testing.T) {
	te := newTestEnv(map[signals.Kind]string{signals.Terminate: "SIGINT"})
	te.hostname = func() (string, error) { return "", errors.New("uname failed") }

	var logs bytes.Buffer
	if err := run(config.Default(), testLogger(&logs), te.env); err != nil {
		t.Fatalf("identity failure must not abort startup: %v", err)
	}
	if te.openConfig.DeviceName != "cec-dpms" {
		t.Errorf("device name: got %q, want cec-dpms", te.openConfig.DeviceName)
	}
}

func TestRunRegisterFailure(t *testing.T) {
	te := newTestEnv(nil)
	te.reg.registerErr = signals.ErrStopped

	var logs bytes.Buffer
	err := run(config.Default(), testLogger(&logs), te.env)
	if !errors.Is(err, signals.ErrStopped) {
		t.Fatalf("expected registration error, got %v", err)
	}
	if !te.conn.Closed() {
		t.Error("connection should be closed on failure")
	}
}

func TestRunHandlesPendingTriggersBeforeExit(t *testing.T) {
	te := newTestEnv(map[signals.Kind]string{
		signals.PowerOn:   "SIGUSR1",
		signals.Terminate: "SIGTERM",
	})

	var logs bytes.Buffer
	if err := run(config.Default(), testLogger(&logs), te.env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := te.conn.PowerOns(); len(got) != 1 || got[0] != cec.LogicalAddressTV {
		t.Errorf("expected one PowerOn(TV), got %v", got)
	}
}

func TestRunPublishesLifecycle(t *testing.T) {
	te := newTestEnv(map[signals.Kind]string{signals.Terminate: "SIGTERM"})
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://broker:1883"

	var logs bytes.Buffer
	if err := run(cfg, testLogger(&logs), te.env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := te.pub.SystemEvents
	if len(events) != 2 {
		t.Fatalf("expected STARTUP and SHUTDOWN, got %+v", events)
	}
	if events[0].Event != "STARTUP" || !events[0].Retained {
		t.Errorf("unexpected startup event: %+v", events[0])
	}
	if !strings.Contains(string(events[0].RawPayload), `"logical_address":"Playback 1"`) {
		t.Errorf("startup payload should carry the logical address: %s", events[0].RawPayload)
	}
	if events[1].Event != "SHUTDOWN" || events[1].Reason != "SIGTERM" {
		t.Errorf("unexpected shutdown event: %+v", events[1])
	}
	if !te.pub.Closed {
		t.Error("publisher should be closed")
	}
}

func TestRunPublisherInitFailure(t *testing.T) {
	te := newTestEnv(nil)
	te.newPublisher = func(mqtt.Options) (publisher, error) { return nil, errors.New("bad broker") }
	cfg := config.Default()
	cfg.MQTT.Broker = "broker"

	var logs bytes.Buffer
	if err := run(cfg, testLogger(&logs), te.env); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunButtonsUnavailableKeepsRunning(t *testing.T) {
	te := newTestEnv(map[signals.Kind]string{signals.Terminate: "SIGTERM"})
	cfg := config.Default()
	cfg.GPIO.PowerOnPin = 17

	var logs bytes.Buffer
	if err := run(cfg, testLogger(&logs), te.env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(logs.String(), "GPIO buttons disabled") {
		t.Errorf("expected warning about buttons:\n%s", logs.String())
	}
}

func TestRunButtonsStartAndStop(t *testing.T) {
	te := newTestEnv(map[signals.Kind]string{signals.Terminate: "SIGTERM"})
	reader := gpio.NewFakeReader([]gpio.Sample{{}})
	te.openButtons = func(chip string, on, off int) (gpio.Reader, error) {
		if chip != "gpiochip0" || on != 17 || off != 27 {
			t.Errorf("unexpected button config: %s %d %d", chip, on, off)
		}
		return reader, nil
	}
	cfg := config.Default()
	cfg.GPIO.PowerOnPin = 17
	cfg.GPIO.PowerOffPin = 27

	var logs bytes.Buffer
	if err := run(cfg, testLogger(&logs), te.env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reader.IsClosed() {
		t.Error("button reader should be closed on exit")
	}
}
