// Package config loads daemon settings from an optional YAML file with
// environment overrides. Command-line flags are applied on top by main.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the root configuration structure.
type Config struct {
	// Device is the CEC adapter path.
	Device string `yaml:"device"`

	// Name overrides the advertised OSD name. Empty resolves the host name.
	Name string `yaml:"name"`

	Debug bool `yaml:"debug"`

	// Poll is the controller tick interval.
	Poll time.Duration `yaml:"poll"`

	// ActivateSource announces this device as active source after opening
	// and after every power-on request.
	ActivateSource bool `yaml:"activate_source"`

	Logging LoggingConfig `yaml:"logging"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	GPIO    GPIOConfig    `yaml:"gpio"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	// Format is "text" or "json".
	Format string `yaml:"format"`

	// Level is trace, debug, info, warn or error. Debug mode forces debug
	// unless trace was asked for.
	Level string `yaml:"level"`
}

// MQTTConfig contains the optional event publisher settings.
type MQTTConfig struct {
	// Broker, e.g. tcp://192.168.1.200:1883. Empty disables publishing.
	Broker string `yaml:"broker"`

	ClientID string `yaml:"client_id"`

	// TopicPrefix defaults to cec-dpms/<name>.
	TopicPrefix string `yaml:"topic_prefix"`

	// Heartbeat is the system heartbeat interval; zero disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`

	// BufferSize bounds the messages kept while disconnected.
	BufferSize int `yaml:"buffer_size"`
}

// GPIOConfig contains the optional push-button settings.
type GPIOConfig struct {
	Chip string `yaml:"chip"`

	// PowerOnPin and PowerOffPin are line offsets; negative disables a button.
	PowerOnPin  int `yaml:"power_on_pin"`
	PowerOffPin int `yaml:"power_off_pin"`

	Poll     time.Duration `yaml:"poll"`
	Debounce time.Duration `yaml:"debounce"`
}

// Enabled reports whether any button is configured.
func (g GPIOConfig) Enabled() bool {
	return g.PowerOnPin >= 0 || g.PowerOffPin >= 0
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Device: "/dev/cec0",
		Poll:   time.Second,
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
		MQTT: MQTTConfig{
			Heartbeat:  15 * time.Minute,
			BufferSize: 100,
		},
		GPIO: GPIOConfig{
			Chip:        "gpiochip0",
			PowerOnPin:  -1,
			PowerOffPin: -1,
			Poll:        20 * time.Millisecond,
			Debounce:    50 * time.Millisecond,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults. Environment overrides are applied and the result validated.
func Load(path string) (*Config, error) {
	cfg, err := Decode(path)
	if err != nil {
		return nil, err
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode reads the YAML file at path over the defaults without applying
// overrides or validating. An empty path returns the defaults.
func Decode(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// envPrefix is prepended to every override, e.g. CEC_DPMS_DEVICE.
const envPrefix = "CEC_DPMS_"

// ApplyEnv applies CEC_DPMS_* overrides using lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}

	var errs []string
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	if v, ok := get("DEVICE"); ok {
		cfg.Device = v
	}
	if v, ok := get("NAME"); ok {
		cfg.Name = v
	}
	setBool("DEBUG", &cfg.Debug)
	setDuration("POLL", &cfg.Poll)
	setBool("ACTIVATE_SOURCE", &cfg.ActivateSource)

	if v, ok := get("LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}

	if v, ok := get("MQTT_BROKER"); ok {
		cfg.MQTT.Broker = v
	}
	if v, ok := get("MQTT_CLIENT_ID"); ok {
		cfg.MQTT.ClientID = v
	}
	if v, ok := get("MQTT_TOPIC_PREFIX"); ok {
		cfg.MQTT.TopicPrefix = v
	}
	setDuration("MQTT_HEARTBEAT", &cfg.MQTT.Heartbeat)

	if v, ok := get("GPIO_CHIP"); ok {
		cfg.GPIO.Chip = v
	}
	setInt("GPIO_POWER_ON_PIN", &cfg.GPIO.PowerOnPin)
	setInt("GPIO_POWER_OFF_PIN", &cfg.GPIO.PowerOffPin)

	if len(errs) > 0 {
		return fmt.Errorf("%w: environment: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Device == "" {
		errs = append(errs, "device is required")
	}
	if c.Poll <= 0 {
		errs = append(errs, "poll must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be text or json", c.Logging.Format))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not a known level", c.Logging.Level))
	}

	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, "mqtt.heartbeat must not be negative")
	}
	if c.MQTT.Broker != "" && c.MQTT.BufferSize < 1 {
		errs = append(errs, "mqtt.buffer_size must be at least 1")
	}

	if c.GPIO.Enabled() {
		if c.GPIO.Chip == "" {
			errs = append(errs, "gpio.chip is required when a button pin is set")
		}
		if c.GPIO.PowerOnPin >= 0 && c.GPIO.PowerOnPin == c.GPIO.PowerOffPin {
			errs = append(errs, "gpio.power_on_pin and gpio.power_off_pin must differ")
		}
		if c.GPIO.Poll <= 0 {
			errs = append(errs, "gpio.poll must be positive")
		}
		if c.GPIO.Debounce < 0 {
			errs = append(errs, "gpio.debounce must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}
