package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Bounds for the triggered-scene hold duration.
const (
	MinTriggerSeconds = 0.5
	MaxTriggerSeconds = 300.0
)

// Config is the application configuration.
type Config struct {
	Logger  LogConf
	DMX     DMXConf
	Trigger TriggerConf
	HTTP    HTTPConf
	Storage StorageConf
	MQTT    MQTTConf
}

type LogConf struct {
	Level string `toml:"log-level"`
}

type DMXConf struct {
	// Port is the serial device path, or "auto" to scan for an FTDI
	// adapter. Overridable with DMX_PORT.
	Port        string `toml:"port"`
	RefreshRate int    `toml:"refresh-rate"` // frames per second
}

type TriggerConf struct {
	Pin             string  `toml:"pin"`         // GPIO line name, e.g. "GPIO17"
	DurationSeconds float64 `toml:"duration"`    // triggered-scene hold time
	DebounceMS      int     `toml:"debounce-ms"` // contact debounce window
}

type HTTPConf struct {
	Listen string `toml:"listen"`
	// Token guards /api/ when non-empty. Overridable with DMX_API_TOKEN.
	Token string `toml:"token"`
}

type StorageConf struct {
	// Path of the persisted scenes/config document. Overridable with
	// DMX_CONFIG_FILE.
	Path string `toml:"path"`
}

type MQTTConf struct {
	Enabled     bool   `toml:"enabled"`
	ClientID    string `toml:"clientID"`
	Host        string `toml:"server"`
	Port        string `toml:"port"`
	User        string `toml:"user"`
	Password    string `toml:"password"`
	TopicPrefix string `toml:"topic-prefix"`
}

// NewConfig loads configuration from a TOML file, applying defaults and
// environment overrides. A missing file is not an error; the defaults
// mirror the controller's stand-alone setup.
func NewConfig(path string) (*Config, error) {
	cfg := Config{
		Logger: LogConf{Level: "info"},
		DMX: DMXConf{
			Port:        "auto",
			RefreshRate: 44,
		},
		Trigger: TriggerConf{
			Pin:             "GPIO17",
			DurationSeconds: 10.0,
			DebounceMS:      300,
		},
		HTTP:    HTTPConf{Listen: ":5000"},
		Storage: StorageConf{Path: "/var/lib/dmx/config.json"},
		MQTT: MQTTConf{
			ClientID:    "djpower-dmx",
			Port:        "1883",
			TopicPrefix: "djpower-dmx",
		},
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if v := os.Getenv("DMX_PORT"); v != "" {
		cfg.DMX.Port = v
	}
	if v := os.Getenv("DMX_API_TOKEN"); v != "" {
		cfg.HTTP.Token = v
	}
	if v := os.Getenv("DMX_CONFIG_FILE"); v != "" {
		cfg.Storage.Path = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DMX.RefreshRate < 1 || c.DMX.RefreshRate > 50 {
		return fmt.Errorf("config: refresh-rate %d outside 1..50", c.DMX.RefreshRate)
	}
	if c.Trigger.DurationSeconds < MinTriggerSeconds || c.Trigger.DurationSeconds > MaxTriggerSeconds {
		return fmt.Errorf("config: trigger duration %.1fs outside %.1f..%.0f",
			c.Trigger.DurationSeconds, MinTriggerSeconds, MaxTriggerSeconds)
	}
	if c.Trigger.DebounceMS < 0 {
		return fmt.Errorf("config: debounce-ms must not be negative")
	}
	return nil
}
