package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Adapter AdapterConfig `yaml:"adapter"`
	Scan    ScanConfig    `yaml:"scan"`
	Connect ConnectConfig `yaml:"connect"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Log     LogConfig     `yaml:"log"`
	Output  OutputConfig  `yaml:"output"`
}

// AdapterConfig selects the host radio.
type AdapterConfig struct {
	Backend string `yaml:"backend"` // "tinygo" or "goble"
	ID      string `yaml:"id"`      // e.g. "hci0"; empty selects the default adapter
}

// ScanConfig holds discovery settings.
type ScanConfig struct {
	Capacity int           `yaml:"capacity"`
	Duration time.Duration `yaml:"duration"` // 0 scans until stopped
}

// ConnectConfig holds link settings.
type ConnectConfig struct {
	Timeout time.Duration `yaml:"timeout"` // 0 relies on the radio stack
}

// SensorConfig holds category client settings.
type SensorConfig struct {
	StaleAfter           time.Duration `yaml:"stale_after"`
	WheelCircumferenceMM float64       `yaml:"wheel_circumference_mm"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// OutputConfig holds event output settings.
type OutputConfig struct {
	EventsFile string `yaml:"events_file"` // JSON lines journal; empty disables
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "zswcentral")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Adapter: AdapterConfig{
			Backend: "tinygo",
		},
		Scan: ScanConfig{
			Capacity: 5,
			Duration: 30 * time.Second,
		},
		Sensor: SensorConfig{
			StaleAfter:           10 * time.Second,
			WheelCircumferenceMM: 2105,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

const defaultConfigYAML = `# zswcentral configuration
#
# adapter.backend selects the host BLE stack: "tinygo" (BlueZ over D-Bus,
# CoreBluetooth, WinRT) or "goble" (raw HCI socket, Linux only).
adapter:
  backend: tinygo
  id: ""

scan:
  # Peripherals listed per scan session.
  capacity: 5
  # How long "scan" listens; 0 scans until interrupted.
  duration: 30s

connect:
  # 0 leaves the connect timeout to the radio stack.
  timeout: 0s

sensor:
  # Measurements older than this are reported as stale.
  stale_after: 10s
  wheel_circumference_mm: 2105

log:
  level: info   # debug, info, warn, error
  format: text  # text or json

output:
  # Append every discovery, status and measurement as JSON lines.
  events_file: ""
`

// WriteDefault writes a commented default config to DefaultConfigPath.
// It returns the written path, or "" without touching anything if a config
// file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !os.IsNotExist(err) {
		return "", errors.Wrap(err, "checking config file")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "creating config dir")
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return "", errors.Wrap(err, "writing config file")
	}
	return path, nil
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in output.events_file is expanded to the user's
// home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}

	cfg.Output.EventsFile = expandTilde(cfg.Output.EventsFile)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Adapter.Backend {
	case "tinygo", "goble":
	default:
		return errors.Errorf("adapter.backend must be \"tinygo\" or \"goble\", got %q", c.Adapter.Backend)
	}

	if c.Scan.Capacity <= 0 {
		return errors.New("scan.capacity must be > 0")
	}
	if c.Scan.Duration < 0 {
		return errors.New("scan.duration must not be negative")
	}

	if c.Connect.Timeout < 0 {
		return errors.New("connect.timeout must not be negative")
	}

	if c.Sensor.StaleAfter <= 0 {
		return errors.New("sensor.stale_after must be > 0")
	}
	if c.Sensor.WheelCircumferenceMM <= 0 {
		return errors.New("sensor.wheel_circumference_mm must be > 0")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}

	return nil
}

// ParseLogLevel converts a level name to a logrus level. Unknown names
// map to info.
func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
