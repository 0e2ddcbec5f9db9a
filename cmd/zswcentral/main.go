package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bit-cook/ZSWatch/internal/ble"
	"github.com/bit-cook/ZSWatch/internal/ble/goble"
	"github.com/bit-cook/ZSWatch/internal/central"
	"github.com/bit-cook/ZSWatch/internal/config"
	"github.com/bit-cook/ZSWatch/internal/logging"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config   string `help:"Path to config file (default: ~/.config/zswcentral/config.yaml)." type:"path"`
	LogLevel string `help:"Override log.level (debug, info, warn, error)." name:"log-level"`
	JSON     bool   `help:"Print events as JSON lines." name:"json"`
}

type cli struct {
	Globals

	Scan    ScanCmd    `cmd:"" help:"List peripherals of a category."`
	Connect ConnectCmd `cmd:"" help:"Connect to a peripheral and print its measurements."`
	Cfg     ConfigCmd  `cmd:"" name:"config" help:"Manage the config file."`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("zswcentral"),
		kong.Description("BLE central for heart rate and cycling speed/cadence sensors."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&c.Globals)
	ctx.FatalIfErrorf(err)
}

// app is the wiring shared by the radio commands.
type app struct {
	cfg *config.Config
	log *logrus.Logger
	mgr *central.Manager
	out *printer
}

// setup loads the config, builds the logger, the adapter and the manager.
// The manager is not started.
func (g *Globals) setup() (*app, error) {
	boot := logging.New(levelOr(g.LogLevel, "info"), "text", os.Stderr)

	cfg, err := loadConfig(g.Config, boot)
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation")
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if !g.JSON {
		printBanner(cfg)
	}

	adapter, err := newAdapter(cfg, log)
	if err != nil {
		return nil, err
	}

	out, err := newPrinter(os.Stdout, g.JSON, cfg.Output.EventsFile)
	if err != nil {
		return nil, err
	}

	mgr := central.New(adapter,
		central.WithLogger(log),
		central.WithRegistryCapacity(cfg.Scan.Capacity),
		central.WithStaleAfter(cfg.Sensor.StaleAfter),
		central.WithConnectTimeout(cfg.Connect.Timeout),
		central.WithWheelCircumference(cfg.Sensor.WheelCircumferenceMM),
	)

	return &app{cfg: cfg, log: log, mgr: mgr, out: out}, nil
}

func (a *app) close() {
	if err := a.mgr.Close(); err != nil && !errors.Is(err, central.ErrClosed) {
		a.log.WithError(err).Warn("closing manager")
	}
	if err := a.out.Close(); err != nil {
		a.log.WithError(err).Warn("closing events file")
	}
}

// newAdapter returns the radio backend selected by adapter.backend.
func newAdapter(cfg *config.Config, log logrus.FieldLogger) (ble.Adapter, error) {
	switch cfg.Adapter.Backend {
	case "goble":
		a, err := goble.NewAdapter(cfg.Adapter.ID, log)
		if err != nil {
			return nil, errors.Wrap(err, "goble adapter")
		}
		return a, nil
	default:
		a, err := ble.NewTinyGoAdapter(cfg.Adapter.ID, log)
		if err != nil {
			return nil, errors.Wrap(err, "tinygo adapter")
		}
		return a, nil
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string, log logrus.FieldLogger) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", defaultPath)
		}
		log.Debugf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Debug("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	id := cfg.Adapter.ID
	if id == "" {
		id = "default"
	}
	fmt.Fprintln(os.Stderr, "=== zswcentral ===")
	fmt.Fprintf(os.Stderr, "  Adapter: %s (%s)\n", cfg.Adapter.Backend, id)
	fmt.Fprintf(os.Stderr, "  Scan:    %d slots, %s\n", cfg.Scan.Capacity, durationOrForever(cfg.Scan.Duration))
	fmt.Fprintf(os.Stderr, "  Stale:   %s\n", cfg.Sensor.StaleAfter)
	fmt.Fprintf(os.Stderr, "  Wheel:   %.0f mm\n", cfg.Sensor.WheelCircumferenceMM)
	if cfg.Output.EventsFile != "" {
		fmt.Fprintf(os.Stderr, "  Events:  %s\n", cfg.Output.EventsFile)
	}
	fmt.Fprintf(os.Stderr, "  Log:     %s\n", cfg.Log.Level)
	fmt.Fprintln(os.Stderr, "==================")
}

func durationOrForever(d time.Duration) string {
	if d == 0 {
		return "until stopped"
	}
	return d.String()
}

func levelOr(level, def string) string {
	if level == "" {
		return def
	}
	return level
}

// ConfigCmd groups config file commands.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write a commented default config file."`
}

// ConfigInitCmd writes the default config unless one exists.
type ConfigInitCmd struct{}

func (c *ConfigInitCmd) Run(_ *Globals) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
