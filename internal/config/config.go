// Package config manages the vxlanprobe daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete vxlanprobe daemon configuration.
type Config struct {
	Probe   ProbeConfig   `koanf:"probe"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
}

// ProbeConfig holds the capture context's operating parameters.
type ProbeConfig struct {
	// Port is the UDP port the capture context binds on the wildcard
	// address.
	Port int `koanf:"port"`

	// RcvBufHint is the desired socket receive buffer size in bytes
	// (best-effort).
	RcvBufHint int `koanf:"rcvbuf_hint"`

	// CycleDuration is how long each run/flush cycle lasts.
	CycleDuration time.Duration `koanf:"cycle_duration"`

	// Iterations bounds the number of run/flush cycles the daemon
	// executes before exiting. 0 means run until a termination signal.
	Iterations int `koanf:"iterations"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Probe: ProbeConfig{
			Port:          4789,
			RcvBufHint:    4 << 20,
			CycleDuration: 1 * time.Second,
			Iterations:    0,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for vxlanprobe configuration.
// Variables are named VXPROBE_<section>_<key>, e.g., VXPROBE_PROBE_PORT.
const envPrefix = "VXPROBE_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (VXPROBE_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	VXPROBE_PROBE_PORT           -> probe.port
//	VXPROBE_PROBE_RCVBUF_HINT    -> probe.rcvbuf_hint
//	VXPROBE_PROBE_CYCLE_DURATION -> probe.cycle_duration
//	VXPROBE_METRICS_ADDR         -> metrics.addr
//	VXPROBE_METRICS_PATH         -> metrics.path
//	VXPROBE_LOG_LEVEL            -> log.level
//	VXPROBE_LOG_FORMAT           -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms VXPROBE_PROBE_PORT -> probe.port.
// Strips the VXPROBE_ prefix, lowercases, and replaces the first _ (the
// section separator) with ., so VXPROBE_PROBE_RCVBUF_HINT -> probe.rcvbuf_hint.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"probe.port":           defaults.Probe.Port,
		"probe.rcvbuf_hint":    defaults.Probe.RcvBufHint,
		"probe.cycle_duration": defaults.Probe.CycleDuration.String(),
		"probe.iterations":     defaults.Probe.Iterations,
		"metrics.addr":         defaults.Metrics.Addr,
		"metrics.path":         defaults.Metrics.Path,
		"log.level":            defaults.Log.Level,
		"log.format":           defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidPort indicates the probe port is out of range.
	ErrInvalidPort = errors.New("probe.port must be between 1 and 65535")

	// ErrInvalidCycleDuration indicates the cycle duration is not positive.
	ErrInvalidCycleDuration = errors.New("probe.cycle_duration must be > 0")

	// ErrInvalidIterations indicates a negative iteration count.
	ErrInvalidIterations = errors.New("probe.iterations must be >= 0")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Probe.Port <= 0 || cfg.Probe.Port > 65535 {
		return ErrInvalidPort
	}

	if cfg.Probe.CycleDuration <= 0 {
		return ErrInvalidCycleDuration
	}

	if cfg.Probe.Iterations < 0 {
		return ErrInvalidIterations
	}

	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
