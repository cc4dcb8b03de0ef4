// Package wconfig manages warpcore CLI daemon configuration using
// koanf/v2, layering defaults, an optional YAML file, and environment
// variable overrides.
package wconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the complete configuration for a warpcore CLI tool.
type Config struct {
	Engine  EngineConfig  `koanf:"engine"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// EngineConfig selects the interface and backend an engine attaches to.
type EngineConfig struct {
	// Interface is the network interface name to attach to.
	Interface string `koanf:"interface"`
	// Backend selects "bypass" (netmap/TUN-TAP style kernel bypass) or
	// "ossock" (plain OS UDP sockets).
	Backend string `koanf:"backend"`
	// NumBufs is the number of buffers the arena allocates at init.
	NumBufs int `koanf:"num_bufs"`
	// MTU is loaded and kept in the Config, but warpinetd does not pass it
	// to the engine (no engine option takes an MTU), so engines run at
	// their 1500-byte default whatever this value is.
	MTU int `koanf:"mtu"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g.
	// ":9310"). Empty disables the endpoint.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint.
	Path string `koanf:"path"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Backend: "ossock",
			NumBufs: 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9310",
			Path: "/metrics",
		},
	}
}

// envPrefix is the environment variable prefix for warpcore configuration.
// Variables are named WARPCORE_<section>_<key>, e.g. WARPCORE_ENGINE_INTERFACE.
const envPrefix = "WARPCORE_"

// Load reads configuration from an optional YAML file at path, overlays
// environment variable overrides (WARPCORE_ prefix), and merges on top of
// DefaultConfig(). An empty path skips the file layer, for tools that are
// configured purely from the environment or CLI flags.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// envKeyMapper transforms WARPCORE_ENGINE_INTERFACE -> engine.interface.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"engine.interface": defaults.Engine.Interface,
		"engine.backend":   defaults.Engine.Backend,
		"engine.num_bufs":  defaults.Engine.NumBufs,
		"engine.mtu":       defaults.Engine.MTU,
		"log.level":        defaults.Log.Level,
		"log.format":       defaults.Log.Format,
		"metrics.addr":     defaults.Metrics.Addr,
		"metrics.path":     defaults.Metrics.Path,
	}
	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

// Validation errors.
var (
	ErrEmptyInterface   = errors.New("engine.interface must not be empty")
	ErrInvalidBackend   = errors.New(`engine.backend must be "bypass" or "ossock"`)
	ErrInvalidNumBufs   = errors.New("engine.num_bufs must be > 0")
	ErrInvalidLogLevel  = errors.New("log.level must be one of debug, info, warn, error")
	ErrInvalidLogFormat = errors.New(`log.format must be "json" or "text"`)
)

// Validate checks cfg for internal consistency.
func Validate(cfg *Config) error {
	if cfg.Engine.Interface == "" {
		return ErrEmptyInterface
	}
	if cfg.Engine.Backend != "bypass" && cfg.Engine.Backend != "ossock" {
		return ErrInvalidBackend
	}
	if cfg.Engine.NumBufs <= 0 {
		return ErrInvalidNumBufs
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return ErrInvalidLogFormat
	}
	return nil
}
