// Package config resolves the driver's configuration — controller
// address/port, cache capacity, and logging — from command-line flags,
// following the defaults the controller publishes (spec.md §3, §6).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/jwf5426/cartfs/internal/wire"
)

// Config holds every value an external collaborator (CLI or test
// harness) must supply to run the driver, per spec.md §6.
type Config struct {
	ControllerAddr string
	ControllerPort uint16
	CacheCapacity  int
	LogLevel       string
	LogFormat      string
	MetricsAddr    string

	// portFlagValue bridges pflag's int-only numeric flags to
	// ControllerPort's uint16, set by RegisterFlags and consumed by
	// ApplyFlags.
	portFlagValue *int
}

// Default returns the controller's published defaults.
func Default() Config {
	return Config{
		ControllerAddr: wire.DefaultControllerAddr,
		ControllerPort: wire.DefaultControllerPort,
		CacheCapacity:  16,
		LogLevel:       "info",
		LogFormat:      "text",
		MetricsAddr:    "",
	}
}

// RegisterFlags binds Config's fields to fs, seeded with cfg's current
// values as defaults. Call this before fs.Parse.
func (cfg *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.ControllerAddr, "addr", cfg.ControllerAddr, "controller address")
	port := int(cfg.ControllerPort)
	fs.IntVar(&port, "port", port, "controller port")
	fs.IntVar(&cfg.CacheCapacity, "cache-capacity", cfg.CacheCapacity, "frame cache capacity")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (panic|fatal|error|warn|info|debug|trace)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text|json)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on, empty disables")
	cfg.portFlagValue = &port
}

// ApplyFlags copies parsed flag values (bound via RegisterFlags) back into
// typed fields and overlays CARTFS_* environment variables as a CLI
// convenience not mandated by spec.md §6.
func (cfg *Config) ApplyFlags() error {
	if cfg.portFlagValue != nil {
		if *cfg.portFlagValue < 0 || *cfg.portFlagValue > 0xFFFF {
			return fmt.Errorf("config: port %d out of range", *cfg.portFlagValue)
		}
		cfg.ControllerPort = uint16(*cfg.portFlagValue)
	}
	cfg.applyEnvOverrides()
	return cfg.Validate()
}

func (cfg *Config) applyEnvOverrides() {
	if v := os.Getenv("CARTFS_ADDR"); v != "" {
		cfg.ControllerAddr = v
	}
	if v := os.Getenv("CARTFS_PORT"); v != "" {
		if p, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.ControllerPort = uint16(p)
		}
	}
	if v := os.Getenv("CARTFS_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheCapacity = n
		}
	}
}

// Validate checks that Config's values are usable before Poweron.
func (cfg *Config) Validate() error {
	if cfg.ControllerAddr == "" {
		return fmt.Errorf("config: controller address must not be empty")
	}
	if cfg.CacheCapacity <= 0 {
		return fmt.Errorf("config: cache capacity must be positive, got %d", cfg.CacheCapacity)
	}
	return nil
}
