// Package config parses the twin's runtime configuration (spec.md §6.4):
// flags with environment-variable fallbacks, no configuration files. The
// flag/tag layer is github.com/jessevdk/go-flags, the same CLI library the
// teacher's own mbcli tool uses; go-flags' `env` struct tag gives each flag
// its environment-variable fallback directly, in the same spirit as
// GVCUTV-NRG-CHAMP/services/mape/internal/config/config.go's
// getEnv/getEnvInt helpers.
package config

import (
	"time"

	"github.com/jessevdk/go-flags"
)

// Config holds every operator-tunable knob the twin exposes.
type Config struct {
	ModbusAddr     string `long:"modbus-addr" env:"MODBUS_ADDR" default:":502" description:"Modbus TCP bind address"`
	ModbusFallback string `long:"modbus-fallback-addr" env:"MODBUS_FALLBACK_ADDR" default:":5020" description:"Modbus TCP bind address used if the primary bind fails (e.g. unprivileged port)"`
	HTTPAddr       string `long:"http-addr" env:"HTTP_ADDR" default:":8000" description:"HTTP bind address for the publish API"`
	TickMs         int    `long:"tick-ms" env:"TICK_MS" default:"100" description:"Physics tick period, in milliseconds"`
	WarmupTicks    int    `long:"warmup-ticks" env:"WARMUP_TICKS" default:"50" description:"Ticks run before the servers start accepting connections"`
	IdleTimeoutS   int    `long:"idle-timeout-s" env:"MODBUS_IDLE_TIMEOUT_S" default:"120" description:"Idle Modbus TCP connection timeout, in seconds"`
	Seed           int64  `long:"seed" env:"SIM_SEED" description:"Sensor jitter PRNG seed (defaults to a time-derived value if omitted)"`
	SeedSet        bool
}

// Parse reads argv and the environment into a Config. now is used only to
// derive a default seed when SIM_SEED/--seed is not set or is set to 0, so
// tests can pass a fixed value and get reproducible output.
func Parse(argv []string, now int64) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PrintErrors|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(argv); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = now
	} else {
		cfg.SeedSet = true
	}
	return cfg, nil
}

// TickPeriod returns TickMs as a time.Duration.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// IdleTimeout returns IdleTimeoutS as a time.Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutS) * time.Second
}
