package config

import "testing"

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil, 42)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ModbusAddr != ":502" {
		t.Errorf("ModbusAddr = %q, want :502", cfg.ModbusAddr)
	}
	if cfg.ModbusFallback != ":5020" {
		t.Errorf("ModbusFallback = %q, want :5020", cfg.ModbusFallback)
	}
	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want :8000", cfg.HTTPAddr)
	}
	if cfg.TickMs != 100 {
		t.Errorf("TickMs = %d, want 100", cfg.TickMs)
	}
	if cfg.WarmupTicks != 50 {
		t.Errorf("WarmupTicks = %d, want 50", cfg.WarmupTicks)
	}
	if cfg.IdleTimeoutS != 120 {
		t.Errorf("IdleTimeoutS = %d, want 120", cfg.IdleTimeoutS)
	}
	if cfg.Seed != 42 {
		t.Errorf("Seed = %d, want the fallback value 42", cfg.Seed)
	}
	if cfg.SeedSet {
		t.Error("SeedSet should be false when --seed was not passed")
	}
}

func TestParseOverridesFromFlags(t *testing.T) {
	cfg, err := Parse([]string{"--modbus-addr=:1502", "--tick-ms=50", "--seed=7"}, 42)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ModbusAddr != ":1502" {
		t.Errorf("ModbusAddr = %q, want :1502", cfg.ModbusAddr)
	}
	if cfg.TickMs != 50 {
		t.Errorf("TickMs = %d, want 50", cfg.TickMs)
	}
	if cfg.Seed != 7 || !cfg.SeedSet {
		t.Errorf("Seed = %d SeedSet=%v, want 7/true", cfg.Seed, cfg.SeedSet)
	}
}

func TestTickPeriodAndIdleTimeout(t *testing.T) {
	cfg, err := Parse(nil, 1)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.TickPeriod().Milliseconds() != 100 {
		t.Errorf("TickPeriod = %v, want 100ms", cfg.TickPeriod())
	}
	if cfg.IdleTimeout().Seconds() != 120 {
		t.Errorf("IdleTimeout = %v, want 120s", cfg.IdleTimeout())
	}
}
