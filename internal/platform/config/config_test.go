package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Addr    string        `env:"TEAMCAL_TEST_ADDR" envDefault:":8080"`
	Timeout time.Duration `env:"TEAMCAL_TEST_TIMEOUT" envDefault:"5s"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q, want %q", cfg.Addr, ":8080")
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("timeout = %v, want %v", cfg.Timeout, 5*time.Second)
	}
}

func TestParseEnvOverride(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("TEAMCAL_TEST_ADDR", "127.0.0.1:9090")
	t.Setenv("TEAMCAL_TEST_TIMEOUT", "250ms")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9090" {
		t.Fatalf("addr = %q, want %q", cfg.Addr, "127.0.0.1:9090")
	}
	if cfg.Timeout != 250*time.Millisecond {
		t.Fatalf("timeout = %v, want %v", cfg.Timeout, 250*time.Millisecond)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("TEAMCAL_TEST_TIMEOUT", "not-a-duration")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
