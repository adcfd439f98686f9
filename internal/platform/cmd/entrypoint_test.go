package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

type stubConfig struct {
	HTTPAddr string `env:"TEAMCAL_CMDTEST_HTTP_ADDR" envDefault:":8080"`
	DBPath   string `env:"TEAMCAL_CMDTEST_DB_PATH" envDefault:"data/teamcal.db"`
}

func TestParseConfigAppliesEnvOverrides(t *testing.T) {
	t.Setenv("TEAMCAL_CMDTEST_HTTP_ADDR", ":9090")

	var cfg stubConfig
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("http addr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.DBPath != "data/teamcal.db" {
		t.Fatalf("db path = %q, want default", cfg.DBPath)
	}
}

func TestParseConfigRejectsNilTarget(t *testing.T) {
	if err := ParseConfig[stubConfig](nil); err == nil {
		t.Fatal("expected nil target error")
	}
}

func TestParseArgsLayersFlagsOverEnv(t *testing.T) {
	t.Setenv("TEAMCAL_CMDTEST_HTTP_ADDR", ":9090")
	t.Setenv("TEAMCAL_CMDTEST_DB_PATH", "env/teamcal.db")

	var cfg stubConfig
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	fs := flag.NewFlagSet("cmdtest", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "database path")
	if err := ParseArgs(fs, []string{"-addr", ":7000"}); err != nil {
		t.Fatalf("parse args: %v", err)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Fatalf("http addr = %q, want flag value", cfg.HTTPAddr)
	}
	if cfg.DBPath != "env/teamcal.db" {
		t.Fatalf("db path = %q, want env value", cfg.DBPath)
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, nil); err == nil {
		t.Fatal("expected nil parser error")
	}
}

func TestRunWithTelemetryValidatesInputs(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), "  ", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected service name error")
	}
	if err := RunWithTelemetry(context.Background(), ServiceSchedule, nil); err == nil {
		t.Fatal("expected run function error")
	}
}

func TestRunWithTelemetryRunsAndPropagatesError(t *testing.T) {
	t.Setenv("TEAMCAL_OTEL_ENDPOINT", "")

	ran := false
	if err := RunWithTelemetry(context.Background(), ServiceSeed, func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !ran {
		t.Fatal("expected run function to be called")
	}

	wantErr := errors.New("seed failed")
	err := RunWithTelemetry(context.Background(), ServiceTokenKey, func(context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
