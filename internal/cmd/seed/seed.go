// Package seed parses seed command flags and loads fixtures into the
// schedule store.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	entrypoint "teamcal/internal/platform/cmd"
	"teamcal/internal/services/schedule/storage/sqlite"
	"teamcal/internal/tools/seed"
)

// Config holds seed command configuration.
type Config struct {
	DBPath  string `env:"TEAMCAL_DB_PATH" envDefault:"data/teamcal.db"`
	File    string
	Verbose bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the sqlite database file")
	fs.StringVar(&cfg.File, "file", "seed.yaml", "fixture file to load")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose output")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the seed command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	fixture, err := seed.Load(cfg.File)
	if err != nil {
		return err
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	progress := io.Discard
	if cfg.Verbose {
		progress = out
	}
	runner, err := seed.NewRunner(store, time.Now, progress)
	if err != nil {
		return err
	}
	summary, err := runner.Apply(ctx, fixture)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded %d members, %d teams, %d memberships, %d events\n",
		summary.Members, summary.Teams, summary.Memberships, summary.Events)
	return nil
}

func openStore(path string) (*sqlite.Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = filepath.Join("data", "teamcal.db")
	}
	if dir := filepath.Dir(trimmed); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := sqlite.Open(trimmed)
	if err != nil {
		return nil, fmt.Errorf("open schedule store: %w", err)
	}
	return store, nil
}
