// Package server parses server command flags and starts the schedule service.
package server

import (
	"context"
	"flag"

	entrypoint "teamcal/internal/platform/cmd"
	app "teamcal/internal/services/schedule/app"
)

// ParseConfig parses environment and flags into a server configuration.
func ParseConfig(fs *flag.FlagSet, args []string) (app.Config, error) {
	var cfg app.Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return app.Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "The server listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the sqlite database file")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// Run starts the schedule API service.
func Run(ctx context.Context, cfg app.Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSchedule, func(context.Context) error {
		return app.Run(ctx, cfg)
	})
}
