// Package server composes the schedule service HTTP entrypoint.
//
// It wires the SQLite store, REST handlers, websocket hub, reminder cron,
// and middleware chain into a runnable server instance.
package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"teamcal/internal/platform/apperrors"
	"teamcal/internal/platform/httpapi"
	"teamcal/internal/platform/observability"
	"teamcal/internal/platform/timeouts"
	"teamcal/internal/services/schedule/api/rest"
	"teamcal/internal/services/schedule/auth"
	"teamcal/internal/services/schedule/push"
	"teamcal/internal/services/schedule/reminder"
	"teamcal/internal/services/schedule/storage/sqlite"
)

// Config carries the schedule server settings loaded from the environment.
type Config struct {
	HTTPAddr     string        `env:"TEAMCAL_HTTP_ADDR" envDefault:":8080"`
	DBPath       string        `env:"TEAMCAL_DB_PATH" envDefault:"data/teamcal.db"`
	TokenKey     string        `env:"TEAMCAL_AUTH_TOKEN_KEY"`
	TokenTTL     time.Duration `env:"TEAMCAL_AUTH_TOKEN_TTL" envDefault:"12h"`
	CORSOrigins  []string      `env:"TEAMCAL_CORS_ORIGINS" envSeparator:","`
	QueryTimeout time.Duration `env:"TEAMCAL_QUERY_TIMEOUT" envDefault:"5s"`
	ReminderCron string        `env:"TEAMCAL_REMINDER_CRON"`
	ReminderLead time.Duration `env:"TEAMCAL_REMINDER_LEAD" envDefault:"10m"`
}

// Server hosts the schedule HTTP process.
type Server struct {
	listener     net.Listener
	httpServer   *http.Server
	store        *sqlite.Store
	hub          *push.Hub
	reminders    *reminder.Scheduler
	reminderSpec string
	logger       *log.Logger
}

// New creates a configured schedule server listening on the configured address.
func New(config Config) (*Server, error) {
	logger := log.Default()

	key, err := decodeTokenKey(config.TokenKey)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewManager(key, config.TokenTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("configure token manager: %w", err)
	}

	listener, err := net.Listen("tcp", strings.TrimSpace(config.HTTPAddr))
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", config.HTTPAddr, err)
	}
	store, err := openStore(config.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	hub, err := push.NewHub(tokens, store, config.CORSOrigins, logger)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("configure push hub: %w", err)
	}

	// A zero lead disables the reminder cron.
	var reminders *reminder.Scheduler
	if config.ReminderLead > 0 {
		reminders, err = reminder.NewScheduler(store, hub, config.ReminderLead, logger, nil)
		if err != nil {
			_ = listener.Close()
			_ = store.Close()
			return nil, fmt.Errorf("configure reminder scheduler: %w", err)
		}
	}

	handlers, err := rest.NewHandlers(rest.Config{
		Store:        store,
		Tokens:       tokens,
		Publisher:    hub,
		Logger:       logger,
		QueryTimeout: config.QueryTimeout,
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("configure rest handlers: %w", err)
	}

	server := &Server{
		listener:     listener,
		store:        store,
		hub:          hub,
		reminders:    reminders,
		reminderSpec: config.ReminderCron,
		logger:       logger,
	}

	mux := http.NewServeMux()
	handlers.Register(mux)
	mux.Handle(http.MethodGet+" /ws", hub.Handler())
	mux.HandleFunc(http.MethodGet+" /healthz", server.handleHealthz)

	handler := httpapi.Chain(mux,
		httpapi.RecoverPanic(),
		httpapi.RequestID(),
		observability.RequestLogger(logger),
		corsMiddleware(config.CORSOrigins),
		otelMiddleware(),
		auth.Middleware(tokens),
	)
	server.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return server, nil
}

// Addr returns the listener address for the schedule server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a schedule server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := New(config)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the schedule server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStore()

	if s.reminders != nil {
		if err := s.reminders.Start(s.reminderSpec); err != nil {
			return fmt.Errorf("start reminder scheduler: %w", err)
		}
		defer s.reminders.Stop()
	}

	s.logger.Printf("schedule server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("http shutdown: %v", err)
		}
		return handleErr(<-serveErr)
	case err := <-serveErr:
		return handleErr(err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(httpapi.RequestContext(r), timeouts.Query)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Printf("health ping failed: %v", err)
		httpapi.WriteError(w, apperrors.Wrap(apperrors.KindUnavailable, "storage unreachable", err))
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Printf("close schedule store: %v", err)
	}
}

func decodeTokenKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("auth token key is required")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode auth token key: %w", err)
	}
	return key, nil
}

func openStore(path string) (*sqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "teamcal.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}

func corsMiddleware(origins []string) httpapi.Middleware {
	options := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}
	trimmed := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		trimmed = append(trimmed, origin)
	}
	if len(trimmed) == 0 {
		options.AllowedOrigins = []string{"*"}
	} else {
		options.AllowedOrigins = trimmed
	}
	handler := cors.New(options)
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return handler.Handler(next)
	}
}

func otelMiddleware() httpapi.Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return otelhttp.NewHandler(next, "schedule.http")
	}
}
