package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/manpreetbhatti/readtrail/internal/api"
	"github.com/manpreetbhatti/readtrail/internal/config"
	"github.com/manpreetbhatti/readtrail/internal/db"
	"github.com/manpreetbhatti/readtrail/internal/history"
	"github.com/manpreetbhatti/readtrail/internal/logging"
	"github.com/manpreetbhatti/readtrail/internal/retention"
	"github.com/manpreetbhatti/readtrail/internal/room"
	"github.com/manpreetbhatti/readtrail/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the presence server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(runCtx, cfg, ctx.configPath, logger)
		},
	}
}

func openStore(cfg *config.Config) (history.Store, error) {
	switch cfg.History.Backend {
	case config.BackendSQLite:
		database, err := db.New(db.MemoryDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite history: %w", err)
		}
		return database, nil
	default:
		return history.NewMemory(), nil
	}
}

func wsOptions(cfg *config.Config) ws.Options {
	return ws.Options{
		WriteWait:         cfg.WriteWait(),
		PongWait:          cfg.PongWait(),
		MaxMessageSize:    cfg.WebSocket.MaxMessageSize,
		SendBuffer:        cfg.WebSocket.SendBuffer,
		MessagesPerSecond: cfg.RateLimit.MessagesPerSecond,
		MessageBurst:      cfg.RateLimit.Burst,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	}
}

// newHandler wires the hub, socket endpoint and REST API. The hub runs until
// ctx is cancelled.
func newHandler(ctx context.Context, cfg *config.Config, store history.Store, logger *slog.Logger) (http.Handler, *ws.Hub) {
	hub := ws.NewHub(room.NewRegistry(nil), store, logger)
	go hub.Run(ctx)

	socket := ws.NewHandler(hub, wsOptions(cfg), logger)
	routes := api.New(hub, store, logger).Routes(socket)
	return api.CORS(routes, cfg.Server.AllowedOrigins), hub
}

func serve(ctx context.Context, cfg *config.Config, configPath string, logger *slog.Logger) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.RetentionEnabled() {
		if pruner, ok := store.(history.Pruner); ok {
			svc := retention.New(pruner, retention.Config{
				Interval: cfg.RetentionInterval(),
				MaxAge:   cfg.RetentionMaxAge(),
			}, logger)
			svc.Start()
			defer svc.Stop()
		} else {
			logger.Warn("history backend does not support retention", "backend", cfg.History.Backend)
		}
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	handler, hub := newHandler(hubCtx, cfg, store, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("readtrail server starting",
		"addr", cfg.Server.Addr,
		"config", configPath,
		"history_backend", cfg.History.Backend,
		"retention_hours", cfg.History.RetentionHours,
	)

	select {
	case err := <-errCh:
		stopHub()
		<-hub.Done()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// Shutdown does not track hijacked sockets; stopping the hub closes them.
	stopHub()
	<-hub.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
