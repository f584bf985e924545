// Package main implements the entry point for the taskhive server: a
// persistent, HTTP-accessible orchestrator for long-running asynchronous
// jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/taskhive/taskhive/internal/api"
	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/platform/kv"
	"github.com/taskhive/taskhive/internal/platform/kvstore"
	"github.com/taskhive/taskhive/internal/platform/logger"
	"github.com/taskhive/taskhive/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logg := logger.Setup(cfg.Server)
	logg.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kvStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open persistence backend: %w", err)
	}
	defer func() { _ = kvStore.Close() }()

	registry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registry)

	eng := engine.New(
		kvstore.NewTaskStore(kvStore),
		kvstore.NewTaskTypeStore(kvStore),
		engine.Config{
			DispatchInterval:  time.Duration(cfg.Engine.DispatchIntervalSecs) * time.Second,
			WatchdogInterval:  time.Duration(cfg.Engine.WatchdogIntervalSecs) * time.Second,
			PollMaxTimeout:    time.Duration(cfg.Engine.PollMaxTimeoutSecs) * time.Second,
			NotifierIdleEvict: time.Duration(cfg.Engine.NotifierIdleEvictSecs) * time.Second,
		},
		metrics,
		logg,
	)

	sched := scheduler.NewService(
		kvstore.NewScheduleStore(kvStore),
		eng,
		time.Duration(cfg.Scheduler.IntervalSecs)*time.Second,
		logg,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(eng, sched, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(gCtx)
	})
	if cfg.Scheduler.Enabled {
		g.Go(func() error {
			return sched.Run(gCtx)
		})
	}
	g.Go(func() error {
		logg.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logg.Info("server stopped")
	return err
}

// openStore opens the persistence backend selected by the database config.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (kv.Store, error) {
	switch cfg.Driver {
	case "memory":
		return kv.NewMemoryStore(), nil
	case "sqlite":
		return kv.OpenSQLite(cfg.DSN)
	case "postgres":
		return kv.OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
