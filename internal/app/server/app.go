// Package server wires configuration, storage, authentication, and the
// HTTP API into a runnable sync service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/exp/slog"

	"weavesync/internal/app/server/api"
	"weavesync/internal/app/server/config"
	"weavesync/internal/auth"
	"weavesync/internal/infrastructure/migration"
	"weavesync/internal/storage"
	"weavesync/internal/storage/postgres"
	"weavesync/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// Backends builds the storage engine and auth provider the config
// names. The auth provider shares the engine's connections, so its
// engine must match the storage engine unless auth is disabled.
func Backends(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Engine, auth.Provider, error) {
	switch cfg.DB.Engine {
	case config.EngineSQLite:
		store, err := sqlite.Open(cfg.DB.SQLitePath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("init sqlite: %w", err)
		}

		switch cfg.DB.AuthEngine {
		case config.AuthNone:
			return store, auth.NewNoneProvider(), nil
		case config.EngineSQLite:
			return store, auth.NewSQLiteProvider(store.DB(), log), nil
		default:
			store.Close()
			return nil, nil, fmt.Errorf("auth engine %q incompatible with sqlite storage", cfg.DB.AuthEngine)
		}

	case config.EnginePostgres:
		mg := migration.NewMigration(cfg, migration.DefaultEngine)
		if err := mg.Up(); err != nil {
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		store, err := postgres.New(ctx, cfg.DB.DatabaseURI, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}

		switch cfg.DB.AuthEngine {
		case config.AuthNone:
			return store, auth.NewNoneProvider(), nil
		case config.EnginePostgres:
			return store, auth.NewPostgresProvider(store.Pool(), log), nil
		default:
			store.Close()
			return nil, nil, fmt.Errorf("auth engine %q incompatible with postgres storage", cfg.DB.AuthEngine)
		}

	default:
		return nil, nil, fmt.Errorf("unknown storage engine %q", cfg.DB.Engine)
	}
}

// Run blocks until the process receives SIGINT/SIGTERM, then drains
// in-flight requests before returning.
func Run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, provider, err := Backends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:    cfg.Server.RunAddress,
		Handler: api.New(engine, provider, cfg, log),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "address", cfg.Server.RunAddress, "engine", cfg.DB.Engine)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
