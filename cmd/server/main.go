// Package main is the entry point for the query service HTTP server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"

	"querychat/internal/api"
	"querychat/internal/app"
	"querychat/internal/catalog"
	"querychat/internal/config"
	internaldb "querychat/internal/db"
	"querychat/internal/engine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	// Analytics database: the read-only execution surface.
	analyticsDB, err := sql.Open("duckdb", engine.ReadOnlyDSN(cfg.AnalyticsDSN))
	if err != nil {
		return fmt.Errorf("open analytics db: %w", err)
	}
	defer analyticsDB.Close() //nolint:errcheck

	// Audit store: write/read pool pair over one SQLite file.
	auditWrite, auditRead, err := internaldb.OpenSQLitePair(cfg.AuditDBPath, 0)
	if err != nil {
		return fmt.Errorf("open audit db: %w", err)
	}
	defer auditWrite.Close() //nolint:errcheck
	defer auditRead.Close()  //nolint:errcheck

	if err := internaldb.RunMigrations(auditWrite); err != nil {
		return fmt.Errorf("migrate audit db: %w", err)
	}

	clock := clockwork.NewRealClock()
	application, err := app.New(app.Deps{
		Cfg:         cfg,
		AnalyticsDB: analyticsDB,
		AuditWrite:  auditWrite,
		AuditRead:   auditRead,
		Clock:       clock,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}
	defer application.History.Stop()

	reload := func() (*catalog.Catalog, error) {
		return catalog.Load(cfg.TemplateDir)
	}
	handler := api.New(application.Pipeline, application.Catalogs, application.AuditRepo, reload, logger.With("component", "api"))

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Router(cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.ListenAddr, "env", cfg.Env)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Drop idle rate-limit buckets periodically.
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				application.Limiter.Sweep(10 * time.Minute)
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newLogger builds a tinted console logger in development and a JSON logger
// in production.
func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: cfg.SlogLevel()}))
}
