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

	"github.com/jimdaga/newscast/internal/clock"
	"github.com/jimdaga/newscast/internal/config"
	"github.com/jimdaga/newscast/internal/database"
	"github.com/jimdaga/newscast/internal/generator"
	"github.com/jimdaga/newscast/internal/streams"
	"github.com/jimdaga/newscast/internal/worker"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	logger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if cfg.RunMigrations {
		if err := database.RunMigrations(db, logger); err != nil {
			return err
		}
	}
	if cfg.SeedDevData && cfg.Env != "production" {
		if err := database.SeedDevData(db, logger); err != nil {
			return fmt.Errorf("failed to seed dev data: %w", err)
		}
	}

	gen, err := generator.NewClient(cfg.GeneratorURL, cfg.GeneratorSecret, cfg.GeneratorTimeout, cfg.GeneratorStub, cfg.GeneratorStubDelay)
	if err != nil {
		return fmt.Errorf("failed to create generator client: %w", err)
	}
	if cfg.GeneratorStub {
		logger.Warn("Generator running in stub mode")
	}

	sink, closeSink, err := newSink(cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	a, err := newApp(cfg, logger, db, gen, sink, clock.Real())
	if err != nil {
		return err
	}

	if cfg.RedisURL != "" && cfg.Mode != "worker" {
		client, err := worker.NewClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		a.enqueuer = client
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case "worker":
		stopBackground, err := startBackground(cfg, db, logger)
		if err != nil {
			return err
		}
		defer stopBackground()
		logger.Info("Starting in worker mode")
		// Run blocks and handles its own signal interception
		return worker.Run(cfg, a.workerDeps(), logger)

	case "embedded":
		stopBackground, err := startBackground(cfg, db, logger)
		if err != nil {
			return err
		}
		defer stopBackground()
		stopWorker, err := worker.Start(cfg, a.workerDeps(), logger)
		if err != nil {
			return err
		}
		defer stopWorker()
		logger.Info("Starting in embedded mode")
		return serve(ctx, cfg, a, logger)

	default:
		logger.Info("Starting in server mode")
		return serve(ctx, cfg, a, logger)
	}
}

// newSink picks where analytics events go: the Redis stream when Redis is
// configured, otherwise straight into the database.
func newSink(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (streams.Sink, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, recording analytics events directly")
		return streams.NewDBSink(db), func() {}, nil
	}
	publisher, err := streams.NewPublisher(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stream publisher: %w", err)
	}
	return publisher, func() { publisher.Close() }, nil
}

// startBackground starts the periodic scheduler and the analytics consumer.
func startBackground(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (stop func(), err error) {
	stopScheduler, err := worker.StartScheduler(cfg, logger)
	if err != nil {
		return nil, err
	}
	stopConsumer, err := streams.StartEventConsumer(cfg.RedisURL, db, logger)
	if err != nil {
		stopScheduler()
		return nil, err
	}
	return func() {
		stopConsumer()
		stopScheduler()
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, a *app, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
