package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/newscast/internal/auth"
	"github.com/jimdaga/newscast/internal/clock"
	"github.com/jimdaga/newscast/internal/config"
	"github.com/jimdaga/newscast/internal/crypto"
	"github.com/jimdaga/newscast/internal/editions"
	"github.com/jimdaga/newscast/internal/health"
	"github.com/jimdaga/newscast/internal/quota"
	"github.com/jimdaga/newscast/internal/retry"
	"github.com/jimdaga/newscast/internal/schedule"
	"github.com/jimdaga/newscast/internal/share"
	"github.com/jimdaga/newscast/internal/streams"
	"github.com/jimdaga/newscast/internal/voices"
	"github.com/jimdaga/newscast/internal/worker"
	"gorm.io/gorm"
)

// app holds the wired components of one process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	cache    *editions.Cache
	ledger   *quota.Ledger
	queue    *retry.Queue
	editions *editions.Service
	sweeper  *retry.Sweeper
	driver   *schedule.Driver
	voices   *voices.Store
	shares   *share.Registry
	defaults schedule.Defaults
	enqueuer *worker.Client
}

func newApp(cfg *config.Config, logger *slog.Logger, db *gorm.DB, gen editions.ContentGenerator, sink streams.Sink, clk clock.Clock) (*app, error) {
	backoff, err := retry.ParseBackoff(cfg.RetryBackoff)
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_BACKOFF: %w", err)
	}
	registry, err := voices.LoadRegistry(cfg.VoiceProfilesPath, logger)
	if err != nil {
		return nil, err
	}
	tokens, err := crypto.NewTokenGenerator(share.TokenLength)
	if err != nil {
		return nil, err
	}
	hasher, err := crypto.NewAddressHasher(cfg.AddressHashKey)
	if err != nil {
		return nil, err
	}

	editionLoc := config.Location(cfg.EditionTimezone)
	cache := editions.NewCache(db, clk, cfg.EditionTTL)
	ledger := quota.NewLedger(db, clk, config.Location(cfg.QuotaTimezone))
	queue := retry.NewQueue(db, clk, backoff, cfg.RetryMaxAttempts, logger)

	svc := editions.NewService(editions.Config{
		Cache:     cache,
		Ledger:    ledger,
		Queue:     queue,
		Generator: gen,
		Events:    sink,
		Clock:     clk,
		Logger:    logger,
		Timeout:   cfg.GenerationTimeout,
		Location:  editionLoc,
		Voice:     cfg.DefaultVoice,
		Hosts:     cfg.ScriptHosts,
	})

	store := voices.NewStore(voices.Config{
		DB:          db,
		Editions:    cache,
		Synthesizer: gen,
		Registry:    registry,
		Ledger:      ledger,
		Events:      sink,
		Clock:       clk,
		Logger:      logger,
		Timeout:     cfg.GenerationTimeout,
		ScriptHosts: svc.Hosts(),
	})

	shares := share.NewRegistry(share.Config{
		DB:       db,
		Tokens:   tokens,
		Hasher:   hasher,
		Editions: cache,
		Variants: store,
		Events:   sink,
		Clock:    clk,
		Logger:   logger,
		TTL:      cfg.ShareTTL,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		cache:    cache,
		ledger:   ledger,
		queue:    queue,
		editions: svc,
		sweeper:  retry.NewSweeper(queue, svc, cfg.RetryBatchSize, logger),
		driver:   schedule.NewDriver(db, svc, clk, editionLoc, cfg.ScheduleConcurrency, logger),
		voices:   store,
		shares:   shares,
		defaults: schedule.Defaults{Regions: cfg.ScheduleRegions, Languages: cfg.ScheduleLanguages},
	}, nil
}

func (a *app) workerDeps() worker.Deps {
	return worker.Deps{
		Runner:    a.driver,
		Sweeper:   a.sweeper,
		Reaper:    a.cache,
		Defaults:  a.defaults,
		Retention: a.cfg.EditionRetention,
	}
}

func (a *app) router() http.Handler {
	if a.cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(auth.Sessions(a.cfg))

	r.GET("/health", gin.WrapF(health.Handler))
	if sqlDB, err := a.db.DB(); err == nil {
		r.GET("/ready", gin.WrapF(health.Ready(sqlDB)))
	}
	r.POST("/logout", auth.HandleLogout(a.logger))
	r.GET("/s/:token", share.ResolveHandler(a.shares))

	api := r.Group("/api", auth.RequireAuth(), auth.LoadUser(a.db))
	api.POST("/editions", editions.GenerateHandler(a.editions))
	api.GET("/editions/usage", editions.UsageHandler(a.ledger))
	api.GET("/editions/:id", editions.GetHandler(a.editions))
	api.GET("/editions/:id/voices", voices.ListHandler(a.voices))
	api.POST("/editions/:id/voices/:profile", voices.CreateHandler(a.voices))
	api.GET("/editions/:id/shares", share.ListHandler(a.shares))
	api.POST("/editions/:id/shares", share.CreateHandler(a.shares))
	api.DELETE("/shares/:id", share.RevokeHandler(a.shares))
	api.GET("/voices", voices.ProfilesHandler(a.voices))

	internal := r.Group("/internal", auth.RequireInternalSecret(a.cfg.InternalSecret))
	internal.POST("/schedule", schedule.TriggerHandler(a.driver, a.defaults))
	internal.GET("/schedule/runs", schedule.RunsHandler(a.driver))
	if a.enqueuer != nil {
		internal.POST("/schedule/async", worker.EnqueueScheduleHandler(a.enqueuer, a.logger))
	}
	internal.POST("/retry/sweep", retry.SweepHandler(a.sweeper))
	internal.GET("/retry", retry.ListHandler(a.queue))
	internal.POST("/retry/:id/resolve", retry.ResolveHandler(a.queue))

	return r
}
