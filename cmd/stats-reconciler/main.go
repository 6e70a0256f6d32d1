package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/metrics"
	"github.com/prohmpiriya/booking-rush-checkin/internal/repository"
	"github.com/prohmpiriya/booking-rush-checkin/internal/service"
	"github.com/prohmpiriya/booking-rush-checkin/internal/worker"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/config"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/database"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/logger"
	pkgredis "github.com/prohmpiriya/booking-rush-checkin/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "stats-reconciler",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Stats Reconciler...")

	if len(cfg.CheckIn.ReconcileEventIDs) == 0 {
		appLog.Fatal("CHECKIN_RECONCILE_EVENT_IDS is required")
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn("Failed to register metrics", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	if err := cfg.ValidateDatabase(); err != nil {
		appLog.Fatal("Invalid database config", zap.Error(err))
	}
	db, err := database.NewPostgres(ctx, database.FromConfig(&cfg.Database, false))
	if err != nil {
		appLog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize Redis connection
	redisClient, err := pkgredis.NewClient(ctx, pkgredis.FromConfig(&cfg.Redis, false))
	if err != nil {
		appLog.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	statsRepo := repository.NewRedisStatsRepository(redisClient)
	if err := statsRepo.LoadScripts(ctx); err != nil {
		appLog.Warn("Failed to pre-load Lua scripts", zap.Error(err))
	}

	// Ticket counts come straight from Postgres; the cache would only add staleness
	stats := service.NewStatsService(
		statsRepo,
		repository.NewPostgresEventRepository(db.Pool()),
		repository.NewPostgresTicketRepository(db.Pool()),
	)

	reconciler := worker.NewStatsReconciler(&worker.StatsReconcilerConfig{
		Interval: cfg.CheckIn.ReconcileInterval,
		EventIDs: cfg.CheckIn.ReconcileEventIDs,
		Timeout:  cfg.CheckIn.StoreTimeout * 5,
	}, stats, appLog)

	done := make(chan struct{})
	go func() {
		reconciler.Start(ctx)
		close(done)
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down stats reconciler...")
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		appLog.Warn("Stats reconciler did not stop in time")
	}
	appLog.Info("Stats reconciler stopped")
}
