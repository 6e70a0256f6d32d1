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
	"github.com/prohmpiriya/booking-rush-checkin/internal/worker"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/config"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/database"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/kafka"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/logger"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/retry"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/telemetry"
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
		ServiceName: "attempt-archiver",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Attempt Archiver...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "attempt-archiver",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
		MetricsEnabled: cfg.OTel.MetricsEnabled,
		MetricInterval: cfg.OTel.MetricInterval,
	}); err != nil {
		appLog.Warn("Telemetry init failed", zap.Error(err))
	}
	defer telemetry.Shutdown(context.Background())
	if err := metrics.Init(); err != nil {
		appLog.Warn("Failed to register metrics", zap.Error(err))
	}

	// Initialize database connection
	if err := cfg.ValidateDatabase(); err != nil {
		appLog.Fatal("Invalid database config", zap.Error(err))
	}
	db, err := database.NewPostgres(ctx, database.FromConfig(&cfg.Database, cfg.OTel.Enabled))
	if err != nil {
		appLog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize Kafka consumer
	consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.ConsumerGroup,
		Topics:         []string{cfg.CheckIn.AttemptsTopic},
		ClientID:       "attempt-archiver",
		MaxRetries:     3,
		RetryInterval:  2 * time.Second,
		SessionTimeout: 30 * time.Second,
		MaxPollRecords: cfg.CheckIn.ArchiverBatchSize,
	})
	if err != nil {
		appLog.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()
	appLog.Info("Kafka consumer connected", zap.String("topic", cfg.CheckIn.AttemptsTopic))

	// Dead letter producer
	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      "attempt-archiver-dlq",
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Fatal("Failed to create Kafka DLQ producer", zap.Error(err))
	}
	defer producer.Close()

	archiver := worker.NewAttemptArchiver(
		&worker.AttemptArchiverConfig{
			BatchSize:     cfg.CheckIn.ArchiverBatchSize,
			FlushInterval: cfg.CheckIn.ArchiverInterval,
		},
		consumer,
		repository.NewPostgresAttemptRepository(db.Pool()),
		retry.NewKafkaDLQPublisher(producer, "", "attempt-archiver"),
		appLog,
	)

	done := make(chan struct{})
	go func() {
		archiver.Start(ctx)
		close(done)
	}()
	appLog.Info("Attempt archiver started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down attempt archiver...")
	cancel()

	// The archiver flushes its pending batch before returning
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		appLog.Warn("Attempt archiver did not stop in time")
	}
	appLog.Info("Attempt archiver stopped")
}
