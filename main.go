package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-checkin/internal/di"
	"github.com/prohmpiriya/booking-rush-checkin/internal/importer"
	"github.com/prohmpiriya/booking-rush-checkin/internal/metrics"
	"github.com/prohmpiriya/booking-rush-checkin/internal/repository"
	"github.com/prohmpiriya/booking-rush-checkin/internal/service"
	"github.com/prohmpiriya/booking-rush-checkin/migrations"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/config"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/database"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/logger"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/middleware"
	pkgredis "github.com/prohmpiriya/booking-rush-checkin/pkg/redis"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "checkin-service"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Check-in Service...", zap.String("store_backend", cfg.CheckIn.StoreBackend))

	ctx := context.Background()

	// Initialize telemetry
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
		MetricsEnabled: cfg.OTel.MetricsEnabled,
		MetricInterval: cfg.OTel.MetricInterval,
	}); err != nil {
		appLog.Warn("Telemetry init failed, continuing without export", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()
	if err := metrics.Init(); err != nil {
		appLog.Warn("Failed to register check-in metrics", zap.Error(err))
	}

	var (
		db          *database.PostgresDB
		redisClient *pkgredis.Client
		stores      *storeSet
	)

	switch cfg.CheckIn.StoreBackend {
	case config.StoreBackendMemory:
		stores = memoryStores(cfg.CheckIn.ActivityFeedCap)
		if cfg.CheckIn.SeedManifest != "" {
			if err := seedFromManifest(ctx, cfg.CheckIn.SeedManifest, stores, appLog); err != nil {
				appLog.Fatal("Failed to seed memory store", zap.Error(err))
			}
		}
		appLog.Warn("Using in-memory stores; state is lost on restart")

	default:
		if err := cfg.ValidateDatabase(); err != nil {
			appLog.Fatal("Invalid database config", zap.Error(err))
		}

		// Initialize database connection
		dbCfg := database.FromConfig(&cfg.Database, cfg.OTel.Enabled)
		db, err = database.NewPostgres(ctx, dbCfg)
		if err != nil {
			appLog.Fatal("Database connection failed", zap.Error(err))
		}
		defer db.Close()
		appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))

		if cfg.CheckIn.AutoMigrate {
			applied, err := migrations.Apply(ctx, db.Pool())
			if err != nil {
				appLog.Fatal("Database migration failed", zap.Error(err))
			}
			appLog.Info("Database migrations applied", zap.Strings("applied", applied))
		}

		// Initialize Redis connection
		redisCfg := pkgredis.FromConfig(&cfg.Redis, cfg.OTel.Enabled)
		redisClient, err = pkgredis.NewClient(ctx, redisCfg)
		if err != nil {
			appLog.Fatal("Redis connection failed", zap.Error(err))
		}
		defer redisClient.Close()
		appLog.Info(fmt.Sprintf("Redis connected (pool: %d, minIdle: %d)", redisCfg.PoolSize, redisCfg.MinIdleConns))

		stores = postgresStores(ctx, db, redisClient, &cfg.CheckIn, appLog)
	}

	// Initialize Kafka attempt publisher
	var attemptPublisher service.AttemptPublisher = service.NewNoOpAttemptPublisher()
	if cfg.Kafka.Enabled {
		pub, err := service.NewKafkaAttemptPublisher(ctx, &service.AttemptPublisherConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.CheckIn.AttemptsTopic,
			ServiceName: serviceName,
			ClientID:    cfg.Kafka.ClientID,
		})
		if err != nil {
			appLog.Warn("Kafka connection failed, using no-op publisher", zap.Error(err))
		} else {
			attemptPublisher = pub
			appLog.Info("Kafka attempt publisher connected", zap.String("topic", cfg.CheckIn.AttemptsTopic))
		}
	}
	defer attemptPublisher.Close()

	// Build dependency injection container
	container, err := di.NewContainer(&di.ContainerConfig{
		DB:               db,
		Redis:            redisClient,
		TicketRepo:       stores.tickets,
		EventRepo:        stores.events,
		StatsRepo:        stores.stats,
		ActivityRepo:     stores.activity,
		AttemptPublisher: attemptPublisher,
		ServiceConfig: &service.CheckInServiceConfig{
			StoreTimeout:    cfg.CheckIn.StoreTimeout,
			QRSecret:        cfg.CheckIn.QRSecret,
			RequireSignedQR: cfg.CheckIn.RequireSignedQR,
		},
		GraphQLPretty: cfg.IsDevelopment(),
		Logger:        appLog,
	})
	if err != nil {
		appLog.Fatal("Failed to build container", zap.Error(err))
	}

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))
	router.Use(middleware.RequestLogger(appLog, "/health", "/ready"))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	if db != nil {
		router.GET("/metrics", func(c *gin.Context) {
			stats := db.Stats()
			c.JSON(http.StatusOK, gin.H{
				"db_pool": gin.H{
					"total_conns":    stats.TotalConns(),
					"acquired_conns": stats.AcquiredConns(),
					"idle_conns":     stats.IdleConns(),
					"max_conns":      stats.MaxConns(),
				},
			})
		})
	}

	// API routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTMiddleware(&middleware.JWTConfig{
		Secret:             cfg.JWT.Secret,
		Issuer:             cfg.JWT.Issuer,
		TrustGatewayHeader: cfg.JWT.TrustGatewayHeader,
	}))
	{
		verifyChain := []gin.HandlerFunc{}
		if redisClient != nil {
			idempotencyConfig := middleware.DefaultIdempotencyConfig(redisClient.Client())
			if cfg.CheckIn.IdempotencyTTL > 0 {
				idempotencyConfig.TTL = cfg.CheckIn.IdempotencyTTL
			}
			verifyChain = append(verifyChain, middleware.IdempotencyMiddleware(idempotencyConfig))
		}
		verifyChain = append(verifyChain, container.CheckInHandler.Verify)

		events := v1.Group("/events/:event_id")
		{
			// Scan submission, replayed on a repeated Idempotency-Key
			events.POST("/verify", verifyChain...)

			// Dashboard reads
			events.GET("/stats", container.CheckInHandler.GetStats)
			events.GET("/attempts", container.CheckInHandler.GetRecentAttempts)
			events.GET("/tickets/:code", container.CheckInHandler.LookupTicket)
		}

		v1.POST("/graphql", container.GraphQLHandler)
		v1.GET("/graphql", container.GraphQLHandler)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Check-in Service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	// Give outstanding scans 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}

// storeSet is the repository bundle for one backend
type storeSet struct {
	tickets  repository.TicketRepository
	events   repository.EventRepository
	stats    repository.StatsRepository
	activity repository.ActivityRepository
}

func memoryStores(feedCap int) *storeSet {
	return &storeSet{
		tickets:  repository.NewMemoryTicketRepository(),
		events:   repository.NewMemoryEventRepository(),
		stats:    repository.NewMemoryStatsRepository(),
		activity: repository.NewMemoryActivityRepository(feedCap),
	}
}

// postgresStores puts Postgres behind the Redis read-through cache and keeps
// counters and the feed in Redis
func postgresStores(ctx context.Context, db *database.PostgresDB, redisClient *pkgredis.Client, cfg *config.CheckInConfig, appLog *logger.Logger) *storeSet {
	var tickets repository.TicketRepository = repository.NewPostgresTicketRepository(db.Pool())
	var events repository.EventRepository = repository.NewPostgresEventRepository(db.Pool())
	if cfg.TicketCacheTTL > 0 {
		tickets = repository.NewCachedTicketRepository(tickets, redisClient, cfg.TicketCacheTTL)
		events = repository.NewCachedEventRepository(events, redisClient, cfg.TicketCacheTTL)
	}

	statsRepo := repository.NewRedisStatsRepository(redisClient)

	// Pre-load Lua scripts into Redis
	if err := statsRepo.LoadScripts(ctx); err != nil {
		appLog.Warn("Failed to pre-load Lua scripts", zap.Error(err))
	} else {
		appLog.Info("Lua scripts pre-loaded into Redis")
	}

	return &storeSet{
		tickets:  tickets,
		events:   events,
		stats:    statsRepo,
		activity: repository.NewRedisActivityRepository(redisClient, cfg.ActivityFeedCap),
	}
}

func seedFromManifest(ctx context.Context, path string, stores *storeSet, appLog *logger.Logger) error {
	m, err := importer.LoadManifest(path)
	if err != nil {
		return err
	}
	res, err := importer.Apply(ctx, m, stores.events, stores.tickets, 0)
	if err != nil {
		return err
	}
	appLog.Info("Seeded memory store",
		zap.String("event_id", res.EventID),
		zap.Int("tickets", res.Inserted),
	)
	return nil
}
