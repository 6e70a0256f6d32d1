package di

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-checkin/internal/graphql"
	"github.com/prohmpiriya/booking-rush-checkin/internal/handler"
	"github.com/prohmpiriya/booking-rush-checkin/internal/repository"
	"github.com/prohmpiriya/booking-rush-checkin/internal/service"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/database"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/logger"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/redis"
)

// Container holds all dependencies for the check-in service
type Container struct {
	// Infrastructure (nil when the memory backend is selected)
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	TicketRepo   repository.TicketRepository
	EventRepo    repository.EventRepository
	StatsRepo    repository.StatsRepository
	ActivityRepo repository.ActivityRepository

	// Publishers
	AttemptPublisher service.AttemptPublisher

	// Services
	StatsService    service.StatsService
	ActivityService service.ActivityService
	CheckInService  service.CheckInService

	// Handlers
	HealthHandler  *handler.HealthHandler
	CheckInHandler *handler.CheckInHandler
	GraphQLHandler gin.HandlerFunc
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB               *database.PostgresDB
	Redis            *redis.Client
	TicketRepo       repository.TicketRepository
	EventRepo        repository.EventRepository
	StatsRepo        repository.StatsRepository
	ActivityRepo     repository.ActivityRepository
	AttemptPublisher service.AttemptPublisher
	ServiceConfig    *service.CheckInServiceConfig
	GraphQLPretty    bool
	Logger           *logger.Logger
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	if cfg.TicketRepo == nil || cfg.EventRepo == nil || cfg.StatsRepo == nil || cfg.ActivityRepo == nil {
		return nil, fmt.Errorf("all repositories are required")
	}

	c := &Container{
		DB:               cfg.DB,
		Redis:            cfg.Redis,
		TicketRepo:       cfg.TicketRepo,
		EventRepo:        cfg.EventRepo,
		StatsRepo:        cfg.StatsRepo,
		ActivityRepo:     cfg.ActivityRepo,
		AttemptPublisher: cfg.AttemptPublisher,
	}
	if c.AttemptPublisher == nil {
		c.AttemptPublisher = service.NewNoOpAttemptPublisher()
	}

	// Initialize services
	c.StatsService = service.NewStatsService(c.StatsRepo, c.EventRepo, c.TicketRepo)
	c.ActivityService = service.NewActivityService(c.ActivityRepo)
	c.CheckInService = service.NewCheckInService(
		c.TicketRepo,
		c.StatsService,
		c.ActivityService,
		c.AttemptPublisher,
		cfg.Logger,
		cfg.ServiceConfig,
	)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.dbChecker(), c.redisChecker())
	c.CheckInHandler = handler.NewCheckInHandler(c.CheckInService)

	gql, err := graphql.GinHandler(c.CheckInService, cfg.GraphQLPretty)
	if err != nil {
		return nil, err
	}
	c.GraphQLHandler = gql

	return c, nil
}

// dbChecker avoids handing a typed nil to the interface
func (c *Container) dbChecker() handler.HealthChecker {
	if c.DB == nil {
		return nil
	}
	return c.DB
}

func (c *Container) redisChecker() handler.HealthChecker {
	if c.Redis == nil {
		return nil
	}
	return c.Redis
}
