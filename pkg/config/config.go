package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Ticket store backends
const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	OTel     OTelConfig     `mapstructure:"otel"`
	CheckIn  CheckInConfig  `mapstructure:"checkin"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings for the ticket database
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
}

// JWTConfig holds settings for validating gateway-issued operator tokens
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
	// TrustGatewayHeader accepts X-User-ID from the gateway when no token is sent
	TrustGatewayHeader bool `mapstructure:"trust_gateway_header"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ServiceName    string        `mapstructure:"service_name"`
	CollectorAddr  string        `mapstructure:"collector_addr"`
	SampleRatio    float64       `mapstructure:"sample_ratio"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
	MetricInterval time.Duration `mapstructure:"metric_interval"`
}

// CheckInConfig holds settings for the verification engine and its collaborators
type CheckInConfig struct {
	// StoreBackend selects the ticket store: "postgres" or "memory"
	StoreBackend string `mapstructure:"store_backend"`
	// SeedManifest is a ticket manifest loaded at startup by the memory backend
	SeedManifest string `mapstructure:"seed_manifest"`
	// ActivityFeedCap bounds the per-event recent attempts feed
	ActivityFeedCap int `mapstructure:"activity_feed_cap"`
	// StoreTimeout bounds every ticket/stats/activity store call
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
	// TicketCacheTTL is the staleness bound for cached ticket lookups (0 disables the cache)
	TicketCacheTTL time.Duration `mapstructure:"ticket_cache_ttl"`
	// QRSecret keys QR payload signatures (JWT HS256 and composite MACs)
	QRSecret string `mapstructure:"qr_secret"`
	// RequireSignedQR rejects unsigned QR payloads as INVALID_FORMAT
	RequireSignedQR   bool          `mapstructure:"require_signed_qr"`
	AttemptsTopic     string        `mapstructure:"attempts_topic"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	// ReconcileEventIDs lists the events the stats reconciler walks
	ReconcileEventIDs []string `mapstructure:"reconcile_event_ids"`
	ArchiverBatchSize int           `mapstructure:"archiver_batch_size"`
	ArchiverInterval  time.Duration `mapstructure:"archiver_interval"`
	IdempotencyTTL    time.Duration `mapstructure:"idempotency_ttl"`
	// AutoMigrate applies the embedded schema at startup (postgres backend only)
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine, environment variables still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
	}

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func isNotExist(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "checkin-service")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8086)
	v.SetDefault("SERVER_READ_TIMEOUT", "5s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Ticket database
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "ticket_db")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "5m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")
	v.SetDefault("REDIS_POOL_TIMEOUT", "4s")

	// Kafka defaults
	v.SetDefault("KAFKA_ENABLED", true)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "checkin-attempt-archiver")
	v.SetDefault("KAFKA_CLIENT_ID", "checkin-service")

	// JWT defaults
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", "booking-rush")
	v.SetDefault("JWT_TRUST_GATEWAY_HEADER", false)

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_SERVICE_NAME", "checkin-service")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
	v.SetDefault("OTEL_METRICS_ENABLED", true)
	v.SetDefault("OTEL_METRIC_INTERVAL", "15s")

	// Check-in defaults
	v.SetDefault("CHECKIN_STORE_BACKEND", StoreBackendPostgres)
	v.SetDefault("CHECKIN_SEED_MANIFEST", "")
	v.SetDefault("CHECKIN_ACTIVITY_FEED_CAP", 500)
	v.SetDefault("CHECKIN_STORE_TIMEOUT", "2s")
	v.SetDefault("CHECKIN_TICKET_CACHE_TTL", "30s")
	v.SetDefault("CHECKIN_QR_SECRET", "")
	v.SetDefault("CHECKIN_REQUIRE_SIGNED_QR", false)
	v.SetDefault("CHECKIN_ATTEMPTS_TOPIC", "checkin-attempts")
	v.SetDefault("CHECKIN_RECONCILE_INTERVAL", "1m")
	v.SetDefault("CHECKIN_RECONCILE_EVENT_IDS", "")
	v.SetDefault("CHECKIN_ARCHIVER_BATCH_SIZE", 500)
	v.SetDefault("CHECKIN_ARCHIVER_INTERVAL", "2s")
	v.SetDefault("CHECKIN_IDEMPOTENCY_TTL", "5m")
	v.SetDefault("CHECKIN_AUTO_MIGRATE", false)
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")
	cfg.Redis.PoolTimeout = v.GetDuration("REDIS_POOL_TIMEOUT")

	// Kafka
	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ConsumerGroup = v.GetString("KAFKA_CONSUMER_GROUP")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")
	cfg.JWT.TrustGatewayHeader = v.GetBool("JWT_TRUST_GATEWAY_HEADER")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")
	cfg.OTel.MetricsEnabled = v.GetBool("OTEL_METRICS_ENABLED")
	cfg.OTel.MetricInterval = v.GetDuration("OTEL_METRIC_INTERVAL")

	// Check-in
	cfg.CheckIn.StoreBackend = strings.ToLower(v.GetString("CHECKIN_STORE_BACKEND"))
	cfg.CheckIn.SeedManifest = v.GetString("CHECKIN_SEED_MANIFEST")
	cfg.CheckIn.ActivityFeedCap = v.GetInt("CHECKIN_ACTIVITY_FEED_CAP")
	cfg.CheckIn.StoreTimeout = v.GetDuration("CHECKIN_STORE_TIMEOUT")
	cfg.CheckIn.TicketCacheTTL = v.GetDuration("CHECKIN_TICKET_CACHE_TTL")
	cfg.CheckIn.QRSecret = v.GetString("CHECKIN_QR_SECRET")
	cfg.CheckIn.RequireSignedQR = v.GetBool("CHECKIN_REQUIRE_SIGNED_QR")
	cfg.CheckIn.AttemptsTopic = v.GetString("CHECKIN_ATTEMPTS_TOPIC")
	cfg.CheckIn.ReconcileInterval = v.GetDuration("CHECKIN_RECONCILE_INTERVAL")
	cfg.CheckIn.ReconcileEventIDs = splitList(v.GetString("CHECKIN_RECONCILE_EVENT_IDS"))
	cfg.CheckIn.ArchiverBatchSize = v.GetInt("CHECKIN_ARCHIVER_BATCH_SIZE")
	cfg.CheckIn.ArchiverInterval = v.GetDuration("CHECKIN_ARCHIVER_INTERVAL")
	cfg.CheckIn.IdempotencyTTL = v.GetDuration("CHECKIN_IDEMPOTENCY_TTL")
	cfg.CheckIn.AutoMigrate = v.GetBool("CHECKIN_AUTO_MIGRATE")

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.IsProduction() && c.JWT.Secret == defaultJWTSecret {
		return fmt.Errorf("JWT secret must be changed in production")
	}

	switch c.CheckIn.StoreBackend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return fmt.Errorf("CHECKIN_STORE_BACKEND must be %q or %q, got %q", StoreBackendPostgres, StoreBackendMemory, c.CheckIn.StoreBackend)
	}

	if c.CheckIn.ActivityFeedCap <= 0 {
		return fmt.Errorf("CHECKIN_ACTIVITY_FEED_CAP must be positive, got %d", c.CheckIn.ActivityFeedCap)
	}

	if c.CheckIn.StoreTimeout <= 0 {
		return fmt.Errorf("CHECKIN_STORE_TIMEOUT must be positive")
	}

	if c.CheckIn.RequireSignedQR && c.CheckIn.QRSecret == "" {
		return fmt.Errorf("CHECKIN_QR_SECRET is required when CHECKIN_REQUIRE_SIGNED_QR is set")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka is enabled")
	}

	return nil
}

// ValidateDatabase validates ticket database configuration
func (c *Config) ValidateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DATABASE_HOST is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DATABASE_DBNAME is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
