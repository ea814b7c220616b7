package config

import (
	"fmt"
	"time"

	"github.com/utafrali/posledger/internal/repository/postgres"
	pkgconfig "github.com/utafrali/posledger/pkg/config"
	"github.com/utafrali/posledger/pkg/database"
	"github.com/utafrali/posledger/pkg/middleware"
)

// Config holds all configuration for the ledger service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort            int      `env:"LEDGER_HTTP_PORT" envDefault:"8010"`
	ShutdownTimeoutSecs int      `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"15"`
	CORSAllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"posledger"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"posledger_secret"`
	PostgresDB   string `env:"LEDGER_DB_NAME" envDefault:"posledger"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Ledger
	TxIsolation       string `env:"LEDGER_TX_ISOLATION" envDefault:"read_committed"`
	LowStockThreshold int    `env:"LOW_STOCK_THRESHOLD" envDefault:"5"`

	// Redis (checkout idempotency keys)
	RedisEnabled       bool   `env:"REDIS_ENABLED" envDefault:"true"`
	RedisHost          string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort          int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword      string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB            int    `env:"REDIS_DB" envDefault:"0"`
	IdempotencyTTLSecs int    `env:"IDEMPOTENCY_TTL_SECONDS" envDefault:"86400"`

	// Kafka
	KafkaEnabled       bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"posledger"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Per-terminal throttle on stock-changing requests (0 disables)
	WriteRateLimitRPS   float64 `env:"WRITE_RATE_LIMIT_RPS" envDefault:"20"`
	WriteRateLimitBurst int     `env:"WRITE_RATE_LIMIT_BURST" envDefault:"40"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load ledger config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := postgres.IsolationLevel(c.TxIsolation); err != nil {
		return fmt.Errorf("LEDGER_TX_ISOLATION: %w", err)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if c.RedisEnabled && c.IdempotencyTTLSecs <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL_SECONDS must be > 0, got %d", c.IdempotencyTTLSecs)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.WriteRateLimitRPS < 0 {
		return fmt.Errorf("WRITE_RATE_LIMIT_RPS must be >= 0, got %f", c.WriteRateLimitRPS)
	}
	if c.WriteRateLimitRPS > 0 && c.WriteRateLimitBurst <= 0 {
		return fmt.Errorf("WRITE_RATE_LIMIT_BURST must be > 0 when rate limiting is enabled, got %d", c.WriteRateLimitBurst)
	}
	if c.ShutdownTimeoutSecs <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_SECONDS must be > 0, got %d", c.ShutdownTimeoutSecs)
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return c.Postgres().DSN()
}

// Postgres returns the pool configuration.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// WriteRateLimit returns the per-terminal throttle for stock writes.
func (c *Config) WriteRateLimit() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{RPS: c.WriteRateLimitRPS, Burst: c.WriteRateLimitBurst}
}

// IdempotencyTTL is how long checkout idempotency keys are remembered.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLSecs) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSecs) * time.Second
}

// SlowQueryThreshold is the duration above which queries are logged.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
