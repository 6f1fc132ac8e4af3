package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds application configuration from environment.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Log      LogConfig
}

type HTTPConfig struct {
	Port            string        `env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" env-default:"*"`
}

type DatabaseConfig struct {
	Driver   string `env:"DB_DRIVER" env-default:"postgres"`
	URL      string `env:"DATABASE_URL" env-required:"true"`
	PoolSize int    `env:"DB_POOL_SIZE" env-default:"20"`
}

type RedisConfig struct {
	// URL is optional; empty runs the service without a list cache.
	URL      string        `env:"REDIS_URL"`
	PoolSize int           `env:"REDIS_POOL_SIZE" env-default:"50"`
	CacheTTL time.Duration `env:"CACHE_TTL" env-default:"5m"`
}

type KafkaConfig struct {
	// Brokers is optional; empty disables the change feed and history worker.
	Brokers    []string `env:"KAFKA_BROKERS"`
	Topic      string   `env:"KAFKA_TOPIC" env-default:"todo-events"`
	Partitions int      `env:"KAFKA_PARTITIONS" env-default:"4"`
	GroupID    string   `env:"KAFKA_GROUP_ID" env-default:"todo-history"`
}

type AuthConfig struct {
	// JWTSecret enables bearer auth on mutating routes when set.
	JWTSecret string `env:"JWT_SECRET"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	cfg.HTTP.CORSOrigins = compact(cfg.HTTP.CORSOrigins)
	cfg.Kafka.Brokers = compact(cfg.Kafka.Brokers)
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))

	switch cfg.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, cfg.Database.Driver)
	}
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	if cfg.Database.PoolSize <= 0 {
		return nil, fmt.Errorf("DB_POOL_SIZE must be positive, got %d", cfg.Database.PoolSize)
	}
	if cfg.Kafka.Partitions <= 0 {
		cfg.Kafka.Partitions = 1
	}
	return &cfg, nil
}

// CacheEnabled reports whether a Redis URL was configured.
func (c *Config) CacheEnabled() bool {
	return c.Redis.URL != ""
}

// EventsEnabled reports whether Kafka brokers were configured.
func (c *Config) EventsEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// AuthEnabled reports whether mutating routes require a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
