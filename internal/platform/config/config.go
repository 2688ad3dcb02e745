// Package config builds the process configuration from the environment so main
// stays lean. Nothing here is a package-level mutable; the parsed Config is
// constructed once and handed to the components that need it.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full engine configuration. Channel routing lives in a separate
// YAML file (RoutingFile) because operators edit it independently of the
// process environment.
type Config struct {
	Addr     string `env:"BEACON_ADDR" envDefault:":8080"`
	LogLevel string `env:"BEACON_LOG_LEVEL" envDefault:"info"`

	// RoutingFile maps stakeholder groups to channels. See routing.Load.
	RoutingFile string `env:"BEACON_ROUTING_FILE" envDefault:"routing.yaml"`

	// JWTSigningKey protects the operator audit-query surface.
	JWTSigningKey string `env:"BEACON_JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`

	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Dispatch  DispatchConfig
	RateLimit RateLimitConfig
	Action    ActionConfig
}

// PostgresConfig selects the durable audit store. An empty URL falls back to
// the in-memory store (tests, local development).
type PostgresConfig struct {
	URL          string        `env:"BEACON_POSTGRES_URL"`
	MaxOpenConns int           `env:"BEACON_POSTGRES_MAX_OPEN_CONNS" envDefault:"10"`
	ConnTimeout  time.Duration `env:"BEACON_POSTGRES_CONN_TIMEOUT" envDefault:"5s"`
}

// RedisConfig selects the distributed rate-limit state. An empty URL falls
// back to per-process in-memory buckets.
type RedisConfig struct {
	URL          string        `env:"BEACON_REDIS_URL"`
	PoolSize     int           `env:"BEACON_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"BEACON_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"BEACON_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"BEACON_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"BEACON_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig enables the streaming intake. Producers publish events to Topic;
// the engine consumes them with the same semantics as the HTTP intake.
type KafkaConfig struct {
	Brokers []string `env:"BEACON_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"BEACON_KAFKA_TOPIC" envDefault:"beacon.events"`
	Group   string   `env:"BEACON_KAFKA_GROUP" envDefault:"beacon-engine"`
}

// Enabled reports whether the Kafka intake should be started.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// DispatchConfig bounds the delivery state machine.
type DispatchConfig struct {
	Workers         int           `env:"BEACON_DISPATCH_WORKERS" envDefault:"16"`
	MaxRetries      int           `env:"BEACON_DISPATCH_MAX_RETRIES" envDefault:"3"`
	BackoffBase     time.Duration `env:"BEACON_DISPATCH_BACKOFF_BASE" envDefault:"1s"`
	BackoffFactor   float64       `env:"BEACON_DISPATCH_BACKOFF_FACTOR" envDefault:"2.0"`
	BackoffMax      time.Duration `env:"BEACON_DISPATCH_BACKOFF_MAX" envDefault:"60s"`
	RequestTimeout  time.Duration `env:"BEACON_DISPATCH_REQUEST_TIMEOUT" envDefault:"30s"`
	MaxConns        int           `env:"BEACON_DISPATCH_MAX_CONNS" envDefault:"100"`
	MaxConnsPerHost int           `env:"BEACON_DISPATCH_MAX_CONNS_PER_HOST" envDefault:"10"`
}

// RateLimitConfig provides per-channel defaults; individual channels may
// override rate and burst in the routing file.
type RateLimitConfig struct {
	RatePerMinute  int           `env:"BEACON_RATELIMIT_PER_MINUTE" envDefault:"60"`
	Burst          int           `env:"BEACON_RATELIMIT_BURST" envDefault:"10"`
	AcquireTimeout time.Duration `env:"BEACON_RATELIMIT_ACQUIRE_TIMEOUT" envDefault:"2m"`
}

// ActionConfig points at the external collaborators invoked by action verbs.
// Empty URLs disable the collaborator (the action is still recorded).
type ActionConfig struct {
	PagerURL   string        `env:"BEACON_ACTION_PAGER_URL"`
	JobQueue   string        `env:"BEACON_ACTION_JOBQUEUE_URL"`
	ArchiveURL string        `env:"BEACON_ACTION_ARCHIVE_URL"`
	Timeout    time.Duration `env:"BEACON_ACTION_TIMEOUT" envDefault:"10s"`
}

// Load parses the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Dispatch.Workers <= 0 {
		return Config{}, fmt.Errorf("dispatch workers must be positive, got %d", cfg.Dispatch.Workers)
	}
	if cfg.Dispatch.MaxRetries < 0 {
		return Config{}, fmt.Errorf("max retries must be non-negative, got %d", cfg.Dispatch.MaxRetries)
	}
	return cfg, nil
}
