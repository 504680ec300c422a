package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrConfigurationMissing is returned when a required setting is absent. The
// exchange target in particular must never be undefined at runtime.
var ErrConfigurationMissing = errors.New("configuration missing")

// Config is the full runtime configuration.
type Config struct {
	Server    Server
	Exchange  Exchange
	Database  Database
	Redis     RedisConfig
	Index     Index
	Audit     Audit
	Logging   Logging
	Aggregate Aggregate
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr               string
	JWTSigningKey      string
	EnableCreateRoutes bool
	RequestTimeout     time.Duration
}

// Exchange configures the remote pseudonym exchange service.
type Exchange struct {
	Endpoint         string
	TargetProviderID string
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Database selects the backing store. An empty URL selects the in-memory store.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the connection backing the redis enrollment index.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Enrollment index modes.
const (
	IndexOff    = "off"
	IndexMemory = "memory"
	IndexRedis  = "redis"
)

// Index enables the enrollment index. An index is only complete when every
// write to the subject store goes through gateways sharing it, so it is off
// unless the operator opts in. IndexMemory suits a single instance only.
type Index struct {
	Mode string
	TTL  time.Duration
}

// Audit selects where resolution audit events go. No brokers means log only.
type Audit struct {
	KafkaBrokers []string
	KafkaTopic   string
}

type Logging struct {
	Level  string
	Format string
}

// Aggregate bounds the per-subject dependent search fan-out.
type Aggregate struct {
	Concurrency int
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:               envOr("PSEUDONYM_GATEWAY_ADDR", ":8080"),
			JWTSigningKey:      os.Getenv("JWT_SIGNING_KEY"),
			EnableCreateRoutes: envBool("ENABLE_CREATE_ROUTES", true),
			RequestTimeout:     envDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
		Exchange: Exchange{
			Endpoint:         strings.TrimSpace(os.Getenv("PSEUDONYM_EXCHANGE_ENDPOINT")),
			TargetProviderID: strings.TrimSpace(os.Getenv("PSEUDONYM_EXCHANGE_TARGET_PROVIDER_ID")),
			Timeout:          envDuration("PSEUDONYM_EXCHANGE_TIMEOUT", 5*time.Second),
			BreakerThreshold: envInt("PSEUDONYM_EXCHANGE_BREAKER_THRESHOLD", 0),
			BreakerCooldown:  envDuration("PSEUDONYM_EXCHANGE_BREAKER_COOLDOWN", 30*time.Second),
		},
		Database: Database{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Index: Index{
			Mode: strings.ToLower(envOr("ENROLLMENT_INDEX", IndexOff)),
			TTL:  envDuration("ENROLLMENT_INDEX_TTL", 5*time.Minute),
		},
		Audit: Audit{
			KafkaBrokers: envList("AUDIT_KAFKA_BROKERS"),
			KafkaTopic:   envOr("AUDIT_KAFKA_TOPIC", "pseudonym-gateway.audit"),
		},
		Logging: Logging{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
		Aggregate: Aggregate{
			Concurrency: envInt("AGGREGATE_CONCURRENCY", 4),
		},
	}
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	if err := c.Exchange.Validate(); err != nil {
		return err
	}
	if c.Aggregate.Concurrency < 1 {
		return fmt.Errorf("AGGREGATE_CONCURRENCY must be positive, got %d", c.Aggregate.Concurrency)
	}
	switch c.Index.Mode {
	case "", IndexOff:
	case IndexMemory, IndexRedis:
		if c.Index.TTL <= 0 {
			return fmt.Errorf("ENROLLMENT_INDEX_TTL must be positive, got %s", c.Index.TTL)
		}
		if c.Index.Mode == IndexRedis && c.Redis.URL == "" {
			return fmt.Errorf("%w: REDIS_URL (ENROLLMENT_INDEX=redis)", ErrConfigurationMissing)
		}
	default:
		return fmt.Errorf("ENROLLMENT_INDEX must be one of off, memory, redis, got %q", c.Index.Mode)
	}
	return nil
}

// Validate requires both the endpoint and the target provider.
func (e Exchange) Validate() error {
	var missing []string
	if e.Endpoint == "" {
		missing = append(missing, "PSEUDONYM_EXCHANGE_ENDPOINT")
	}
	if e.TargetProviderID == "" {
		missing = append(missing, "PSEUDONYM_EXCHANGE_TARGET_PROVIDER_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
