package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pseudonym-gateway/internal/platform/config"
)

const pingTimeout = 5 * time.Second

// Client is the shared connection behind the enrollment index.
type Client struct {
	redis.UniversalClient
}

// New connects and pings. It returns nil, nil when REDIS_URL is empty, which
// callers treat as "no shared index".
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := universalOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewUniversalClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{UniversalClient: client}, nil
}

// universalOptions takes addressing and credentials from the URL and pool
// sizing from cfg. Zero values in cfg keep the go-redis defaults.
func universalOptions(cfg config.RedisConfig) (*redis.UniversalOptions, error) {
	parsed, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts := &redis.UniversalOptions{
		Addrs:        []string{parsed.Addr},
		Username:     parsed.Username,
		Password:     parsed.Password,
		DB:           parsed.DB,
		TLSConfig:    parsed.TLSConfig,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return opts, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
