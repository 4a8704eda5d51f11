// Package cache provides the Dragonfly/Redis client shared by the link
// liveness cache and the per-user token budget.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis/Dragonfly client.
type Cache struct {
	Client *redis.Client
}

// Option tunes client timeouts.
type Option func(*redis.Options)

// WithDialTimeout overrides the connect timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

// WithIOTimeout overrides both read and write timeouts.
func WithIOTimeout(d time.Duration) Option {
	return func(o *redis.Options) {
		o.ReadTimeout = d
		o.WriteTimeout = d
	}
}

// ParseURL validates a Redis connection URL and applies the default timeouts
// followed by opts.
func ParseURL(url string, opts ...Option) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}

	o.DialTimeout = 5 * time.Second
	o.ReadTimeout = 3 * time.Second
	o.WriteTimeout = 3 * time.Second
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// New creates a new cache client and verifies it answers PING.
func New(ctx context.Context, url string, opts ...Option) (*Cache, error) {
	o, err := ParseURL(url, opts...)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(o)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	return &Cache{Client: client}, nil
}

// Close shuts down the cache client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck verifies the cache connection is alive.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
