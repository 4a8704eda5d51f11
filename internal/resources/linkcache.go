package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const linkCachePrefix = "linkcheck:"

// LinkCache stores liveness results between requests.
type LinkCache interface {
	Get(ctx context.Context, rawURL string) (LinkStatus, bool, error)
	Set(ctx context.Context, rawURL string, status LinkStatus) error
}

// CachedLinkChecker consults a LinkCache before checking a link. Transport
// errors are never cached.
type CachedLinkChecker struct {
	next  LinkChecker
	cache LinkCache
}

// NewCachedLinkChecker wraps next with cache.
func NewCachedLinkChecker(next LinkChecker, cache LinkCache) *CachedLinkChecker {
	return &CachedLinkChecker{next: next, cache: cache}
}

func (c *CachedLinkChecker) Check(ctx context.Context, rawURL string) (LinkStatus, error) {
	status, ok, err := c.cache.Get(ctx, rawURL)
	if err != nil {
		slog.Warn("link cache read failed", "url", rawURL, "error", err)
	}
	if ok {
		return status, nil
	}

	status, err = c.next.Check(ctx, rawURL)
	if err != nil {
		return status, err
	}
	if err := c.cache.Set(ctx, rawURL, status); err != nil {
		slog.Warn("link cache write failed", "url", rawURL, "error", err)
	}
	return status, nil
}

// RedisLinkCache keeps liveness results in Redis with a TTL.
type RedisLinkCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLinkCache creates a cache on client whose entries expire after ttl.
func NewRedisLinkCache(client *redis.Client, ttl time.Duration) *RedisLinkCache {
	return &RedisLinkCache{client: client, ttl: ttl}
}

func (c *RedisLinkCache) Get(ctx context.Context, rawURL string) (LinkStatus, bool, error) {
	val, err := c.client.Get(ctx, linkCachePrefix+rawURL).Result()
	if errors.Is(err, redis.Nil) {
		return LinkStatus{}, false, nil
	}
	if err != nil {
		return LinkStatus{}, false, fmt.Errorf("reading link status: %w", err)
	}
	status, err := decodeLinkStatus(val)
	if err != nil {
		return LinkStatus{}, false, err
	}
	return status, true, nil
}

func (c *RedisLinkCache) Set(ctx context.Context, rawURL string, status LinkStatus) error {
	if err := c.client.Set(ctx, linkCachePrefix+rawURL, encodeLinkStatus(status), c.ttl).Err(); err != nil {
		return fmt.Errorf("writing link status: %w", err)
	}
	return nil
}

// encodeLinkStatus formats a status as "reachable:code:reason".
func encodeLinkStatus(s LinkStatus) string {
	return fmt.Sprintf("%t:%d:%s", s.Reachable, s.StatusCode, s.Reason)
}

func decodeLinkStatus(val string) (LinkStatus, error) {
	parts := strings.SplitN(val, ":", 3)
	if len(parts) != 3 {
		return LinkStatus{}, fmt.Errorf("malformed link status %q", val)
	}
	reachable, err := strconv.ParseBool(parts[0])
	if err != nil {
		return LinkStatus{}, fmt.Errorf("malformed link status %q: %w", val, err)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return LinkStatus{}, fmt.Errorf("malformed link status %q: %w", val, err)
	}
	return LinkStatus{Reachable: reachable, StatusCode: code, Reason: parts[2]}, nil
}
