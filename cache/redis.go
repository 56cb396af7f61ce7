package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss signals the key is absent; callers fall through to the source.
var ErrMiss = errors.New("cache: miss")

// Connect initializes a Redis client from URL or host:port input.
// Supporting both formats keeps local/dev and container config paths simple.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("cache: parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// ViewCache stores serialized display views with a TTL. It backs the
// non-linearizable read path only: a stale entry is tolerated by design
// of the read model, never consulted by the protocol itself.
type ViewCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewViewCache(client *redis.Client, ttl time.Duration) *ViewCache {
	return &ViewCache{client: client, ttl: ttl}
}

func (c *ViewCache) key(commitmentID string) string {
	return "review:" + commitmentID
}

// Get returns the cached view bytes or ErrMiss.
func (c *ViewCache) Get(ctx context.Context, commitmentID string) ([]byte, error) {
	b, err := c.client.Get(ctx, c.key(commitmentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache: get: %w", err)
	}
	return b, nil
}

// Set stores the view bytes with the configured TTL.
func (c *ViewCache) Set(ctx context.Context, commitmentID string, body []byte) error {
	if err := c.client.Set(ctx, c.key(commitmentID), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Invalidate drops the cached view after a transition. Best-effort: the
// TTL bounds staleness if the delete is lost.
func (c *ViewCache) Invalidate(ctx context.Context, commitmentID string) error {
	if err := c.client.Del(ctx, c.key(commitmentID)).Err(); err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	return nil
}
