package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-commerce-backend/internal/domain"

	"github.com/redis/go-redis/v9"
)

// keyPrefix versions every cache entry; bumping the version invalidates all
// cached results at once after a schema change.
const keyPrefix = "onboard:v1:full:"

// ErrCacheUnavailable is returned when no Redis client was configured.
// Readers treat it as a miss; the post-mutation write treats it as fatal.
var ErrCacheUnavailable = errors.New("onboarding cache unavailable")

type onboardingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds the Redis-backed onboarding result cache. A nil client is
// allowed so the service can boot without Redis; every call then returns
// ErrCacheUnavailable.
func New(client *redis.Client, ttl time.Duration) domain.OnboardingCache {
	return &onboardingCache{client: client, ttl: ttl}
}

func cacheKey(userID string) string {
	return keyPrefix + userID
}

func (c *onboardingCache) Get(ctx context.Context, userID string) (*domain.OnboardingResult, error) {
	if c.client == nil {
		return nil, ErrCacheUnavailable
	}

	raw, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // clean miss
		}
		return nil, fmt.Errorf("cache read failed: %w", err)
	}

	var result domain.OnboardingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// A corrupt entry behaves like a miss; the next write replaces it.
		return nil, fmt.Errorf("cache entry corrupt: %w", err)
	}
	return &result, nil
}

func (c *onboardingCache) Set(ctx context.Context, userID string, result *domain.OnboardingResult) error {
	if c.client == nil {
		return ErrCacheUnavailable
	}

	// Cached copies are served with cached=true on read; stored value keeps
	// cached=false so a direct store of the struct stays truthful.
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache encode failed: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

func (c *onboardingCache) Delete(ctx context.Context, userID string) error {
	if c.client == nil {
		return ErrCacheUnavailable
	}
	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}
