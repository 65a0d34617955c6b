package tier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is a read-through cache for tier lookups. Get is on the entitlement
// and checkout hot paths; tiers change rarely, so short TTLs plus explicit
// invalidation on writes keep it correct.
type Cache interface {
	Get(ctx context.Context, id uuid.UUID) (*Tier, bool)
	Set(ctx context.Context, t *Tier)
	Invalidate(ctx context.Context, id uuid.UUID)
}

const (
	cacheKeyPrefix  = "tier:"
	defaultCacheTTL = 5 * time.Minute
)

type redisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache returns a Redis-backed Cache. A zero ttl falls back to the
// default of five minutes.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) Get(ctx context.Context, id uuid.UUID) (*Tier, bool) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+id.String()).Bytes()
	if err != nil {
		return nil, false
	}
	var t Tier
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false
	}
	return &t, true
}

func (c *redisCache) Set(ctx context.Context, t *Tier) {
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	// Cache failures are invisible to callers; the store remains the source
	// of truth.
	_ = c.client.Set(ctx, cacheKeyPrefix+t.ID.String(), raw, c.ttl).Err()
}

func (c *redisCache) Invalidate(ctx context.Context, id uuid.UUID) {
	_ = c.client.Del(ctx, cacheKeyPrefix+id.String()).Err()
}
