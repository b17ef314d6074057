package question

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 5 * time.Minute

// Cache provides Redis-backed question pool caching to offload DB/API calls.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ PoolCache = (*Cache)(nil)

func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(difficulty, locale string) string {
	return "questionpool:" + difficulty + ":" + locale
}

// Get returns the cached pool, or nil when nothing is cached.
func (c *Cache) Get(ctx context.Context, difficulty, locale string) ([]Question, error) {
	data, err := c.client.Get(ctx, cacheKey(difficulty, locale)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var qs []Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (c *Cache) Set(ctx context.Context, difficulty, locale string, qs []Question) error {
	data, err := json.Marshal(qs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(difficulty, locale), data, c.ttl).Err()
}
