package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/itilprep/itil-exam-backend/internal/config"
	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// CatalogCache keeps the full question catalog in Redis so new sessions do
// not hit PostgreSQL.
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCatalogCache creates a catalog cache with the given TTL.
func NewCatalogCache(client *redis.Client, ttl time.Duration) *CatalogCache {
	return &CatalogCache{client: client, ttl: ttl}
}

// Get returns the cached catalog. A miss returns (nil, nil).
func (c *CatalogCache) Get(ctx context.Context) ([]model.Question, error) {
	data, err := c.client.Get(ctx, config.CacheKey.QuestionCatalogKey()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var questions []model.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func (c *CatalogCache) Set(ctx context.Context, questions []model.Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, config.CacheKey.QuestionCatalogKey(), data, c.ttl).Err()
}

func (c *CatalogCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, config.CacheKey.QuestionCatalogKey()).Err()
}
