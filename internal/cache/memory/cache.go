// Package memory is the in-process cache backend, used when Redis is not
// configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/kbassist/backend/pkg/logger"
)

const (
	queryPrefix     = "query:"
	embeddingPrefix = "embedding:"
)

// Cache mirrors the Redis client's query and embedding methods. Responses are
// stored JSON-encoded so callers never share mutable values.
type Cache struct {
	cache *gocache.Cache
}

func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &Cache{cache: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *Cache) SetQuery(ctx context.Context, queryHash string, response any, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(queryPrefix+queryHash, data, ttl)
	return nil
}

func (c *Cache) GetQuery(ctx context.Context, queryHash string, response any) (bool, error) {
	v, ok := c.cache.Get(queryPrefix + queryHash)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(v.([]byte), response); err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return true, nil
}

func (c *Cache) InvalidateQueries(ctx context.Context) error {
	deleted := 0
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, queryPrefix) {
			c.cache.Delete(key)
			deleted++
		}
	}
	logger.Debug("Query cache invalidated", zap.Int("keys", deleted))
	return nil
}

func (c *Cache) SetEmbedding(ctx context.Context, textHash string, embedding []float32) error {
	cp := append([]float32(nil), embedding...)
	c.cache.Set(embeddingPrefix+textHash, cp, gocache.NoExpiration)
	return nil
}

func (c *Cache) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	v, ok := c.cache.Get(embeddingPrefix + textHash)
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), v.([]float32)...), true, nil
}

func (c *Cache) ItemCount() int {
	return c.cache.ItemCount()
}
