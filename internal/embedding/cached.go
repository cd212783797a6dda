package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/pkg/logger"
	"github.com/kbassist/backend/pkg/utils"
)

var ErrNotCacheable = errors.New("provider vectors depend on the fitted corpus and cannot be cached")

// Cache stores vectors by key. A miss is (nil, false, nil).
type Cache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, vec []float32) error
}

// Cached serves repeated texts from a Cache and encodes only the misses. Cache
// failures degrade to encoding and are logged.
type Cached struct {
	inner Provider
	cache Cache
}

func NewCached(inner Provider, cache Cache) (*Cached, error) {
	if _, ok := inner.(Fitter); ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCacheable, inner.Name())
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

func (c *Cached) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateInput(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		keys[i] = utils.CacheKey("emb", c.inner.Name(), utils.HashString(text))
		vec, ok, err := c.cache.GetEmbedding(ctx, keys[i])
		if err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		}
		if ok && len(vec) == c.inner.Dimension() {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	metrics.CacheHits.WithLabelValues("embedding").Add(float64(len(texts) - len(missTexts)))
	metrics.CacheMisses.WithLabelValues("embedding").Add(float64(len(missTexts)))

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Encode(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := c.cache.SetEmbedding(ctx, keys[i], vecs[j]); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}

	logger.Debug("Embeddings encoded",
		zap.Int("requested", len(texts)),
		zap.Int("cache_misses", len(missTexts)),
	)

	return out, nil
}
