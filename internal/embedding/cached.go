// Package embedding provides decorators over domain.Embedder.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/calyx-labs/ragline/internal/db"
	"github.com/calyx-labs/ragline/internal/domain"
	"github.com/calyx-labs/ragline/internal/metrics"
)

// kvStore is the consumer interface for the cache backend.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedEmbedder wraps an Embedder with a read-through vector cache.
// Cache keys are derived from the model and the exact input text, so a
// model change never serves stale vectors. Cache failures degrade to the
// inner embedder; they are logged but never surfaced to the caller.
type CachedEmbedder struct {
	inner  domain.Embedder
	store  kvStore
	model  string
	prefix string
	logger *zap.Logger
}

// NewCachedEmbedder wraps an embedder with a read-through cache.
func NewCachedEmbedder(inner domain.Embedder, store kvStore, model, keyPrefix string, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		store:  store,
		model:  model,
		prefix: keyPrefix,
		logger: logger,
	}
}

// Embed returns a cached vector when present, otherwise delegates to the
// inner embedder and stores the result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	raw, err := c.store.Get(ctx, key)
	if err == nil {
		var cached domain.EmbeddingResult
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			return cached, nil
		}
		c.logger.Warn("Corrupt embedding cache entry, re-embedding", zap.String("key", key))
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
	}

	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	if raw, jsonErr := json.Marshal(result); jsonErr == nil {
		if setErr := c.store.Set(ctx, key, raw); setErr != nil {
			c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(setErr))
		}
	}

	return result, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return fmt.Sprintf("%sembcache:%s", c.prefix, hex.EncodeToString(sum[:]))
}
