package query

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/internal/cache/redis"
	"github.com/atlas-gmao/backend/internal/retrieval"
	"github.com/atlas-gmao/backend/pkg/logger"
	"github.com/atlas-gmao/backend/pkg/utils"
)

const embeddingTTL = 24 * time.Hour

// CachedEmbedder fronts the embedding service with the redis cache.
// Cache failures fall through to the service; identical text yields the
// same vector so a stale entry is harmless.
type CachedEmbedder struct {
	embedder retrieval.Embedder
	cache    *redis.Client
}

func NewCachedEmbedder(embedder retrieval.Embedder, cache *redis.Client) *CachedEmbedder {
	return &CachedEmbedder{embedder: embedder, cache: cache}
}

func (e *CachedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if e.cache == nil {
		return e.embedder.GenerateEmbedding(ctx, text)
	}

	key := utils.HashString(text)

	if cached, ok, err := e.cache.GetEmbedding(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		logger.Debug("Embedding cache lookup failed", zap.Error(err))
	}

	embedding, err := e.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetEmbedding(ctx, key, embedding, embeddingTTL); err != nil {
		logger.Debug("Embedding cache store failed", zap.Error(err))
	}

	return embedding, nil
}
