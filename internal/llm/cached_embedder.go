package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/scholar-rag/backend/internal/cache/redis"
	"github.com/scholar-rag/backend/internal/metrics"
	"github.com/scholar-rag/backend/pkg/logger"
	"github.com/scholar-rag/backend/pkg/textutil"
)

const embeddingCacheTTL = 24 * time.Hour

// CachedEmbedder wraps an embedder with a redis cache keyed by text
// hash. Cache failures fall through to the inner embedder; a nil cache
// client disables caching entirely.
type CachedEmbedder struct {
	inner *Client
	cache *redis.Client
}

func NewCachedEmbedder(inner *Client, cache *redis.Client) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := textutil.HashContent(text)

	cached, found, err := e.cache.GetEmbedding(ctx, hash)
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	}
	if found {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	embedding, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetEmbedding(ctx, hash, embedding, embeddingCacheTTL); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
	return embedding, nil
}

func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))

	for i, text := range texts {
		cached, found, err := e.cache.GetEmbedding(ctx, textutil.HashContent(text))
		if err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		}
		if found {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			embeddings[i] = cached
			continue
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		fresh, err := e.inner.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, idx := range missingIdx {
			if j >= len(fresh) {
				break
			}
			embeddings[idx] = fresh[j]
			if err := e.cache.SetEmbedding(ctx, textutil.HashContent(missing[j]), fresh[j], embeddingCacheTTL); err != nil {
				logger.Warn("Embedding cache write failed", zap.Error(err))
			}
		}
	}

	return embeddings, nil
}
