package embedding

import (
	"context"
	"time"

	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/cache"
)

const DefaultEmbeddingTTL = time.Hour

// CachedProvider memoizes vectors per (model, normalized text). Concurrent
// misses on the same key share a single upstream call.
type CachedProvider struct {
	inner EmbeddingProvider
	cache *cache.Cache[[]float32]
}

func NewCachedProvider(inner EmbeddingProvider, store cache.Store, log logger.ILogger, opts cache.Options) *CachedProvider {
	if opts.Namespace == "" {
		opts.Namespace = "embedding"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultEmbeddingTTL
	}
	return &CachedProvider{
		inner: inner,
		cache: cache.New[[]float32](store, log, opts),
	}
}

// Key derives the cache key. Normalization runs identically on read and write.
func Key(model, text string) string {
	return cache.HashKey(model, cache.Normalize(text))
}

// GetOrCompute returns the cached vector for (model, text) or invokes compute
// once for all concurrent callers. Failures reach every waiter and are not cached.
func (p *CachedProvider) GetOrCompute(ctx context.Context, model, text string, compute func(ctx context.Context) ([]float32, error)) ([]float32, error) {
	return p.cache.GetOrCompute(ctx, Key(model, text), nil, compute)
}

func (p *CachedProvider) Model() string { return p.inner.Model() }

// Generate satisfies EmbeddingProvider. The task type is part of the model
// segment of the key because query and document embeddings may differ.
func (p *CachedProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	model := p.inner.Model()
	if taskType != "" {
		model += "#" + taskType
	}
	vec, err := p.GetOrCompute(ctx, model, text, func(ctx context.Context) ([]float32, error) {
		res, err := p.inner.Generate(ctx, text, taskType)
		if err != nil {
			return nil, err
		}
		return res.Embedding.Values, nil
	})
	if err != nil {
		return nil, err
	}
	return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: vec}}, nil
}
