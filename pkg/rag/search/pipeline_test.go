package search

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/apperror"
	"docqa-be/pkg/cache"
	"docqa-be/pkg/embedding"
	"docqa-be/pkg/rag/rank"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticEmbedder struct {
	vec   []float32
	delay time.Duration
	calls int32
}

func (e *staticEmbedder) Model() string { return "static" }

func (e *staticEmbedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: e.vec}}, nil
}

type countingIndex struct {
	VectorIndex
	searches int32
}

func (c *countingIndex) Search(ctx context.Context, q Query) ([]rank.RawResult, error) {
	atomic.AddInt32(&c.searches, 1)
	return c.VectorIndex.Search(ctx, q)
}

func body(topic string) string {
	return strings.Repeat(topic+" ", 60)
}

func seededIndex(t *testing.T) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex("", nil)
	require.NoError(t, err)

	err = idx.Upsert(context.Background(), []Chunk{
		{ID: "a", DocumentID: "doc-1", UserID: "u1", CollectionID: "c1", Filename: "vectors.md", Content: body("vector databases"), Embedding: []float32{1, 0, 0}},
		{ID: "b", DocumentID: "doc-2", UserID: "u1", CollectionID: "c1", Filename: "search.md", Content: body("vector search"), Embedding: []float32{0.8, 0.6, 0}},
		{ID: "c", DocumentID: "doc-3", UserID: "u1", Filename: "cooking.md", Content: body("pasta"), Embedding: []float32{0, 1, 0}},
		{ID: "d", DocumentID: "doc-4", UserID: "u2", Filename: "other.md", Content: body("vector databases"), Embedding: []float32{1, 0, 0}},
	})
	require.NoError(t, err)
	return idx
}

func newPipeline(t *testing.T, embedder embedding.EmbeddingProvider, index VectorIndex, cfg Config) (*Pipeline, *ResultCache) {
	t.Helper()
	ranker, err := rank.NewRanker(rank.Config{})
	require.NoError(t, err)
	results := NewResultCache(cache.NewMemoryStore(time.Minute), logger.NewNopLogger(), cache.Options{})
	return NewPipeline(embedder, index, results, ranker, cfg, logger.NewNopLogger()), results
}

func TestPipelineRanksAndFilters(t *testing.T) {
	p, _ := newPipeline(t, &staticEmbedder{vec: []float32{1, 0, 0}}, seededIndex(t), DefaultConfig())

	res, err := p.Search(context.Background(), Request{Query: "vector databases", Filter: Filter{UserID: "u1"}})
	require.NoError(t, err)

	ids := make([]string, len(res.Candidates))
	for i, c := range res.Candidates {
		ids[i] = c.ChunkID
	}
	assert.Equal(t, []string{"a", "b"}, ids, "other owners and low scores are excluded")
	assert.Equal(t, "vectors.md", res.Candidates[0].Filename)
	assert.Greater(t, res.Candidates[0].CombinedScore, res.Candidates[1].CombinedScore)
}

func TestPipelineReportsPassagesDroppedByCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPassages = 1
	index := &countingIndex{VectorIndex: seededIndex(t)}
	p, _ := newPipeline(t, &staticEmbedder{vec: []float32{1, 0, 0}}, index, cfg)
	req := Request{Query: "vector databases", Filter: Filter{UserID: "u1"}}

	for i := 0; i < 2; i++ {
		res, err := p.Search(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, res.Candidates, 1)
		assert.Equal(t, "a", res.Candidates[0].ChunkID)
		assert.Equal(t, 2, res.Found, "count before the cap survives a cache hit")
		assert.True(t, res.Capped())
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&index.searches))
}

func TestPipelineCollectionScope(t *testing.T) {
	p, _ := newPipeline(t, &staticEmbedder{vec: []float32{0, 1, 0}}, seededIndex(t), Config{Threshold: 0})

	res, err := p.Search(context.Background(), Request{Query: "pasta", Filter: Filter{UserID: "u1", CollectionID: "c1"}})
	require.NoError(t, err)
	for _, c := range res.Candidates {
		assert.NotEqual(t, "c", c.ChunkID)
	}
}

func TestPipelineCachesAndInvalidates(t *testing.T) {
	embedder := &staticEmbedder{vec: []float32{1, 0, 0}}
	index := &countingIndex{VectorIndex: seededIndex(t)}
	p, results := newPipeline(t, embedder, index, DefaultConfig())
	ctx := context.Background()
	req := Request{Query: "Vector  Databases", Filter: Filter{UserID: "u1"}}

	_, err := p.Search(ctx, req)
	require.NoError(t, err)
	_, err = p.Search(ctx, Request{Query: "vector databases", Filter: Filter{UserID: "u1"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&index.searches), "normalized query hits the cache")

	assert.Equal(t, 0, results.InvalidateOwner(ctx, "u2"))
	assert.Equal(t, 1, results.InvalidateOwner(ctx, "u1"))

	_, err = p.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&index.searches))
}

func TestPipelineTimeout(t *testing.T) {
	embedder := &staticEmbedder{vec: []float32{1, 0, 0}, delay: time.Second}
	p, _ := newPipeline(t, embedder, seededIndex(t), Config{Timeout: 20 * time.Millisecond})

	_, err := p.Search(context.Background(), Request{Query: "vector", Filter: Filter{UserID: "u1"}})
	assert.ErrorIs(t, err, apperror.ErrUpstreamTimeout)
}

func TestPipelineValidation(t *testing.T) {
	p, _ := newPipeline(t, &staticEmbedder{vec: []float32{1, 0, 0}}, seededIndex(t), DefaultConfig())

	_, err := p.Search(context.Background(), Request{Query: "   ", Filter: Filter{UserID: "u1"}})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = p.Search(context.Background(), Request{Query: "q"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestKey(t *testing.T) {
	f := Filter{UserID: "u1", DocumentIDs: []string{"d2", "d1"}}

	assert.Equal(t, Key("What is RAG", 10, 0.3, f), Key("  what is   rag ", 10, 0.3, Filter{UserID: "u1", DocumentIDs: []string{"d1", "d2"}}))
	assert.NotEqual(t, Key("q", 10, 0.3, f), Key("q", 5, 0.3, f))
	assert.NotEqual(t, Key("q", 10, 0.3, f), Key("q", 10, 0.4, f))
	assert.NotEqual(t, Key("q", 10, 0.3, f), Key("q", 10, 0.3, Filter{UserID: "u2", DocumentIDs: f.DocumentIDs}))
}

func TestResultCacheCollectionInvalidation(t *testing.T) {
	rc := NewResultCache(cache.NewMemoryStore(time.Minute), logger.NewNopLogger(), cache.Options{})
	ctx := context.Background()
	compute := func(context.Context) ([]rank.CandidatePassage, error) {
		return []rank.CandidatePassage{{ChunkID: "x"}}, nil
	}

	scoped := Filter{UserID: "u1", CollectionID: "c1"}
	unscoped := Filter{UserID: "u1"}
	_, err := rc.GetOrCompute(ctx, Key("q", 10, 0, scoped), scoped, compute)
	require.NoError(t, err)
	_, err = rc.GetOrCompute(ctx, Key("q", 10, 0, unscoped), unscoped, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, rc.InvalidateCollection(ctx, "c1"))
	assert.Equal(t, 1, rc.InvalidateOwner(ctx, "u1"))
}

func TestChromemIndexUpsertReplacesDocument(t *testing.T) {
	idx := seededIndex(t)
	ctx := context.Background()
	require.Equal(t, 4, idx.Count())

	err := idx.Upsert(ctx, []Chunk{
		{DocumentID: "doc-1", UserID: "u1", Content: "rewritten", ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Count())

	res, err := idx.Search(ctx, Query{Embedding: []float32{1, 0, 0}, TopK: 10, Filter: Filter{UserID: "u1", DocumentIDs: []string{"doc-1"}}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "rewritten", res[0].Content)
	assert.Equal(t, "doc-1#0", res[0].ChunkID)

	require.NoError(t, idx.DeleteDocument(ctx, "u2", "doc-1"))
	assert.Equal(t, 4, idx.Count(), "only the owner can delete")

	require.NoError(t, idx.DeleteDocument(ctx, "u1", "doc-1"))
	assert.Equal(t, 3, idx.Count())
}
