package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/apperror"
	"docqa-be/pkg/embedding"
	"docqa-be/pkg/rag/rank"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("docqa-be/pkg/rag/search")

// Config encapsulates search parameters
type Config struct {
	TopK int
	// MinSimilarity is the raw index floor; Threshold applies to the combined score.
	MinSimilarity float64
	Threshold     float64
	MaxPassages   int
	// Timeout bounds embedding plus vector search.
	Timeout time.Duration
}

// DefaultConfig returns default search configuration
func DefaultConfig() Config {
	return Config{
		TopK:          20,
		MinSimilarity: 0.0,
		Threshold:     0.35,
		MaxPassages:   10,
		Timeout:       8 * time.Second,
	}
}

type Request struct {
	Query  string
	Filter Filter
}

type Result struct {
	// Candidates are the accepted passages in rank order, at most MaxPassages.
	Candidates []rank.CandidatePassage
	// Found counts every passage at or above the threshold, before the cap.
	Found   int
	Elapsed time.Duration
}

// Capped reports whether the passage cap dropped accepted passages.
func (r *Result) Capped() bool {
	return r.Found > len(r.Candidates)
}

// Pipeline runs embedding, vector search and ranking behind the result cache.
type Pipeline struct {
	embedder embedding.EmbeddingProvider
	index    VectorIndex
	results  *ResultCache
	ranker   *rank.Ranker
	cfg      Config
	logger   logger.ILogger
}

func NewPipeline(
	embedder embedding.EmbeddingProvider,
	index VectorIndex,
	results *ResultCache,
	ranker *rank.Ranker,
	cfg Config,
	log logger.ILogger,
) *Pipeline {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Pipeline{
		embedder: embedder,
		index:    index,
		results:  results,
		ranker:   ranker,
		cfg:      cfg,
		logger:   log,
	}
}

// Search returns accepted candidates in rank order. Timeouts surface as
// apperror.ErrUpstreamTimeout; the caller decides how to degrade.
func (p *Pipeline) Search(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is empty", apperror.ErrValidation)
	}
	if req.Filter.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", apperror.ErrValidation)
	}

	ctx, span := tracer.Start(ctx, "search.Pipeline.Search")
	defer span.End()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	key := Key(req.Query, p.cfg.TopK, p.cfg.Threshold, req.Filter)
	candidates, err := p.results.GetOrCompute(ctx, key, req.Filter, func(ctx context.Context) ([]rank.CandidatePassage, error) {
		return p.retrieve(ctx, req)
	})
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperror.ErrUpstreamTimeout) {
			err = fmt.Errorf("%w: %v", apperror.ErrUpstreamTimeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("SearchPipeline", "search failed", map[string]interface{}{
			"user_id":    req.Filter.UserID,
			"elapsed_ms": elapsed.Milliseconds(),
			"error":      err.Error(),
		})
		return nil, err
	}

	// The cache holds the uncapped list so the count survives a hit.
	res := &Result{
		Candidates: rank.Accept(candidates, p.cfg.Threshold, p.cfg.MaxPassages),
		Found:      len(candidates),
		Elapsed:    elapsed,
	}
	span.SetAttributes(
		attribute.Int("search.found", res.Found),
		attribute.Int("search.candidates", len(res.Candidates)),
		attribute.Int64("search.elapsed_ms", elapsed.Milliseconds()),
	)
	return res, nil
}

func (p *Pipeline) retrieve(ctx context.Context, req Request) ([]rank.CandidatePassage, error) {
	embeddingRes, err := p.embedder.Generate(ctx, req.Query, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	raw, err := p.index.Search(ctx, Query{
		Embedding:     embeddingRes.Embedding.Values,
		TopK:          p.cfg.TopK,
		MinSimilarity: p.cfg.MinSimilarity,
		Filter:        req.Filter,
	})
	if err != nil {
		return nil, err
	}

	ranked := p.ranker.Rank(raw, req.Query)
	accepted := rank.Accept(ranked, p.cfg.Threshold, 0)

	p.logger.Debug("SearchPipeline", "candidates ranked", map[string]interface{}{
		"raw":      len(raw),
		"accepted": len(accepted),
	})
	return accepted, nil
}
