package contract

import (
	"context"

	"docqa-be/internal/entity"

	"github.com/google/uuid"
)

// ScoredDocumentChunk wraps DocumentChunk with its similarity score
type ScoredDocumentChunk struct {
	Chunk      *entity.DocumentChunk
	Similarity float64 // 0.0 to 1.0 (1.0 = identical)
}

// ChunkFilter scopes a similarity search. UserId is mandatory.
type ChunkFilter struct {
	UserId       uuid.UUID
	CollectionId *uuid.UUID
	DocumentIds  []uuid.UUID
}

type DocumentChunkRepository interface {
	CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error
	// DeleteByDocumentId only removes chunks owned by userId.
	DeleteByDocumentId(ctx context.Context, userId, documentId uuid.UUID) error
	// SearchSimilarWithScore returns chunks with cosine similarity >= threshold, best first.
	SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, filter ChunkFilter, threshold float64) ([]*ScoredDocumentChunk, error)
}
