package search

import (
	"context"

	"docqa-be/pkg/rag/rank"
)

// Filter scopes retrieval to what one caller may see.
type Filter struct {
	UserID       string
	CollectionID string
	DocumentIDs  []string
}

// Query is a nearest-neighbour lookup. MinSimilarity drops raw hits below the
// floor before ranking.
type Query struct {
	Embedding     []float32
	TopK          int
	MinSimilarity float64
	Filter        Filter
}

// Chunk is an embedded passage as written into an index.
type Chunk struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	UserID       string    `json:"user_id"`
	CollectionID string    `json:"collection_id,omitempty"`
	Filename     string    `json:"filename"`
	Content      string    `json:"content"`
	ChunkIndex   int       `json:"chunk_index"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

type VectorIndex interface {
	Search(ctx context.Context, q Query) ([]rank.RawResult, error)
	// Upsert replaces every chunk of the documents present in chunks. Chunks
	// of the same document owned by someone else are left alone.
	Upsert(ctx context.Context, chunks []Chunk) error
	DeleteDocument(ctx context.Context, userID, documentID string) error
}
