package search

import (
	"context"
	"fmt"
	"strconv"

	"docqa-be/pkg/apperror"
	"docqa-be/pkg/embedding"
	"docqa-be/pkg/rag/rank"

	chromem "github.com/philippgille/chromem-go"
)

const chromemCollection = "document_chunks"

// ChromemIndex is an in-process index for single-node and local deployments.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemIndex opens a persistent index at path, or an in-memory one when
// path is empty. Documents upserted without a vector are embedded with
// provider.
func NewChromemIndex(path string, provider embedding.EmbeddingProvider) (*ChromemIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else if db, err = chromem.NewPersistentDB(path, true); err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}

	col, err := db.GetOrCreateCollection(chromemCollection, nil, toChromemFunc(provider))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemIndex{db: db, collection: col}, nil
}

func toChromemFunc(provider embedding.EmbeddingProvider) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if provider == nil {
			return nil, fmt.Errorf("%w: chunk has no embedding and no provider is configured", apperror.ErrValidation)
		}
		res, err := provider.Generate(ctx, text, embedding.TaskRetrievalDocument)
		if err != nil {
			return nil, err
		}
		return res.Embedding.Values, nil
	}
}

func (i *ChromemIndex) Search(ctx context.Context, q Query) ([]rank.RawResult, error) {
	if q.Filter.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", apperror.ErrValidation)
	}

	// chromem-go requires nResults <= collection size.
	count := i.collection.Count()
	if count == 0 {
		return []rank.RawResult{}, nil
	}
	limit := q.TopK
	if limit <= 0 {
		limit = 10
	}
	// Document filters are applied after the query, so over-fetch.
	if len(q.Filter.DocumentIDs) > 0 {
		limit = count
	}
	if limit > count {
		limit = count
	}

	where := map[string]string{"user_id": q.Filter.UserID}
	if q.Filter.CollectionID != "" {
		where["collection_id"] = q.Filter.CollectionID
	}

	results, err := i.collection.QueryEmbedding(ctx, q.Embedding, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	var allowed map[string]struct{}
	if len(q.Filter.DocumentIDs) > 0 {
		allowed = make(map[string]struct{}, len(q.Filter.DocumentIDs))
		for _, d := range q.Filter.DocumentIDs {
			allowed[d] = struct{}{}
		}
	}

	out := make([]rank.RawResult, 0, len(results))
	for _, r := range results {
		if float64(r.Similarity) < q.MinSimilarity {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[r.Metadata["document_id"]]; !ok {
				continue
			}
		}
		out = append(out, rank.RawResult{
			ChunkID:    r.ID,
			DocumentID: r.Metadata["document_id"],
			Filename:   r.Metadata["filename"],
			Content:    r.Content,
			Score:      float64(r.Similarity),
		})
		if q.TopK > 0 && len(out) == q.TopK {
			break
		}
	}
	return out, nil
}

func (i *ChromemIndex) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	type owned struct{ user, doc string }
	seen := make(map[owned]struct{})
	docs := make([]chromem.Document, len(chunks))
	for n, c := range chunks {
		if c.DocumentID == "" || c.UserID == "" {
			return fmt.Errorf("%w: chunk needs document and user ids", apperror.ErrValidation)
		}
		if _, ok := seen[owned{c.UserID, c.DocumentID}]; !ok {
			seen[owned{c.UserID, c.DocumentID}] = struct{}{}
			if err := i.DeleteDocument(ctx, c.UserID, c.DocumentID); err != nil {
				return err
			}
		}
		id := c.ID
		if id == "" {
			id = c.DocumentID + "#" + strconv.Itoa(c.ChunkIndex)
		}
		docs[n] = chromem.Document{
			ID:        id,
			Content:   c.Content,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				"document_id":   c.DocumentID,
				"user_id":       c.UserID,
				"collection_id": c.CollectionID,
				"filename":      c.Filename,
				"chunk_index":   strconv.Itoa(c.ChunkIndex),
			},
		}
	}
	return i.collection.AddDocuments(ctx, docs, 1)
}

func (i *ChromemIndex) DeleteDocument(ctx context.Context, userID, documentID string) error {
	if userID == "" || documentID == "" {
		return fmt.Errorf("%w: user and document ids are required", apperror.ErrValidation)
	}
	return i.collection.Delete(ctx, map[string]string{"document_id": documentID, "user_id": userID}, nil)
}

func (i *ChromemIndex) Count() int {
	return i.collection.Count()
}
