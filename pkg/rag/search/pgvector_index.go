package search

import (
	"context"
	"fmt"

	"docqa-be/internal/entity"
	"docqa-be/internal/repository/contract"
	"docqa-be/internal/repository/unitofwork"
	"docqa-be/pkg/apperror"
	"docqa-be/pkg/rag/rank"

	"github.com/google/uuid"
)

// PgVectorIndex searches the document_chunks table with pgvector cosine distance.
type PgVectorIndex struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewPgVectorIndex(uowFactory unitofwork.RepositoryFactory) *PgVectorIndex {
	return &PgVectorIndex{uowFactory: uowFactory}
}

func (i *PgVectorIndex) Search(ctx context.Context, q Query) ([]rank.RawResult, error) {
	filter, err := toChunkFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	uow := i.uowFactory.NewUnitOfWork(ctx)
	scored, err := uow.DocumentChunkRepository().SearchSimilarWithScore(ctx, q.Embedding, q.TopK, filter, q.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	out := make([]rank.RawResult, 0, len(scored))
	for _, s := range scored {
		out = append(out, rank.RawResult{
			ChunkID:    s.Chunk.Id.String(),
			DocumentID: s.Chunk.DocumentId.String(),
			Filename:   s.Chunk.Filename,
			Content:    s.Chunk.Content,
			Score:      s.Similarity,
		})
	}
	return out, nil
}

func (i *PgVectorIndex) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	entities := make([]*entity.DocumentChunk, 0, len(chunks))
	type owned struct{ user, doc uuid.UUID }
	documents := make(map[owned]struct{})
	for _, c := range chunks {
		e, err := toChunkEntity(c)
		if err != nil {
			return err
		}
		entities = append(entities, e)
		documents[owned{user: e.UserId, doc: e.DocumentId}] = struct{}{}
	}

	uow := i.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	repo := uow.DocumentChunkRepository()
	for d := range documents {
		if err := repo.DeleteByDocumentId(ctx, d.user, d.doc); err != nil {
			return err
		}
	}
	if err := repo.CreateBulk(ctx, entities); err != nil {
		return err
	}
	return uow.Commit()
}

func (i *PgVectorIndex) DeleteDocument(ctx context.Context, userID, documentID string) error {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("%w: user id %q", apperror.ErrValidation, userID)
	}
	id, err := uuid.Parse(documentID)
	if err != nil {
		return fmt.Errorf("%w: document id %q", apperror.ErrValidation, documentID)
	}
	return i.uowFactory.NewUnitOfWork(ctx).DocumentChunkRepository().DeleteByDocumentId(ctx, userUUID, id)
}

func toChunkFilter(f Filter) (contract.ChunkFilter, error) {
	var out contract.ChunkFilter

	userID, err := uuid.Parse(f.UserID)
	if err != nil {
		return out, fmt.Errorf("%w: user id %q", apperror.ErrValidation, f.UserID)
	}
	out.UserId = userID

	if f.CollectionID != "" {
		cid, err := uuid.Parse(f.CollectionID)
		if err != nil {
			return out, fmt.Errorf("%w: collection id %q", apperror.ErrValidation, f.CollectionID)
		}
		out.CollectionId = &cid
	}
	for _, d := range f.DocumentIDs {
		did, err := uuid.Parse(d)
		if err != nil {
			return out, fmt.Errorf("%w: document id %q", apperror.ErrValidation, d)
		}
		out.DocumentIds = append(out.DocumentIds, did)
	}
	return out, nil
}

func toChunkEntity(c Chunk) (*entity.DocumentChunk, error) {
	e := &entity.DocumentChunk{
		Filename:   c.Filename,
		Content:    c.Content,
		ChunkIndex: c.ChunkIndex,
		Embedding:  c.Embedding,
	}

	var err error
	if c.ID != "" {
		if e.Id, err = uuid.Parse(c.ID); err != nil {
			return nil, fmt.Errorf("%w: chunk id %q", apperror.ErrValidation, c.ID)
		}
	} else {
		e.Id = uuid.New()
	}
	if e.DocumentId, err = uuid.Parse(c.DocumentID); err != nil {
		return nil, fmt.Errorf("%w: document id %q", apperror.ErrValidation, c.DocumentID)
	}
	if e.UserId, err = uuid.Parse(c.UserID); err != nil {
		return nil, fmt.Errorf("%w: user id %q", apperror.ErrValidation, c.UserID)
	}
	if c.CollectionID != "" {
		cid, err := uuid.Parse(c.CollectionID)
		if err != nil {
			return nil, fmt.Errorf("%w: collection id %q", apperror.ErrValidation, c.CollectionID)
		}
		e.CollectionId = &cid
	}
	return e, nil
}
