package service

import (
	"context"
	"fmt"
	"time"

	"docqa-be/internal/dto"
	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/embedding"
	"docqa-be/pkg/events"
	"docqa-be/pkg/rag/search"
	"docqa-be/pkg/utils"

	"github.com/google/uuid"
)

const (
	chunkTokens   = 375
	overlapTokens = 50
)

type IDocumentService interface {
	Index(ctx context.Context, userId string, request *dto.IndexDocumentRequest) (*dto.IndexDocumentResponse, error)
	Delete(ctx context.Context, userId, documentId string) error
	NotifyChanged(ctx context.Context, userId string, request *dto.DocumentChangedRequest) error
}

type documentService struct {
	index            search.VectorIndex
	embedder         embedding.EmbeddingProvider
	publisherService IPublisherService
	logger           logger.ILogger
}

func NewDocumentService(
	index search.VectorIndex,
	embedder embedding.EmbeddingProvider,
	publisherService IPublisherService,
	log logger.ILogger,
) IDocumentService {
	return &documentService{
		index:            index,
		embedder:         embedder,
		publisherService: publisherService,
		logger:           log,
	}
}

// Index chunks and embeds plain text, replacing any earlier version of the
// same document.
func (ds *documentService) Index(ctx context.Context, userId string, request *dto.IndexDocumentRequest) (*dto.IndexDocumentResponse, error) {
	action := events.DocumentUpdated
	documentId := request.DocumentId
	if documentId == "" {
		documentId = uuid.NewString()
		action = events.DocumentIndexed
	}

	pieces := utils.SplitText(request.Content, chunkTokens, overlapTokens)
	chunks := make([]search.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		res, err := ds.embedder.Generate(ctx, piece, embedding.TaskRetrievalDocument)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d of %s: %w", i, documentId, err)
		}
		chunks = append(chunks, search.Chunk{
			ID:           uuid.NewString(),
			DocumentID:   documentId,
			UserID:       userId,
			CollectionID: request.CollectionId,
			Filename:     request.Filename,
			Content:      piece,
			ChunkIndex:   i,
			Embedding:    res.Embedding.Values,
		})
	}

	if err := ds.index.Upsert(ctx, chunks); err != nil {
		return nil, err
	}

	ds.logger.Info("DocumentService", "document indexed", map[string]interface{}{
		"document_id": documentId,
		"user_id":     userId,
		"chunks":      len(chunks),
	})
	ds.publish(ctx, events.DocumentChanged{
		DocumentID:   documentId,
		UserID:       userId,
		CollectionID: request.CollectionId,
		Action:       action,
		OccurredAt:   time.Now(),
	})

	return &dto.IndexDocumentResponse{DocumentId: documentId, Chunks: len(chunks)}, nil
}

func (ds *documentService) Delete(ctx context.Context, userId, documentId string) error {
	if err := ds.index.DeleteDocument(ctx, userId, documentId); err != nil {
		return err
	}
	ds.publish(ctx, events.DocumentChanged{
		DocumentID: documentId,
		UserID:     userId,
		Action:     events.DocumentDeleted,
		OccurredAt: time.Now(),
	})
	return nil
}

func (ds *documentService) NotifyChanged(ctx context.Context, userId string, request *dto.DocumentChangedRequest) error {
	return ds.publisherService.PublishDocumentChanged(ctx, events.DocumentChanged{
		DocumentID:   request.DocumentId,
		UserID:       userId,
		CollectionID: request.CollectionId,
		Action:       events.DocumentAction(request.Action),
		OccurredAt:   time.Now(),
	})
}

// publish does not fail the write: cached searches expire on their own.
func (ds *documentService) publish(ctx context.Context, evt events.DocumentChanged) {
	if err := ds.publisherService.PublishDocumentChanged(ctx, evt); err != nil {
		ds.logger.Warn("DocumentService", "failed to publish document change", map[string]interface{}{
			"document_id": evt.DocumentID,
			"error":       err.Error(),
		})
	}
}
