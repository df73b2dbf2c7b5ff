package history

import (
	"context"
	"fmt"

	"docqa-be/internal/entity"
	"docqa-be/internal/repository/specification"
	"docqa-be/internal/repository/unitofwork"
	"docqa-be/pkg/apperror"
	"docqa-be/pkg/rag/conversation"
	"docqa-be/pkg/tokens"

	"github.com/google/uuid"
)

const maxTitleRunes = 80

// Archive is the durable copy of every conversation. The state store is a
// bounded, expiring view over it.
type Archive struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewArchive(uowFactory unitofwork.RepositoryFactory) *Archive {
	return &Archive{uowFactory: uowFactory}
}

// EnsureConversation creates the conversation when conversationID is empty or
// unknown and rejects ids owned by someone else. It returns the id in use.
func (a *Archive) EnsureConversation(ctx context.Context, conversationID, userID, title string) (string, error) {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("%w: user id %q", apperror.ErrValidation, userID)
	}

	uow := a.uowFactory.NewUnitOfWork(ctx)
	id := uuid.New()
	if conversationID != "" {
		if id, err = uuid.Parse(conversationID); err != nil {
			return "", fmt.Errorf("%w: conversation id %q", apperror.ErrValidation, conversationID)
		}
		existing, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: id})
		if err != nil {
			return "", err
		}
		if existing != nil {
			if existing.UserId != userUUID {
				return "", fmt.Errorf("%w: conversation %s belongs to another user", apperror.ErrForbidden, conversationID)
			}
			return existing.Id.String(), nil
		}
	}

	conv := &entity.Conversation{
		Id:     id,
		UserId: userUUID,
		Title:  titleFrom(title),
	}
	if err := uow.ConversationRepository().Create(ctx, conv); err != nil {
		return "", err
	}
	return conv.Id.String(), nil
}

func (a *Archive) SaveTurn(ctx context.Context, conversationID string, turn conversation.Turn) error {
	convUUID, err := uuid.Parse(conversationID)
	if err != nil {
		return fmt.Errorf("%w: conversation id %q", apperror.ErrValidation, conversationID)
	}

	msg := &entity.ConversationMessage{
		ConversationId: convUUID,
		Role:           string(turn.Role),
		Content:        turn.Content,
		TokenCount:     turn.Tokens(),
		Metadata:       toEntityMetadata(turn.Metadata),
		CreatedAt:      turn.CreatedAt,
	}
	return a.uowFactory.NewUnitOfWork(ctx).ConversationMessageRepository().Create(ctx, msg)
}

// LoadTurns returns up to limit of the newest turns, oldest first. An unknown
// conversation yields nil.
func (a *Archive) LoadTurns(ctx context.Context, conversationID, userID string, limit int) ([]conversation.Turn, error) {
	convUUID, err := uuid.Parse(conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: conversation id %q", apperror.ErrValidation, conversationID)
	}
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user id %q", apperror.ErrValidation, userID)
	}

	uow := a.uowFactory.NewUnitOfWork(ctx)
	conv, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: convUUID})
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}
	if conv.UserId != userUUID {
		return nil, fmt.Errorf("%w: conversation %s belongs to another user", apperror.ErrForbidden, conversationID)
	}

	specs := []specification.Specification{
		specification.ByConversationID{ConversationID: convUUID},
		specification.OrderBy{Field: "created_at", Desc: true},
	}
	if limit > 0 {
		specs = append(specs, specification.Pagination{Limit: limit})
	}
	msgs, err := uow.ConversationMessageRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, err
	}

	turns := make([]conversation.Turn, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		turns = append(turns, toTurn(msgs[i]))
	}
	return turns, nil
}

func toTurn(m *entity.ConversationMessage) conversation.Turn {
	sources := make([]conversation.Source, len(m.Metadata.ContextSources))
	for i, s := range m.Metadata.ContextSources {
		sources[i] = conversation.Source{DocumentID: s.DocumentId, Filename: s.Filename, Score: s.Score}
	}
	if len(sources) == 0 {
		sources = nil
	}
	return conversation.Turn{
		Role:      conversation.Role(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Metadata: conversation.Metadata{
			ContextSources: sources,
			TokenUsage:     m.Metadata.TokenUsage,
			Extra:          m.Metadata.Extra,
		},
	}
}

func toEntityMetadata(md conversation.Metadata) entity.MessageMetadata {
	out := entity.MessageMetadata{
		TokenUsage: md.TokenUsage,
		Extra:      md.Extra,
	}
	for _, s := range md.ContextSources {
		out.ContextSources = append(out.ContextSources, entity.MessageSource{
			DocumentId: s.DocumentID,
			Filename:   s.Filename,
			Score:      s.Score,
		})
	}
	return out
}

// titleFrom derives a conversation title from the first question.
func titleFrom(question string) string {
	title, _ := tokens.TruncateToTokens(question, maxTitleRunes/tokens.CharsPerToken, tokens.EllipsisMarker)
	if title == "" {
		return "New conversation"
	}
	return title
}
