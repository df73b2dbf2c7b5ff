package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docqa-be/internal/dto"
	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/apperror"
	"docqa-be/pkg/llm"
	"docqa-be/pkg/rag/assembler"
	"docqa-be/pkg/rag/conversation"
	"docqa-be/pkg/tokens"
)

type IChatService interface {
	SendChat(ctx context.Context, userId string, request *dto.SendChatRequest) (*dto.SendChatResponse, error)
	GetHistory(ctx context.Context, userId, conversationId string) ([]*dto.ChatTurnResponse, error)
}

type chatService struct {
	assembler         *assembler.Assembler
	llmProvider       llm.LLMProvider
	completionTimeout time.Duration
	logger            logger.ILogger
}

func NewChatService(
	asm *assembler.Assembler,
	llmProvider llm.LLMProvider,
	completionTimeout time.Duration,
	log logger.ILogger,
) IChatService {
	return &chatService{
		assembler:         asm,
		llmProvider:       llmProvider,
		completionTimeout: completionTimeout,
		logger:            log,
	}
}

// SendChat assembles context, runs the completion and records the reply.
func (cs *chatService) SendChat(ctx context.Context, userId string, request *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	asm, err := cs.assembler.Assemble(ctx, assembler.Request{
		ConversationID: request.ConversationId,
		UserID:         userId,
		Question:       request.Question,
		CollectionID:   request.CollectionId,
		DocumentIDs:    request.DocumentIds,
	})
	if err != nil {
		return nil, err
	}

	reply, err := cs.complete(ctx, asm.Messages)
	if err != nil {
		cs.logger.Error("ChatService", "completion failed", map[string]interface{}{
			"conversation_id": asm.ConversationID,
			"error":           err.Error(),
		})
		return nil, err
	}

	turn := conversation.Turn{
		Role:      conversation.RoleAssistant,
		Content:   reply,
		CreatedAt: time.Now(),
		Metadata: conversation.Metadata{
			ContextSources: asm.Sources,
			TokenUsage:     asm.TokenUsage + tokens.Estimate(reply),
		},
	}
	if err := cs.assembler.RecordTurn(ctx, asm.ConversationID, userId, turn); err != nil {
		return nil, err
	}

	return &dto.SendChatResponse{
		ConversationId: asm.ConversationID,
		Reply:          toTurnResponse(turn),
		Context: dto.ContextInfo{
			Results:      asm.CandidatesFound,
			Used:         len(asm.Window.Passages),
			SearchTimeMs: asm.SearchTime.Milliseconds(),
			TokenUsage:   asm.TokenUsage,
			Sources:      toSourceDTOs(asm.Sources),
			Truncated:    asm.Window.Truncated,
			Degraded:     asm.Degraded,
		},
	}, nil
}

func (cs *chatService) complete(ctx context.Context, messages []llm.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, cs.completionTimeout)
	defer cancel()

	reply, err := cs.llmProvider.Chat(ctx, messages)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, apperror.ErrUpstreamTimeout) {
			return "", fmt.Errorf("%w: completion: %v", apperror.ErrUpstreamTimeout, err)
		}
		return "", err
	}
	return reply, nil
}

func (cs *chatService) GetHistory(ctx context.Context, userId, conversationId string) ([]*dto.ChatTurnResponse, error) {
	turns, err := cs.assembler.History(ctx, conversationId, userId)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ChatTurnResponse, 0, len(turns))
	for _, t := range turns {
		res = append(res, toTurnResponse(t))
	}
	return res, nil
}

func toTurnResponse(t conversation.Turn) *dto.ChatTurnResponse {
	return &dto.ChatTurnResponse{
		Role:       string(t.Role),
		Content:    t.Content,
		CreatedAt:  t.CreatedAt,
		Sources:    toSourceDTOs(t.Metadata.ContextSources),
		TokenUsage: t.Metadata.TokenUsage,
	}
}

func toSourceDTOs(sources []conversation.Source) []dto.SourceDTO {
	out := make([]dto.SourceDTO, 0, len(sources))
	for _, s := range sources {
		out = append(out, dto.SourceDTO{DocumentId: s.DocumentID, Filename: s.Filename, Score: s.Score})
	}
	return out
}
