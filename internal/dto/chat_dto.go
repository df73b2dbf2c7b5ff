package dto

import "time"

type SendChatRequest struct {
	// ConversationId is empty for the first message of a conversation.
	ConversationId string   `json:"conversation_id" validate:"omitempty,uuid"`
	Question       string   `json:"question" validate:"required,max=8000"`
	CollectionId   string   `json:"collection_id" validate:"omitempty,uuid"`
	DocumentIds    []string `json:"document_ids" validate:"max=20,dive,uuid"`
}

type SourceDTO struct {
	DocumentId string  `json:"documentId"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

type ChatTurnResponse struct {
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"created_at"`
	Sources    []SourceDTO `json:"sources,omitempty"`
	TokenUsage int         `json:"token_usage,omitempty"`
}

// ContextInfo describes the retrieved context behind a reply. The controller
// also exposes it as response headers.
type ContextInfo struct {
	Results      int         `json:"results"`
	Used         int         `json:"used"`
	SearchTimeMs int64       `json:"search_time_ms"`
	TokenUsage   int         `json:"token_usage"`
	Sources      []SourceDTO `json:"sources"`
	Truncated    bool        `json:"truncated"`
	Degraded     bool        `json:"degraded"`
}

type SendChatResponse struct {
	ConversationId string            `json:"conversation_id"`
	Reply          *ChatTurnResponse `json:"reply"`
	Context        ContextInfo       `json:"context"`
}
