package entity

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}

type ConversationMessage struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	Role           string
	Content        string
	TokenCount     int
	Metadata       MessageMetadata
	CreatedAt      time.Time
}

type MessageSource struct {
	DocumentId string  `json:"documentId"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

// MessageMetadata is stored as a JSON column.
type MessageMetadata struct {
	ContextSources []MessageSource        `json:"context_sources,omitempty"`
	TokenUsage     int                    `json:"token_usage,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}
