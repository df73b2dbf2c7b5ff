package mapper

import (
	"encoding/json"
	"fmt"
	"time"

	"docqa-be/internal/entity"
	"docqa-be/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

func (m *ConversationMapper) ConversationToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}

	var deletedAt *time.Time
	if c.DeletedAt.Valid {
		t := c.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		updatedAt = &t
	}

	return &entity.Conversation{
		Id:        c.Id,
		UserId:    c.UserId,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
		IsDeleted: c.DeletedAt.Valid,
	}
}

func (m *ConversationMapper) ConversationToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if c.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *c.DeletedAt, Valid: true}
	} else if c.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}

	return &model.Conversation{
		Id:        c.Id,
		UserId:    c.UserId,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
	}
}

func (m *ConversationMapper) MessageToEntity(msg *model.ConversationMessage) (*entity.ConversationMessage, error) {
	if msg == nil {
		return nil, nil
	}

	var meta entity.MessageMetadata
	if len(msg.Metadata) > 0 {
		if err := json.Unmarshal(msg.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("message %s metadata: %w", msg.Id, err)
		}
	}

	return &entity.ConversationMessage{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		Role:           msg.Role,
		Content:        msg.Content,
		TokenCount:     msg.TokenCount,
		Metadata:       meta,
		CreatedAt:      msg.CreatedAt,
	}, nil
}

func (m *ConversationMapper) MessageToModel(msg *entity.ConversationMessage) (*model.ConversationMessage, error) {
	if msg == nil {
		return nil, nil
	}

	raw, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, err
	}

	return &model.ConversationMessage{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		Role:           msg.Role,
		Content:        msg.Content,
		TokenCount:     msg.TokenCount,
		Metadata:       datatypes.JSON(raw),
		CreatedAt:      msg.CreatedAt,
	}, nil
}

func (m *ConversationMapper) MessagesToEntities(msgs []*model.ConversationMessage) ([]*entity.ConversationMessage, error) {
	entities := make([]*entity.ConversationMessage, len(msgs))
	for i, msg := range msgs {
		e, err := m.MessageToEntity(msg)
		if err != nil {
			return nil, err
		}
		entities[i] = e
	}
	return entities, nil
}
