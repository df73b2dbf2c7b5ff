package mapper

import (
	"testing"
	"time"

	"docqa-be/internal/entity"
	"docqa-be/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestMessageToEntityMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata datatypes.JSON
		want     entity.MessageMetadata
		wantErr  bool
	}{
		{name: "empty column", metadata: nil},
		{
			name:     "sources and usage",
			metadata: datatypes.JSON(`{"context_sources":[{"documentId":"d1","filename":"a.md","score":0.8}],"token_usage":42}`),
			want: entity.MessageMetadata{
				ContextSources: []entity.MessageSource{{DocumentId: "d1", Filename: "a.md", Score: 0.8}},
				TokenUsage:     42,
			},
		},
		{name: "corrupt column", metadata: datatypes.JSON(`{"context_sources":`), wantErr: true},
		{name: "wrong shape", metadata: datatypes.JSON(`{"token_usage":"lots"}`), wantErr: true},
	}

	m := NewConversationMapper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &model.ConversationMessage{
				Id:             uuid.New(),
				ConversationId: uuid.New(),
				Role:           "assistant",
				Content:        "answer",
				Metadata:       tt.metadata,
				CreatedAt:      time.Now(),
			}

			got, err := m.MessageToEntity(msg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), msg.Id.String())
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Metadata)
			assert.Equal(t, "answer", got.Content)
		})
	}
}

func TestMessagesToEntitiesStopsOnCorruptRow(t *testing.T) {
	m := NewConversationMapper()
	rows := []*model.ConversationMessage{
		{Id: uuid.New(), Content: "ok"},
		{Id: uuid.New(), Content: "bad", Metadata: datatypes.JSON(`not json`)},
	}

	got, err := m.MessagesToEntities(rows)
	assert.Error(t, err)
	assert.Nil(t, got)

	got, err = m.MessagesToEntities(rows[:1])
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Content)
}
