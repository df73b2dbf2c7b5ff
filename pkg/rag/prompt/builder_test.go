package prompt

import (
	"testing"

	"docqa-be/pkg/llm"
	"docqa-be/pkg/rag/conversation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagesOrder(t *testing.T) {
	history := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "what is a vector index?"},
		{Role: conversation.RoleAssistant, Content: "a structure for nearest neighbour search"},
	}
	b := NewContextualBuilder("<reference_material>\n[1] a.md\nbody\n</reference_material>\n", history, "and pgvector?", false)

	msgs := b.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "[1] a.md")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "what is a vector index?"}, msgs[1])
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "and pgvector?"}, msgs[3])
}

func TestSystemPromptNotices(t *testing.T) {
	tests := []struct {
		name     string
		block    string
		degraded bool
		want     string
		absent   string
	}{
		{name: "no matches", want: "No passages", absent: "unavailable"},
		{name: "degraded", degraded: true, want: "unavailable", absent: "No passages"},
		{name: "degraded wins over block", block: "<reference_material>\n</reference_material>\n", degraded: true, want: "unavailable", absent: "<reference_material>"},
		{name: "block", block: "<reference_material>\nx\n</reference_material>\n", want: "<reference_material>", absent: "<notice>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewContextualBuilder(tt.block, nil, "q", tt.degraded).SystemPrompt()
			assert.Contains(t, got, tt.want)
			assert.NotContains(t, got, tt.absent)
		})
	}
}
