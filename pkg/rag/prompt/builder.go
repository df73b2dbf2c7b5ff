package prompt

import (
	"strings"

	"docqa-be/pkg/llm"
	"docqa-be/pkg/rag/conversation"
)

// ContextualBuilder turns a fitted reference block, prior turns and the new
// question into the message list sent to the model.
type ContextualBuilder struct {
	referenceBlock string
	history        []conversation.Turn
	question       string
	degraded       bool
}

// NewContextualBuilder creates a builder. degraded marks that document search
// failed, as opposed to finding nothing.
func NewContextualBuilder(referenceBlock string, history []conversation.Turn, question string, degraded bool) *ContextualBuilder {
	return &ContextualBuilder{
		referenceBlock: referenceBlock,
		history:        history,
		question:       question,
		degraded:       degraded,
	}
}

// SystemPrompt is the task, guidelines and reference material.
func (b *ContextualBuilder) SystemPrompt() string {
	var prompt strings.Builder

	b.writeTask(&prompt)
	b.writeGuidelines(&prompt)
	b.writeReferenceMaterial(&prompt)

	return prompt.String()
}

// Messages returns system, history (oldest first) and the user question.
func (b *ContextualBuilder) Messages() []llm.Message {
	msgs := make([]llm.Message, 0, len(b.history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: b.SystemPrompt()})
	for _, t := range b.history {
		role := llm.RoleUser
		if t.Role == conversation.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: b.question})
	return msgs
}

func (b *ContextualBuilder) writeTask(prompt *strings.Builder) {
	prompt.WriteString("<task>\n")
	prompt.WriteString("You are a knowledgeable assistant answering questions about the user's documents.\n")
	prompt.WriteString("Use the reference material and the conversation so far to answer the latest question.\n")
	prompt.WriteString("</task>\n\n")
}

func (b *ContextualBuilder) writeGuidelines(prompt *strings.Builder) {
	prompt.WriteString("<guidelines>\n")
	prompt.WriteString("1. Base your answer on the reference material when it is relevant\n")
	prompt.WriteString("2. Cite passages by their number, e.g. [1], when you use them\n")
	prompt.WriteString("3. Never invent sources or quote text that is not in the material\n")
	prompt.WriteString("4. If the material doesn't contain what's being asked, say so honestly\n")
	prompt.WriteString("</guidelines>\n\n")
}

func (b *ContextualBuilder) writeReferenceMaterial(prompt *strings.Builder) {
	switch {
	case b.degraded:
		prompt.WriteString("<notice>\n")
		prompt.WriteString("Document search is unavailable right now. Tell the user if the answer depends on their documents.\n")
		prompt.WriteString("</notice>\n")
	case b.referenceBlock == "":
		prompt.WriteString("<notice>\n")
		prompt.WriteString("No passages in the user's documents matched this question.\n")
		prompt.WriteString("</notice>\n")
	default:
		prompt.WriteString(b.referenceBlock)
	}
}
