package conversation

import (
	"context"
	"fmt"
	"time"

	"docqa-be/pkg/apperror"
	"docqa-be/pkg/tokens"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const DefaultTTL = 30 * time.Minute

// Source is a passage a reply was grounded on.
type Source struct {
	DocumentID string  `json:"documentId"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

// Metadata carries the fields the pipeline reads plus one open extension map.
type Metadata struct {
	ContextSources []Source               `json:"context_sources,omitempty"`
	TokenUsage     int                    `json:"token_usage,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Metadata  Metadata  `json:"metadata"`
}

func (t Turn) Tokens() int { return tokens.Estimate(t.Content) }

func (t Turn) Validate() error {
	if t.Role != RoleUser && t.Role != RoleAssistant {
		return fmt.Errorf("%w: unknown turn role %q", apperror.ErrValidation, t.Role)
	}
	return nil
}

// State is a snapshot; stores never hand out their internal copy.
type State struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Turns          []Turn    `json:"turns"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

func (s *State) TokenSum() int {
	return sumTokens(s.Turns)
}

func (s *State) clone() *State {
	out := *s
	out.Turns = append([]Turn(nil), s.Turns...)
	return &out
}

// Limits bounds a history. Zero means unbounded.
type Limits struct {
	MaxTurns  int
	MaxTokens int
}

// Store holds short-lived conversation history with sliding expiry.
type Store interface {
	// Append creates the conversation on first use, rejects non-owners with
	// apperror.ErrForbidden and applies the store's retention.
	Append(ctx context.Context, conversationID, userID string, turn Turn) (*State, error)
	// Read returns nil, nil for unknown or expired conversations. The
	// returned turns satisfy both limits.
	Read(ctx context.Context, conversationID, userID string, limits Limits) (*State, error)
	Delete(ctx context.Context, conversationID string) error
}

type Options struct {
	TTL time.Duration
	// Retention is enforced on every append, oldest turns first.
	Retention Limits
	Clock     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Trim returns the newest suffix of turns satisfying both limits.
func Trim(turns []Turn, limits Limits) []Turn {
	return append([]Turn(nil), turns[trimStart(turns, limits, false):]...)
}

// retain is Trim for stored history: the newest turn always survives so an
// oversized message is not lost before it is answered.
func retain(turns []Turn, limits Limits) []Turn {
	return turns[trimStart(turns, limits, true):]
}

func trimStart(turns []Turn, limits Limits, keepLast bool) int {
	start := 0
	if limits.MaxTurns > 0 && len(turns) > limits.MaxTurns {
		start = len(turns) - limits.MaxTurns
	}
	if limits.MaxTokens > 0 {
		total := sumTokens(turns[start:])
		for total > limits.MaxTokens && start < len(turns) {
			if keepLast && start == len(turns)-1 {
				break
			}
			total -= turns[start].Tokens()
			start++
		}
	}
	return start
}

func sumTokens(turns []Turn) int {
	total := 0
	for _, t := range turns {
		total += t.Tokens()
	}
	return total
}

func validateIDs(conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return fmt.Errorf("%w: conversation id and user id are required", apperror.ErrValidation)
	}
	return nil
}

func forbidden(conversationID string) error {
	return fmt.Errorf("%w: conversation %s belongs to another user", apperror.ErrForbidden, conversationID)
}
