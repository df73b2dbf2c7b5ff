package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/apperror"
	"docqa-be/pkg/llm"
	"docqa-be/pkg/rag/conversation"
	"docqa-be/pkg/rag/prompt"
	"docqa-be/pkg/rag/rank"
	"docqa-be/pkg/rag/search"
	"docqa-be/pkg/rag/window"
	"docqa-be/pkg/tokens"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("docqa-be/pkg/rag/assembler")

const (
	DefaultBudgetTokens    = 3000
	DefaultReserveTokens   = 500
	DefaultUpstreamTimeout = 8 * time.Second
)

// Archive is the durable conversation log. The state store is rebuilt from it
// when a conversation has expired.
type Archive interface {
	EnsureConversation(ctx context.Context, conversationID, userID, title string) (string, error)
	SaveTurn(ctx context.Context, conversationID string, turn conversation.Turn) error
	LoadTurns(ctx context.Context, conversationID, userID string, limit int) ([]conversation.Turn, error)
}

type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

type Config struct {
	BudgetTokens  int
	ReserveTokens int
	// History bounds the turns placed in the prompt.
	History         conversation.Limits
	UpstreamTimeout time.Duration
	Clock           func() time.Time
}

type Request struct {
	// ConversationID may be empty to start a new conversation.
	ConversationID string
	UserID         string
	Question       string
	CollectionID   string
	DocumentIDs    []string
	// BudgetTokens overrides the configured budget when non-zero.
	BudgetTokens int
}

// Assembly is everything the caller needs to run the completion and report
// on the context that went into it.
type Assembly struct {
	ConversationID  string
	Messages        []llm.Message
	History         []conversation.Turn
	Window          *window.ContextWindow
	CandidatesFound int
	SearchTime      time.Duration
	TokenUsage      int
	Sources         []conversation.Source
	// Degraded is set when document search failed and no context was used.
	Degraded bool
	// HistoryDegraded is set when no history source could be read.
	HistoryDegraded bool
}

type Assembler struct {
	store    conversation.Store
	archive  Archive
	searcher Searcher
	fitter   *window.Fitter
	cfg      Config
	logger   logger.ILogger
}

// NewAssembler wires the pipeline. archive may be nil, in which case history
// lives only as long as the state store keeps it.
func NewAssembler(
	store conversation.Store,
	archive Archive,
	searcher Searcher,
	fitter *window.Fitter,
	cfg Config,
	log logger.ILogger,
) *Assembler {
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Assembler{
		store:    store,
		archive:  archive,
		searcher: searcher,
		fitter:   fitter,
		cfg:      cfg,
		logger:   log,
	}
}

// Assemble reads history, retrieves and fits context, builds the prompt and
// records the user turn. Search failures degrade to an answer without
// context; ownership and validation failures are returned.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Assembly, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", apperror.ErrValidation)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", apperror.ErrValidation)
	}
	budget := a.cfg.BudgetTokens
	if req.BudgetTokens != 0 {
		budget = req.BudgetTokens
	}
	if budget <= 0 {
		return nil, fmt.Errorf("%w: token budget must be positive, got %d", apperror.ErrValidation, budget)
	}
	if a.cfg.ReserveTokens < 0 {
		return nil, fmt.Errorf("%w: reserve tokens must not be negative", apperror.ErrValidation)
	}

	ctx, span := tracer.Start(ctx, "assembler.Assemble")
	defer span.End()

	conversationID, err := a.ensureConversation(ctx, req.ConversationID, req.UserID, question)
	if err != nil {
		return nil, fail(span, err)
	}
	out := &Assembly{ConversationID: conversationID}

	if req.ConversationID != "" {
		out.History, out.HistoryDegraded, err = a.loadHistory(ctx, conversationID, req.UserID)
		if err != nil {
			return nil, fail(span, err)
		}
	}

	var (
		candidates []rank.CandidatePassage
		capped     bool
	)
	start := time.Now()
	res, err := a.searcher.Search(ctx, search.Request{
		Query: question,
		Filter: search.Filter{
			UserID:       req.UserID,
			CollectionID: req.CollectionID,
			DocumentIDs:  req.DocumentIDs,
		},
	})
	out.SearchTime = time.Since(start)
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return nil, fail(span, err)
	case err != nil:
		out.Degraded = true
		a.logger.Warn("Assembler", "search unavailable, answering without context", map[string]interface{}{
			"conversation_id": conversationID,
			"error":           err.Error(),
		})
	default:
		candidates = res.Candidates
		out.CandidatesFound = res.Found
		capped = res.Capped()
	}
	if out.CandidatesFound < len(candidates) {
		out.CandidatesFound = len(candidates)
	}

	out.Window, err = a.fitter.Fit(candidates, budget, a.cfg.ReserveTokens)
	if err != nil {
		return nil, fail(span, err)
	}
	// Accepted passages dropped by the passage cap were not included either.
	if capped {
		out.Window.Truncated = true
	}
	out.Sources = sourcesOf(out.Window)

	builder := prompt.NewContextualBuilder(window.Render(out.Window), out.History, question, out.Degraded)
	out.Messages = builder.Messages()
	out.TokenUsage = tokenUsage(out.Messages)

	userTurn := conversation.Turn{
		Role:      conversation.RoleUser,
		Content:   question,
		CreatedAt: a.cfg.Clock(),
		Metadata: conversation.Metadata{
			ContextSources: out.Sources,
			TokenUsage:     out.TokenUsage,
		},
	}
	if err := a.record(ctx, conversationID, req.UserID, userTurn); err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Int("context.results", out.CandidatesFound),
		attribute.Int("context.used", len(out.Window.Passages)),
		attribute.Int("context.tokens", out.Window.TotalTokens),
		attribute.Bool("context.truncated", out.Window.Truncated),
		attribute.Bool("context.degraded", out.Degraded),
		attribute.Int("history.turns", len(out.History)),
	)
	a.logger.Info("Assembler", "context assembled", map[string]interface{}{
		"conversation_id": conversationID,
		"results":         out.CandidatesFound,
		"used":            len(out.Window.Passages),
		"context_tokens":  out.Window.TotalTokens,
		"token_usage":     out.TokenUsage,
		"history_turns":   len(out.History),
		"search_ms":       out.SearchTime.Milliseconds(),
		"degraded":        out.Degraded,
	})
	return out, nil
}

// RecordTurn stores a turn produced after Assemble, normally the assistant's
// reply.
func (a *Assembler) RecordTurn(ctx context.Context, conversationID, userID string, turn conversation.Turn) error {
	if conversationID == "" || userID == "" {
		return fmt.Errorf("%w: conversation id and user id are required", apperror.ErrValidation)
	}
	if err := turn.Validate(); err != nil {
		return err
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = a.cfg.Clock()
	}

	ctx, span := tracer.Start(ctx, "assembler.RecordTurn")
	defer span.End()

	if a.archive != nil {
		if _, err := a.archive.EnsureConversation(ctx, conversationID, userID, ""); err != nil {
			return fail(span, err)
		}
	}
	if err := a.record(ctx, conversationID, userID, turn); err != nil {
		return fail(span, err)
	}
	return nil
}

// History returns the prompt-bounded history of a conversation, falling back
// to the archive when the state store has none.
func (a *Assembler) History(ctx context.Context, conversationID, userID string) ([]conversation.Turn, error) {
	if conversationID == "" || userID == "" {
		return nil, fmt.Errorf("%w: conversation id and user id are required", apperror.ErrValidation)
	}
	turns, degraded, err := a.loadHistory(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if degraded {
		return nil, fmt.Errorf("%w: conversation history", apperror.ErrCacheUnavailable)
	}
	return turns, nil
}

func (a *Assembler) ensureConversation(ctx context.Context, conversationID, userID, question string) (string, error) {
	if a.archive == nil {
		if conversationID == "" {
			return uuid.NewString(), nil
		}
		return conversationID, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.UpstreamTimeout)
	defer cancel()
	return a.archive.EnsureConversation(ctx, conversationID, userID, question)
}

// loadHistory reports degraded instead of failing when neither source can
// be read. Only ownership and validation errors are returned.
func (a *Assembler) loadHistory(ctx context.Context, conversationID, userID string) ([]conversation.Turn, bool, error) {
	ctx, span := tracer.Start(ctx, "assembler.loadHistory")
	defer span.End()

	state, storeErr := a.store.Read(ctx, conversationID, userID, a.cfg.History)
	switch {
	case isFatal(storeErr):
		return nil, false, storeErr
	case storeErr != nil:
		a.logger.Warn("Assembler", "conversation store read failed", map[string]interface{}{
			"conversation_id": conversationID,
			"error":           storeErr.Error(),
		})
	case state != nil:
		return state.Turns, false, nil
	}

	if a.archive == nil {
		return nil, storeErr != nil, nil
	}

	actx, cancel := context.WithTimeout(ctx, a.cfg.UpstreamTimeout)
	defer cancel()
	turns, err := a.archive.LoadTurns(actx, conversationID, userID, a.cfg.History.MaxTurns)
	if isFatal(err) {
		return nil, false, err
	}
	if err != nil {
		a.logger.Warn("Assembler", "archive read failed, answering without history", map[string]interface{}{
			"conversation_id": conversationID,
			"error":           err.Error(),
		})
		return nil, true, nil
	}

	turns = conversation.Trim(turns, a.cfg.History)
	if storeErr == nil {
		a.seed(ctx, conversationID, userID, turns)
	}
	span.SetAttributes(attribute.Int("history.archive_turns", len(turns)))
	return turns, false, nil
}

// seed copies archived turns back into an expired state store entry.
func (a *Assembler) seed(ctx context.Context, conversationID, userID string, turns []conversation.Turn) {
	for _, t := range turns {
		if _, err := a.store.Append(ctx, conversationID, userID, t); err != nil {
			a.logger.Warn("Assembler", "reseeding conversation store failed", map[string]interface{}{
				"conversation_id": conversationID,
				"error":           err.Error(),
			})
			return
		}
	}
}

// record writes the archive first. A state store failure other than
// ownership only costs the fast path.
func (a *Assembler) record(ctx context.Context, conversationID, userID string, turn conversation.Turn) error {
	if a.archive != nil {
		actx, cancel := context.WithTimeout(ctx, a.cfg.UpstreamTimeout)
		err := a.archive.SaveTurn(actx, conversationID, turn)
		cancel()
		if err != nil {
			return err
		}
	}

	if _, err := a.store.Append(ctx, conversationID, userID, turn); err != nil {
		if isFatal(err) {
			return err
		}
		a.logger.Warn("Assembler", "conversation store append failed", map[string]interface{}{
			"conversation_id": conversationID,
			"role":            string(turn.Role),
			"error":           err.Error(),
		})
	}
	return nil
}

func isFatal(err error) bool {
	return errors.Is(err, apperror.ErrForbidden) || errors.Is(err, apperror.ErrValidation)
}

func sourcesOf(win *window.ContextWindow) []conversation.Source {
	sources := make([]conversation.Source, 0, len(win.Passages))
	for _, p := range win.Passages {
		sources = append(sources, conversation.Source{
			DocumentID: p.DocumentID,
			Filename:   p.Filename,
			Score:      p.CombinedScore,
		})
	}
	return sources
}

func tokenUsage(msgs []llm.Message) int {
	total := 0
	for _, m := range msgs {
		total += tokens.Estimate(m.Content)
	}
	return total
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
