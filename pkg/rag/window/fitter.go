package window

import (
	"fmt"
	"strings"

	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/apperror"
	"docqa-be/pkg/rag/rank"
	"docqa-be/pkg/tokens"
)

const DefaultMinUsefulTokens = 50

// ContextWindow is the fitted, prompt-ready selection of passages.
type ContextWindow struct {
	Passages    []rank.CandidatePassage `json:"passages"`
	TotalTokens int                     `json:"total_tokens"`
	Available   int                     `json:"available"`
	Truncated   bool                    `json:"truncated"`
	// TruncatedChunkID names the one passage included as a prefix, if any.
	TruncatedChunkID string `json:"truncated_chunk_id,omitempty"`
}

type Options struct {
	// MinUsefulTokens is the smallest remaining budget worth spending on a
	// truncated passage.
	MinUsefulTokens int
	Marker          string
}

type Fitter struct {
	minUseful int
	marker    string
	logger    logger.ILogger
}

func NewFitter(log logger.ILogger, opts Options) *Fitter {
	if opts.MinUsefulTokens <= 0 {
		opts.MinUsefulTokens = DefaultMinUsefulTokens
	}
	if opts.Marker == "" {
		opts.Marker = tokens.EllipsisMarker
	}
	return &Fitter{
		minUseful: opts.MinUsefulTokens,
		marker:    opts.Marker,
		logger:    log,
	}
}

// Fit packs ranked passages greedily into budget minus reserve. Only the first
// passage that does not fit whole may be included, as a word-aligned prefix,
// and nothing after it is considered.
func (f *Fitter) Fit(ranked []rank.CandidatePassage, budgetTokens, reserveTokens int) (*ContextWindow, error) {
	if budgetTokens <= 0 {
		return nil, fmt.Errorf("%w: token budget must be positive, got %d", apperror.ErrValidation, budgetTokens)
	}
	if reserveTokens < 0 {
		return nil, fmt.Errorf("%w: reserve tokens must not be negative, got %d", apperror.ErrValidation, reserveTokens)
	}

	available := budgetTokens - reserveTokens
	win := &ContextWindow{
		Passages:  make([]rank.CandidatePassage, 0, len(ranked)),
		Available: available,
	}
	if available <= 0 {
		win.Available = 0
		win.Truncated = true
		return win, nil
	}

	for _, p := range ranked {
		cost := tokens.Estimate(p.Content)
		if win.TotalTokens+cost <= available {
			win.Passages = append(win.Passages, p)
			win.TotalTokens += cost
			continue
		}

		win.Truncated = true
		remaining := available - win.TotalTokens
		if remaining > f.minUseful {
			if prefix, _ := tokens.TruncateToTokens(p.Content, remaining, f.marker); prefix != "" {
				p.Content = prefix
				win.Passages = append(win.Passages, p)
				win.TotalTokens += tokens.Estimate(prefix)
				win.TruncatedChunkID = p.ChunkID
			}
		}
		break
	}

	if win.TotalTokens > available {
		f.logger.Error("ContextFitter", "fitted window exceeds available budget", map[string]interface{}{
			"total_tokens": win.TotalTokens,
			"available":    available,
			"passages":     len(win.Passages),
		})
		return nil, fmt.Errorf("%w: window uses %d of %d available tokens", apperror.ErrInvariant, win.TotalTokens, available)
	}
	return win, nil
}

// Render formats the window as a numbered reference block. An empty window
// renders as "".
func Render(win *ContextWindow) string {
	if win == nil || len(win.Passages) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<reference_material>\n")
	for i, p := range win.Passages {
		name := p.Filename
		if name == "" {
			name = p.DocumentID
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, name)
		b.WriteString(p.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("</reference_material>\n")
	return b.String()
}
