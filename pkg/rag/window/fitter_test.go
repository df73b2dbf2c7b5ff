package window

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/apperror"
	"docqa-be/pkg/rag/rank"
	"docqa-be/pkg/tokens"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// words returns text costing exactly n tokens.
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "abc"
	}
	return strings.Join(parts, " ")
}

func passage(id string, score float64, content string) rank.CandidatePassage {
	return rank.CandidatePassage{ChunkID: id, DocumentID: "doc-" + id, Filename: id + ".md", Content: content, CombinedScore: score}
}

func newFitter() *Fitter {
	return NewFitter(logger.NewNopLogger(), Options{})
}

func TestFitBoundaryTruncation(t *testing.T) {
	ranked := []rank.CandidatePassage{
		passage("c1", 0.9, words(200)),
		passage("c2", 0.8, words(250)),
		passage("c3", 0.7, words(200)),
	}

	win, err := newFitter().Fit(ranked, 500, 100)
	require.NoError(t, err)

	require.Len(t, win.Passages, 2)
	assert.Equal(t, "c1", win.Passages[0].ChunkID)
	assert.Equal(t, ranked[0].Content, win.Passages[0].Content)
	assert.Equal(t, "c2", win.Passages[1].ChunkID)
	assert.Equal(t, "c2", win.TruncatedChunkID)
	assert.True(t, win.Truncated)
	assert.Equal(t, 400, win.TotalTokens)

	cut := win.Passages[1].Content
	require.True(t, strings.HasSuffix(cut, tokens.EllipsisMarker))
	body := strings.TrimSuffix(cut, tokens.EllipsisMarker)
	assert.True(t, strings.HasPrefix(ranked[1].Content, body+" "), "prefix must end on a word boundary")
}

func TestFitEverythingFits(t *testing.T) {
	ranked := []rank.CandidatePassage{
		passage("a", 0.9, words(10)),
		passage("b", 0.5, words(10)),
	}

	win, err := newFitter().Fit(ranked, 100, 20)
	require.NoError(t, err)
	assert.Len(t, win.Passages, 2)
	assert.False(t, win.Truncated)
	assert.Equal(t, 20, win.TotalTokens)
	assert.Empty(t, win.TruncatedChunkID)
}

func TestFitRemainingBelowUsefulThreshold(t *testing.T) {
	ranked := []rank.CandidatePassage{
		passage("a", 0.9, words(360)),
		passage("b", 0.8, words(100)),
		passage("c", 0.1, words(5)),
	}

	win, err := newFitter().Fit(ranked, 500, 100)
	require.NoError(t, err)
	require.Len(t, win.Passages, 1, "c would fit but must not jump ahead of b")
	assert.True(t, win.Truncated)
	assert.Equal(t, 360, win.TotalTokens)
}

func TestFitNoAvailableBudget(t *testing.T) {
	win, err := newFitter().Fit([]rank.CandidatePassage{passage("a", 1, "x")}, 100, 100)
	require.NoError(t, err)
	assert.Empty(t, win.Passages)
	assert.True(t, win.Truncated)
	assert.Equal(t, 0, win.TotalTokens)
}

func TestFitValidation(t *testing.T) {
	_, err := newFitter().Fit(nil, 0, 0)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = newFitter().Fit(nil, 100, -1)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestFitUnbreakableBoundaryPassage(t *testing.T) {
	ranked := []rank.CandidatePassage{
		passage("a", 0.9, words(10)),
		passage("b", 0.8, strings.Repeat("x", 2000)),
	}

	win, err := newFitter().Fit(ranked, 200, 0)
	require.NoError(t, err)
	assert.Len(t, win.Passages, 1, "a single word longer than the budget is never split")
	assert.True(t, win.Truncated)
}

func TestFitProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	f := newFitter()

	for iter := 0; iter < 300; iter++ {
		n := rng.Intn(8)
		ranked := make([]rank.CandidatePassage, n)
		for i := range ranked {
			ranked[i] = passage(fmt.Sprintf("c%02d", i), 1-float64(i)/10, words(1+rng.Intn(300)))
		}
		budget := 1 + rng.Intn(1200)
		reserve := rng.Intn(400)

		win, err := f.Fit(ranked, budget, reserve)
		require.NoError(t, err)

		available := budget - reserve
		if available < 0 {
			available = 0
		}
		assert.LessOrEqual(t, win.TotalTokens, available)

		truncatedCount := 0
		for i, p := range win.Passages {
			// Output is a prefix of the ranked input.
			assert.Equal(t, ranked[i].ChunkID, p.ChunkID)
			if p.Content != ranked[i].Content {
				truncatedCount++
				assert.Equal(t, len(win.Passages)-1, i, "only the last passage may be cut")
				body := strings.TrimSuffix(p.Content, tokens.EllipsisMarker)
				assert.True(t, strings.HasPrefix(ranked[i].Content, body+" "))
			}
		}
		assert.LessOrEqual(t, truncatedCount, 1)
		if len(win.Passages) < n {
			assert.True(t, win.Truncated)
		}
	}
}

func TestRender(t *testing.T) {
	assert.Equal(t, "", Render(&ContextWindow{}))

	out := Render(&ContextWindow{Passages: []rank.CandidatePassage{
		passage("a", 0.9, "first body"),
		{ChunkID: "b", DocumentID: "doc-b", Content: "second body"},
	}})
	assert.Contains(t, out, "[1] a.md\nfirst body")
	assert.Contains(t, out, "[2] doc-b\nsecond body")
	assert.True(t, strings.HasPrefix(out, "<reference_material>"))
}
