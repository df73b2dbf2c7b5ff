package rank

import (
	"strings"
	"testing"

	"docqa-be/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultRanker(t *testing.T) *Ranker {
	t.Helper()
	r, err := NewRanker(Config{})
	require.NoError(t, err)
	return r
}

func TestRankEmptyInput(t *testing.T) {
	r := newDefaultRanker(t)

	out := r.Rank(nil, "anything")
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestRankEmptyQuery(t *testing.T) {
	r := newDefaultRanker(t)

	out := r.Rank([]RawResult{{ChunkID: "c1", Content: "anything", Score: 0.5}}, "")
	require.Len(t, out, 1)

	p := out[0]
	assert.Equal(t, 0.0, p.LexicalScore)
	assert.InDelta(t, 0.04, p.LengthScore, 1e-9)
	assert.InDelta(t, 0.7*0.5+0.1*p.LengthScore, p.CombinedScore, 1e-9)
}

func TestLexicalScore(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		content string
		want    float64
	}{
		{"all terms", "Go, go! Redis?", "Golang uses redis", 1},
		{"half", "go redis", "Redis only", 0.5},
		{"none", "go redis", "nothing here", 0},
		{"punctuation only query", "?? !!", "anything", 0},
		{"case insensitive", "PGVECTOR", "we store vectors in pgvector", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, LexicalScore(QueryTerms(tt.query), tt.content), 1e-9)
		})
	}
}

func TestLengthScoreCurve(t *testing.T) {
	r := newDefaultRanker(t)

	tests := []struct {
		tokens int
		want   float64
	}{
		{0, 0},
		{25, 0.5},
		{50, 1},
		{400, 1},
		{1000, 0.6},
		{1600, 0.2},
		{5000, 0.2},
	}
	for _, tt := range tests {
		got := r.LengthScore(tt.tokens)
		assert.InDelta(t, tt.want, got, 1e-9, "tokens=%d", tt.tokens)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestRankOrderAndTieBreak(t *testing.T) {
	r := newDefaultRanker(t)
	body := strings.Repeat("word ", 60)

	raw := []RawResult{
		{ChunkID: "b", Content: body, Score: 0.8},
		{ChunkID: "c", Content: body, Score: 0.9},
		{ChunkID: "a", Content: body, Score: 0.8},
		{ChunkID: "d", Content: body, Score: 1.7},
	}
	out := r.Rank(raw, "word")

	ids := make([]string, len(out))
	for i, p := range out {
		ids[i] = p.ChunkID
	}
	assert.Equal(t, []string{"d", "c", "a", "b"}, ids)
	assert.Equal(t, 1.0, out[0].SemanticScore, "raw score is clamped")

	for i := 1; i < len(out); i++ {
		assert.False(t, Less(out[i], out[i-1]), "order violated at %d", i)
	}
}

func TestRankDeterministicAcrossInputOrder(t *testing.T) {
	r := newDefaultRanker(t)
	raw := []RawResult{
		{ChunkID: "x", Content: "alpha beta", Score: 0.4},
		{ChunkID: "y", Content: "alpha beta", Score: 0.4},
		{ChunkID: "z", Content: "gamma", Score: 0.6},
	}
	reversed := []RawResult{raw[2], raw[1], raw[0]}

	assert.Equal(t, r.Rank(raw, "alpha"), r.Rank(reversed, "alpha"))
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"semantic only", Weights{Semantic: 1}, false},
		{"sum above one", Weights{Semantic: 0.5, Lexical: 0.5, Length: 0.5}, true},
		{"negative", Weights{Semantic: 1.1, Lexical: -0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRanker(Config{Weights: tt.weights})
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAccept(t *testing.T) {
	in := []CandidatePassage{
		{ChunkID: "a", CombinedScore: 0.9},
		{ChunkID: "b", CombinedScore: 0.6},
		{ChunkID: "c", CombinedScore: 0.5},
		{ChunkID: "d", CombinedScore: 0.2},
	}

	assert.Len(t, Accept(in, 0.5, 0), 3)
	assert.Len(t, Accept(in, 0, 2), 2)
	assert.Equal(t, "a", Accept(in, 0.5, 1)[0].ChunkID)
	assert.Empty(t, Accept(in, 0.95, 0))
}
