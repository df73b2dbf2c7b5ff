package tokens

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// words builds n three-letter words joined by single spaces, which costs
// exactly n tokens.
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "abc"
	}
	return strings.Join(parts, " ")
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo wörld", 3}, // counted in runes, not bytes
		{words(200), 200},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Estimate(tt.text), "Estimate(%q)", tt.text)
	}
}

func TestEstimateIsDeterministic(t *testing.T) {
	text := words(37) + " tail"
	assert.Equal(t, Estimate(text), Estimate(text))
	assert.Equal(t, Estimate("ab")+Estimate("cd"), EstimateAll("ab", "cd"))
}

func TestTruncateToTokens(t *testing.T) {
	t.Run("fits unchanged", func(t *testing.T) {
		out, cut := TruncateToTokens("short text", 10, EllipsisMarker)
		assert.False(t, cut)
		assert.Equal(t, "short text", out)
	})

	t.Run("cuts on word boundary within budget", func(t *testing.T) {
		original := words(250)
		out, cut := TruncateToTokens(original, 200, EllipsisMarker)
		require.True(t, cut)
		assert.LessOrEqual(t, Estimate(out), 200)
		assert.True(t, strings.HasSuffix(out, EllipsisMarker))

		prefix := strings.TrimSuffix(out, EllipsisMarker)
		require.True(t, strings.HasPrefix(original, prefix))
		next := []rune(original)[len([]rune(prefix))]
		assert.True(t, unicode.IsSpace(next), "prefix must end at a word boundary")
		assert.Equal(t, 200, Estimate(out))
	})

	t.Run("single long word cannot be cut", func(t *testing.T) {
		out, cut := TruncateToTokens(strings.Repeat("x", 100), 5, EllipsisMarker)
		assert.True(t, cut)
		assert.Equal(t, "", out)
	})

	t.Run("marker larger than budget", func(t *testing.T) {
		out, cut := TruncateToTokens(words(10), 0, EllipsisMarker)
		assert.True(t, cut)
		assert.Equal(t, "", out)
	})
}
