package utils

import (
	"strings"
	"testing"

	"docqa-be/pkg/tokens"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextShortInput(t *testing.T) {
	assert.Nil(t, SplitText("   ", 10, 2))
	assert.Equal(t, []string{"hello world"}, SplitText("  hello world ", 10, 2))
}

func TestSplitTextRespectsBudgetAndWords(t *testing.T) {
	words := make([]string, 300)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	chunks := SplitText(text, 50, 10)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, tokens.Estimate(c), 50)
		for _, w := range strings.Fields(c) {
			assert.Equal(t, "word", w, "chunks never split a word")
		}
	}
}

func TestSplitTextOverlapRepeatsContext(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = string(rune('a'+i%26)) + "xx"
	}
	text := strings.Join(words, " ")

	chunks := SplitText(text, 20, 5)
	require.Greater(t, len(chunks), 1)

	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	assert.Equal(t, "pxx", second[0])
	assert.Equal(t, 4, indexOf(second, first[len(first)-1]), "tail of one chunk opens the next")
}

func TestSplitTextUnbreakableWord(t *testing.T) {
	chunks := SplitText(strings.Repeat("x", 100), 10, 0)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 40)
	assert.Len(t, chunks[2], 20)
}

func indexOf(items []string, want string) int {
	for i, s := range items {
		if s == want {
			return i
		}
	}
	return -1
}
