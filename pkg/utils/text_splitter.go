package utils

import (
	"strings"
	"unicode"

	"docqa-be/pkg/tokens"
)

// SplitText cuts text into chunks of at most chunkTokens estimated tokens,
// breaking on whitespace, with overlapTokens of trailing context repeated at
// the start of the next chunk. A single word longer than a chunk is cut.
func SplitText(text string, chunkTokens, overlapTokens int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if chunkTokens <= 0 || tokens.Estimate(text) <= chunkTokens {
		return []string{text}
	}
	if overlapTokens < 0 || overlapTokens >= chunkTokens {
		overlapTokens = 0
	}

	maxRunes := chunkTokens * tokens.CharsPerToken
	overlapRunes := overlapTokens * tokens.CharsPerToken
	runes := []rune(text)

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + maxRunes
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}
		if cut := lastSpaceIn(runes, start, end); cut > start {
			end = cut
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))

		next := end - overlapRunes
		if next <= start {
			next = end
		}
		// do not begin the next chunk mid-word
		for next < end && next > 0 && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
	}
	return chunks
}

// lastSpaceIn returns the index of the last whitespace rune in
// runes[start:end+1], or -1.
func lastSpaceIn(runes []rune, start, end int) int {
	for i := end; i > start; i-- {
		if i < len(runes) && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
