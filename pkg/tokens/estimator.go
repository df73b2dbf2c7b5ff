package tokens

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CharsPerToken is the one approximation constant used for every budget
// decision in the service. It does not match any tokenizer exactly; it only
// has to be applied consistently.
const CharsPerToken = 4

// EllipsisMarker is appended to text cut by TruncateToTokens.
const EllipsisMarker = "..."

// Estimate returns the approximate token count of text.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// EstimateAll sums Estimate over texts.
func EstimateAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}

// TruncateToTokens returns the longest prefix of text that ends on a word
// boundary and, with marker appended, costs at most maxTokens. The boolean is
// false when text already fits and is returned unchanged. A result of "" with
// true means not even one whole word fits.
func TruncateToTokens(text string, maxTokens int, marker string) (string, bool) {
	if Estimate(text) <= maxTokens {
		return text, false
	}

	maxChars := maxTokens*CharsPerToken - utf8.RuneCountInString(marker)
	if maxChars <= 0 {
		return "", true
	}

	runes := []rune(text)
	cut := maxChars
	// runes[cut] exists because text does not fit.
	if !unicode.IsSpace(runes[cut]) {
		cut = lastSpace(runes[:cut])
		if cut < 0 {
			return "", true
		}
	}

	prefix := strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
	if prefix == "" {
		return "", true
	}
	return prefix + marker, true
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
