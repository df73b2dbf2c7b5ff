package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize is the single text normalization used for cache keys: trim,
// casefold and collapse whitespace runs to one space.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// HashKey returns a stable hex SHA-256 over the parts, NUL separated.
func HashKey(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
