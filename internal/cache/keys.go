package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateKey builds a deterministic cache key: every part is lower-cased,
// stripped of characters outside [a-z0-9_] and the parts are joined with "_".
// Unbounded text must be passed through HashText first.
func GenerateKey(parts ...string) string {
	cleaned := make([]string, len(parts))
	for i, p := range parts {
		cleaned[i] = strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
				return r
			default:
				return -1
			}
		}, strings.ToLower(p))
	}
	return strings.Join(cleaned, "_")
}

// HashText returns the first 16 bytes of the SHA-256 digest of s, hex encoded.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
