package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// CacheKey joins the parts with a separator that cannot occur in a hex digest and
// hashes the result, so that free text never leaks into cache key names.
func CacheKey(parts ...string) string {
	return HashString(strings.Join(parts, "\x1f"))
}
