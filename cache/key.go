package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeriveKey maps a raw "song artist" query to a stable cache key.
// The query is lower-cased and trimmed so that casing and surrounding
// whitespace variations hit the same entry; internal whitespace is
// preserved, so callers must fold the artist into the same string to get
// discriminating keys.
//
// The key is the first 32 hex characters (16 bytes) of the SHA-256 digest.
// The truncation trades collision resistance for filename brevity; at 128
// bits, collisions are still vanishingly unlikely for any realistic
// library size.
func DeriveKey(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:32]
}
