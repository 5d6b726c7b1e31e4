package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"tonearm/internal/models"
	"tonearm/internal/shared"
)

// Fingerprint derives a deterministic identity for a query from its
// normalized fields. Equivalent queries (" Gojira " vs "gojira") share a
// fingerprint, and the digest is stable across process restarts so cache
// keys survive redeploys.
func Fingerprint(q models.Query) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(q.Artist)),
		strings.ToLower(strings.TrimSpace(q.Release)),
		shared.NormalizeCountry(q.Country),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
