// Package sha256 derives content digests for job records.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// FieldSeparator joins the fields of a content key before hashing.
const FieldSeparator = "|"

// Hasher digests the identifying fields of a job record, so the same posting
// always maps to the same id.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Digest hashes fields joined by FieldSeparator and returns the lowercase hex
// SHA-256 sum. Empty fields still contribute their separator.
func (h *Hasher) Digest(fields ...string) (string, error) {
	d := sha256.New()
	for i, f := range fields {
		if i > 0 {
			if _, err := io.WriteString(d, FieldSeparator); err != nil {
				return "", err
			}
		}
		if _, err := io.WriteString(d, f); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}
