// Package uuid provides ID generation helpers backed by google/uuid.
package uuid

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// maxShortID is the number of base-36 digits a 62-bit value always yields.
const maxShortID = 11

// Generator creates run identifiers and short random suffixes.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string. Run ids sort by creation time.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewShortID returns n lowercase base-36 characters drawn from a random
// UUIDv4. n must be between 1 and 11.
func (Generator) NewShortID(n int) (string, error) {
	if n <= 0 || n > maxShortID {
		return "", fmt.Errorf("short id length %d out of range 1..%d", n, maxShortID)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	// The top two bits of byte 8 carry the variant.
	x := binary.BigEndian.Uint64(id[8:]) & (1<<62 - 1)
	s := strconv.FormatUint(x, 36)
	if len(s) < n {
		s = strings.Repeat("0", n-len(s)) + s
	}
	return s[len(s)-n:], nil
}
