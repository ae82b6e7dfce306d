// Package system provides a real clock implementation.
package system

import "time"

// Clock reports wall time in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a Clock pinned to a single instant, used where timestamps must be
// reproducible.
type Fixed struct {
	At time.Time
}

// Now returns the pinned instant in UTC.
func (f Fixed) Now() time.Time {
	return f.At.UTC()
}
