package store

import (
	"context"
	"errors"
	"io"

	"github.com/borgius/n8n-local/internal/job"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("job not found")

// Paging limits for ListJobs.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// JobFilter narrows ListJobs. Empty strings match everything.
type JobFilter struct {
	Site    string
	Company string
	Limit   int
	Offset  int
}

// Normalized clamps Limit into 1..MaxListLimit and Offset to >= 0.
func (f JobFilter) Normalized() JobFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// JobRepository persists listings keyed by id.
type JobRepository interface {
	// UpsertRecords validates and writes records in order. Records that fail
	// are skipped unless the repository runs in strict mode. The returned rows
	// are the persisted subset in input order.
	UpsertRecords(ctx context.Context, records []map[string]any) ([]job.Row, error)
	GetJob(ctx context.Context, id string) (job.Row, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]job.Row, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes ingest events to a topic or stream.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
