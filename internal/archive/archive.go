// Package archive keeps raw JobSpy response bodies as an audit trail. Stored
// bodies are never read back to answer a search.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/borgius/n8n-local/internal/store"
)

// Archive writes response bodies to a blob store under
// {prefix}/{yyyy}/{mm}/{dd}/{runID}.json.
type Archive struct {
	blobs  store.BlobStore
	prefix string
}

// New creates an Archive. An empty prefix writes at the bucket root.
func New(blobs store.BlobStore, prefix string) (*Archive, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &Archive{blobs: blobs, prefix: prefix}, nil
}

// Path returns the object path for a run started at.
func (a *Archive) Path(runID string, at time.Time) string {
	at = at.UTC()
	return path.Join(a.prefix, at.Format("2006"), at.Format("01"), at.Format("02"), runID+".json")
}

// Save stores body and returns the blob URI.
func (a *Archive) Save(ctx context.Context, runID string, at time.Time, body []byte) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	uri, err := a.blobs.PutObject(ctx, a.Path(runID, at), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("archive response %s: %w", runID, err)
	}
	return uri, nil
}
