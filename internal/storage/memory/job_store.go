package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/borgius/n8n-local/internal/job"
	"github.com/borgius/n8n-local/internal/metrics"
	"github.com/borgius/n8n-local/internal/store"
)

// JobStore is an in-memory store.JobRepository with the same upsert
// semantics as the Postgres store.
type JobStore struct {
	mu         sync.RWMutex
	rows       map[string]job.Row
	normalizer *job.Normalizer
	logger     *zap.Logger
	strict     bool
	now        func() time.Time
}

var _ store.JobRepository = (*JobStore)(nil)

// NewJobStore constructs a JobStore.
func NewJobStore(normalizer *job.Normalizer, strict bool, logger *zap.Logger) *JobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobStore{
		rows:       make(map[string]job.Row),
		normalizer: normalizer,
		logger:     logger.Named("memory_jobstore"),
		strict:     strict,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// UpsertRecords validates and stores records in order.
func (s *JobStore) UpsertRecords(ctx context.Context, records []map[string]any) ([]job.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]job.Row, 0, len(records))
	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		row, err := s.prepare(raw)
		if err != nil {
			var verr *job.ValidationError
			result := metrics.RecordWriteFailed
			if errors.As(err, &verr) {
				result = metrics.RecordInvalid
			}
			metrics.ObserveRecord(result)
			s.logger.Warn("skipping job record", zap.Int("index", i), zap.Error(err))
			if s.strict {
				return out, fmt.Errorf("record %d: %w", i, err)
			}
			continue
		}
		now := s.now()
		row.CreatedAt, row.UpdatedAt = now, now
		if existing, ok := s.rows[row.ID]; ok {
			row.CreatedAt = existing.CreatedAt
		}
		s.rows[row.ID] = row
		metrics.ObserveRecord(metrics.RecordPersisted)
		out = append(out, row)
	}
	return out, nil
}

func (s *JobStore) prepare(raw map[string]any) (job.Row, error) {
	rec, err := job.Validate(raw)
	if err != nil {
		return job.Row{}, err
	}
	return s.normalizer.Normalize(rec)
}

// GetJob fetches a row by id.
func (s *JobStore) GetJob(_ context.Context, id string) (job.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return job.Row{}, store.ErrNotFound
	}
	return row, nil
}

// ListJobs returns rows newest-updated first, ties broken by id.
func (s *JobStore) ListJobs(_ context.Context, filter store.JobFilter) ([]job.Row, error) {
	filter = filter.Normalized()
	s.mu.RLock()
	matched := make([]job.Row, 0, len(s.rows))
	for _, row := range s.rows {
		if filter.Site != "" && (row.Site == nil || *row.Site != filter.Site) {
			continue
		}
		if filter.Company != "" && (row.Company == nil || *row.Company != filter.Company) {
			continue
		}
		matched = append(matched, row)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	if filter.Offset >= len(matched) {
		return []job.Row{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

// Len reports the number of stored rows.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
