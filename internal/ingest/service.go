// Package ingest runs search and upsert passes: fetch from JobSpy, archive the
// raw body, write the jobs, then announce the run.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/borgius/n8n-local/internal/archive"
	"github.com/borgius/n8n-local/internal/clock/system"
	"github.com/borgius/n8n-local/internal/id/uuid"
	"github.com/borgius/n8n-local/internal/job"
	"github.com/borgius/n8n-local/internal/jobspy"
	"github.com/borgius/n8n-local/internal/metrics"
	"github.com/borgius/n8n-local/internal/store"
)

// Run statuses recorded in metrics.
const (
	runSuccess = "success"
	runFailed  = "failed"
)

// Searcher submits a search to JobSpy.
type Searcher interface {
	FetchJobs(ctx context.Context, params jobspy.SearchParams) (json.RawMessage, error)
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Event is published after every ingest run that persisted rows or finished
// cleanly.
type Event struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Received  int       `json:"received"`
	Persisted int       `json:"persisted"`
	IDs       []string  `json:"ids"`
	At        time.Time `json:"at"`
}

// Result summarizes one run.
type Result struct {
	RunID      string    `json:"run_id"`
	Received   int       `json:"received"`
	Persisted  int       `json:"persisted"`
	Rows       []job.Row `json:"jobs"`
	ArchiveURI string    `json:"archive_uri,omitempty"`
}

// Options wires a Service. Archive and Publisher are optional.
type Options struct {
	Searcher  Searcher
	Jobs      store.JobRepository
	Archive   *archive.Archive
	Publisher store.Publisher
	Topic     string
	IDs       IDGenerator
	Clock     Clock
	Logger    *zap.Logger
}

// Service coordinates the ingest pipeline.
type Service struct {
	searcher  Searcher
	jobs      store.JobRepository
	archive   *archive.Archive
	publisher store.Publisher
	topic     string
	ids       IDGenerator
	clock     Clock
	logger    *zap.Logger
}

// New validates opts and builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Jobs == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if opts.Publisher != nil && opts.Topic == "" {
		return nil, fmt.Errorf("topic is required when a publisher is set")
	}
	if opts.IDs == nil {
		opts.IDs = uuid.New()
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		searcher:  opts.Searcher,
		jobs:      opts.Jobs,
		archive:   opts.Archive,
		publisher: opts.Publisher,
		topic:     opts.Topic,
		ids:       opts.IDs,
		clock:     opts.Clock,
		logger:    opts.Logger.Named("ingest"),
	}, nil
}

// Search forwards params to JobSpy and returns the body untouched.
func (s *Service) Search(ctx context.Context, params jobspy.SearchParams) (json.RawMessage, error) {
	if s.searcher == nil {
		return nil, fmt.Errorf("search gateway is not configured")
	}
	return s.searcher.FetchJobs(ctx, params)
}

// Ingest upserts records supplied by the caller.
func (s *Service) Ingest(ctx context.Context, records []map[string]any) (Result, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("new run id: %w", err)
	}
	return s.persist(ctx, Result{RunID: runID}, "ingest", records)
}

// SearchAndIngest fetches, archives and upserts one search. Archive and
// publish failures are logged and do not fail the run.
func (s *Service) SearchAndIngest(ctx context.Context, params jobspy.SearchParams) (Result, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("new run id: %w", err)
	}
	startedAt := s.clock.Now()
	logger := s.logger.With(zap.String("run_id", runID))

	raw, err := s.Search(ctx, params)
	if err != nil {
		metrics.ObserveRun(runFailed)
		return Result{RunID: runID}, fmt.Errorf("search: %w", err)
	}

	res := Result{RunID: runID}
	if s.archive != nil {
		uri, aerr := s.archive.Save(ctx, runID, startedAt, raw)
		if aerr != nil {
			logger.Warn("archive response failed", zap.Error(aerr))
		} else {
			res.ArchiveURI = uri
		}
	}

	resp, err := jobspy.DecodeResponse(raw)
	if err != nil {
		metrics.ObserveRun(runFailed)
		return res, err
	}
	if resp.Message != "" {
		logger.Info("jobspy message", zap.String("message", resp.Message))
	}
	return s.persist(ctx, res, "search", resp.Jobs)
}

func (s *Service) persist(ctx context.Context, res Result, source string, records []map[string]any) (Result, error) {
	logger := s.logger.With(zap.String("run_id", res.RunID))

	rows, err := s.jobs.UpsertRecords(ctx, records)
	res.Received = len(records)
	res.Persisted = len(rows)
	res.Rows = rows
	if err == nil || len(rows) > 0 {
		s.announce(ctx, res, source)
	}
	if err != nil {
		metrics.ObserveRun(runFailed)
		logger.Error("ingest run failed", zap.Int("persisted", res.Persisted), zap.Error(err))
		return res, fmt.Errorf("upsert: %w", err)
	}
	metrics.ObserveRun(runSuccess)
	logger.Info("ingest run complete",
		zap.String("source", source),
		zap.Int("received", res.Received),
		zap.Int("persisted", res.Persisted),
	)
	return res, nil
}

func (s *Service) announce(ctx context.Context, res Result, source string) {
	if s.publisher == nil {
		return
	}
	ids := make([]string, len(res.Rows))
	for i, row := range res.Rows {
		ids[i] = row.ID
	}
	event := Event{
		RunID:     res.RunID,
		Source:    source,
		Received:  res.Received,
		Persisted: res.Persisted,
		IDs:       ids,
		At:        s.clock.Now(),
	}
	msgID, err := s.publisher.Publish(ctx, s.topic, event)
	if err != nil {
		s.logger.Warn("publish ingest event failed", zap.String("run_id", res.RunID), zap.Error(err))
		return
	}
	s.logger.Debug("published ingest event", zap.String("run_id", res.RunID), zap.String("message_id", msgID))
}
