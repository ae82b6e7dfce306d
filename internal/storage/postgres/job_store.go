// Package postgres provides the Postgres-backed jobs table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/borgius/n8n-local/internal/job"
	"github.com/borgius/n8n-local/internal/metrics"
	"github.com/borgius/n8n-local/internal/store"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// JobStoreConfig controls the Postgres connection pool and table location.
type JobStoreConfig struct {
	DSN             string
	Schema          string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Strict aborts UpsertRecords on the first record that fails.
	Strict bool
}

// Conn is a single connection checked out for one batch.
type Conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Dialer checks out a Conn.
type Dialer func(ctx context.Context) (Conn, error)

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// pooledConn returns its connection to the pool on Close.
type pooledConn struct {
	*pgxpool.Conn
}

func (c pooledConn) Close(context.Context) error {
	c.Release()
	return nil
}

// JobStore upserts listings into the jobs table.
type JobStore struct {
	pool       dbPool
	dial       Dialer
	normalizer *job.Normalizer
	logger     *zap.Logger
	schema     string
	table      string
	qualified  string
	upsertSQL  string
	strict     bool
}

var _ store.JobRepository = (*JobStore)(nil)

// NewJobStore connects a pool and returns a JobStore using it.
func NewJobStore(ctx context.Context, cfg JobStoreConfig, normalizer *job.Normalizer, logger *zap.Logger) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	dial := func(ctx context.Context) (Conn, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return pooledConn{conn}, nil
	}
	s, err := NewJobStoreWithPool(pool, dial, cfg, normalizer, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewJobStoreWithPool constructs a store from an existing pool and dialer
// (primarily for testing).
func NewJobStoreWithPool(pool dbPool, dial Dialer, cfg JobStoreConfig, normalizer *job.Normalizer, logger *zap.Logger) (*JobStore, error) {
	if pool == nil || dial == nil {
		return nil, fmt.Errorf("pool and dialer are required")
	}
	if normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	schema, table := cfg.Schema, cfg.Table
	if schema == "" {
		schema = "jobspy"
	}
	if table == "" {
		table = "jobs"
	}
	if !validIdentifier.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	if !validIdentifier.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	qualified := schema + "." + table
	return &JobStore{
		pool:       pool,
		dial:       dial,
		normalizer: normalizer,
		logger:     logger.Named("jobstore"),
		schema:     schema,
		table:      table,
		qualified:  qualified,
		upsertSQL:  buildUpsert(qualified),
		strict:     cfg.Strict,
	}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// UpsertRecords writes records over one checked-out connection, in input
// order. A failed record is logged and skipped; in strict mode it ends the
// batch and the rows written so far are returned with the error. An error
// without strict mode means the connection could not be acquired.
func (s *JobStore) UpsertRecords(ctx context.Context, records []map[string]any) ([]job.Row, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(ctx); cerr != nil {
			s.logger.Warn("release connection", zap.Error(cerr))
		}
	}()

	rows := make([]job.Row, 0, len(records))
	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		row, err := s.upsertOne(ctx, conn, raw)
		if err != nil {
			var verr *job.ValidationError
			result := metrics.RecordWriteFailed
			if errors.As(err, &verr) {
				result = metrics.RecordInvalid
			}
			metrics.ObserveRecord(result)
			s.logger.Warn("skipping job record",
				zap.Int("index", i),
				zap.String("result", result),
				zap.Error(err),
			)
			if s.strict {
				return rows, fmt.Errorf("record %d: %w", i, err)
			}
			continue
		}
		metrics.ObserveRecord(metrics.RecordPersisted)
		rows = append(rows, row)
	}
	s.logger.Debug("batch upserted", zap.Int("received", len(records)), zap.Int("persisted", len(rows)))
	return rows, nil
}

func (s *JobStore) upsertOne(ctx context.Context, conn Conn, raw map[string]any) (job.Row, error) {
	rec, err := job.Validate(raw)
	if err != nil {
		return job.Row{}, err
	}
	row, err := s.normalizer.Normalize(rec)
	if err != nil {
		return job.Row{}, err
	}
	if err := conn.QueryRow(ctx, s.upsertSQL, rowArgs(row)...).Scan(&row.CreatedAt, &row.UpdatedAt); err != nil {
		return job.Row{}, fmt.Errorf("upsert job %s: %w", row.ID, err)
	}
	return row, nil
}

// GetJob reads one row by id.
func (s *JobStore) GetJob(ctx context.Context, id string) (job.Row, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE "id" = $1`, selectList(), s.qualified)
	row, err := scanJob(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Row{}, store.ErrNotFound
		}
		return job.Row{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return row, nil
}

// ListJobs returns rows ordered by most recent update.
func (s *JobStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]job.Row, error) {
	filter = filter.Normalized()
	var (
		where []string
		args  []any
	)
	if filter.Site != "" {
		args = append(args, filter.Site)
		where = append(where, fmt.Sprintf(`"site" = $%d`, len(args)))
	}
	if filter.Company != "" {
		args = append(args, filter.Company)
		where = append(where, fmt.Sprintf(`"company" = $%d`, len(args)))
	}
	query := fmt.Sprintf(`SELECT %s FROM %s`, selectList(), s.qualified)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY "updated_at" DESC, "id" LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]job.Row, 0, filter.Limit)
	for rows.Next() {
		row, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}
