package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/borgius/n8n-local/internal/config"
	"github.com/borgius/n8n-local/internal/ingest"
	"github.com/borgius/n8n-local/internal/job"
	"github.com/borgius/n8n-local/internal/jobspy"
	"github.com/borgius/n8n-local/internal/metrics"
	"github.com/borgius/n8n-local/internal/store"
)

// maxBodyBytes caps request bodies accepted by the write endpoints.
const maxBodyBytes = 32 << 20

// Pipeline is the subset of ingest.Service used by the handlers.
type Pipeline interface {
	Search(ctx context.Context, params jobspy.SearchParams) (json.RawMessage, error)
	Ingest(ctx context.Context, records []map[string]any) (ingest.Result, error)
}

// JobReader reads stored listings back.
type JobReader interface {
	GetJob(ctx context.Context, id string) (job.Row, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]job.Row, error)
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the ingest pipeline and job store.
type Server struct {
	router   chi.Router
	pipeline Pipeline
	jobs     JobReader
	ready    Pinger
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready may be nil,
// in which case /readyz always reports ready.
func NewServer(
	pipeline Pipeline,
	jobs JobReader,
	ready Pinger,
	cfg config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipeline: pipeline,
		jobs:     jobs,
		ready:    ready,
		logger:   logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(5 * time.Minute))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/search", s.search)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.ingestJobs)
			r.Get("/", s.listJobs)
			r.Get("/{job_id}", s.getJob)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var params jobspy.SearchParams
	if err := decodeBody(r, &params); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	raw, err := s.pipeline.Search(r.Context(), params)
	if err != nil {
		body := map[string]any{"error": err.Error()}
		var statusErr *jobspy.StatusError
		if errors.As(err, &statusErr) {
			body["upstream_status"] = statusErr.StatusCode
		}
		s.writeJSON(w, http.StatusBadGateway, body)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.logger.Error("write search response failed", zap.Error(err))
	}
}

func (s *Server) ingestJobs(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	batch, err := jobspy.DecodeResponse(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "body must be {\"jobs\": [...]} or [...]")
		return
	}
	res, err := s.pipeline.Ingest(r.Context(), batch.Jobs)
	if err != nil {
		status := http.StatusInternalServerError
		var verr *job.ValidationError
		if errors.As(err, &verr) {
			status = http.StatusUnprocessableEntity
		}
		s.writeJSON(w, status, map[string]any{
			"error":     err.Error(),
			"run_id":    res.RunID,
			"received":  res.Received,
			"persisted": res.Persisted,
			"jobs":      rowsOrEmpty(res.Rows),
		})
		return
	}
	res.Rows = rowsOrEmpty(res.Rows)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	row, err := s.jobs.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job failed", zap.String("job_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": row})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.JobFilter{Site: q.Get("site"), Company: q.Get("company")}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		s.writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		s.writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	filter = filter.Normalized()
	rows, err := s.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   rowsOrEmpty(rows),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse int %q: %w", v, err)
	}
	return n, nil
}

func rowsOrEmpty(rows []job.Row) []job.Row {
	if rows == nil {
		return []job.Row{}
	}
	return rows
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned by the request id middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					writeJSON(logger, w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSON(zap.NewNop(), w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(s.logger, w, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(s.logger, w, status, map[string]string{"error": msg})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
