// Package jobspy is the HTTP gateway to the JobSpy search API.
package jobspy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/borgius/n8n-local/internal/metrics"
)

const apiPath = "/api"

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d", e.StatusCode)
}

// Client posts search requests to a JobSpy instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	tracer     trace.Tracer
}

// New creates a Client for baseURL (e.g. http://127.0.0.1:9423). A zero
// timeout keeps the transport default.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout}, logger)
}

// NewWithHTTPClient is like New but uses the supplied *http.Client.
func NewWithHTTPClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.Named("jobspy"),
		tracer:     otel.Tracer("github.com/borgius/n8n-local/internal/jobspy"),
	}
}

// FetchJobs submits one search and returns the response body verbatim. The
// request is made exactly once. Transport errors are returned unwrapped.
func (c *Client) FetchJobs(ctx context.Context, params SearchParams) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "jobspy.FetchJobs", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	raw, outcome, err := c.fetch(ctx, params)
	metrics.ObserveSearch(outcome, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Error fetching jobs", zap.String("url", c.baseURL+apiPath), zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("jobspy.response_bytes", len(raw)))
	return raw, nil
}

func (c *Client) fetch(ctx context.Context, params SearchParams) (json.RawMessage, string, error) {
	body, err := json.Marshal(Sanitize(params))
	if err != nil {
		return nil, metrics.OutcomeTransportError, fmt.Errorf("encode search params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPath, bytes.NewReader(body))
	if err != nil {
		return nil, metrics.OutcomeTransportError, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, metrics.OutcomeTransportError, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, metrics.OutcomeTransportError, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, metrics.OutcomeStatusError, &StatusError{StatusCode: resp.StatusCode, Body: string(payload)}
	}

	if !json.Valid(payload) {
		return nil, metrics.OutcomeStatusError, errors.New("decode response: body is not valid JSON")
	}
	c.logger.Debug("search completed",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(payload)),
	)
	return json.RawMessage(payload), metrics.OutcomeSuccess, nil
}
