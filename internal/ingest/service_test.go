package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/borgius/n8n-local/internal/archive"
	"github.com/borgius/n8n-local/internal/clock/system"
	"github.com/borgius/n8n-local/internal/job"
	"github.com/borgius/n8n-local/internal/jobspy"
	pubmem "github.com/borgius/n8n-local/internal/publisher/memory"
	"github.com/borgius/n8n-local/internal/storage/memory"
)

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) FetchJobs(ctx context.Context, params jobspy.SearchParams) (json.RawMessage, error) {
	args := m.Called(ctx, params)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("broker down")
}

var runAt = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func newJobs(t *testing.T, strict bool) *memory.JobStore {
	t.Helper()
	n, err := job.NewNormalizer(job.NormalizerOptions{})
	require.NoError(t, err)
	return memory.NewJobStore(n, strict, nil)
}

func TestNewRequiresRepository(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Jobs: newJobs(t, false), Publisher: pubmem.New()})
	require.ErrorContains(t, err, "topic")
}

func TestSearchWithoutGateway(t *testing.T) {
	t.Parallel()

	svc, err := New(Options{Jobs: newJobs(t, false)})
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), jobspy.SearchParams{})
	require.ErrorContains(t, err, "not configured")
}

func TestSearchAndIngestPipeline(t *testing.T) {
	t.Parallel()

	body := json.RawMessage(`{"count":3,"jobs":[
		{"id":"a","site":"indeed","title":"Engineer","companyName":"Acme"},
		{"title":42},
		{"site":"linkedin","title":"Designer","datePosted":"2024-01-14"}
	]}`)
	params := jobspy.SearchParams{"searchTerm": "engineer"}
	searcher := &mockSearcher{}
	searcher.On("FetchJobs", mock.Anything, params).Return(body, nil).Once()

	blobs := memory.NewBlobStore()
	arch, err := archive.New(blobs, "responses")
	require.NoError(t, err)
	jobs := newJobs(t, false)
	pub := pubmem.New()

	svc, err := New(Options{
		Searcher:  searcher,
		Jobs:      jobs,
		Archive:   arch,
		Publisher: pub,
		Topic:     "jobspy.ingested",
		IDs:       fixedIDs{id: "run-1"},
		Clock:     system.Fixed{At: runAt},
	})
	require.NoError(t, err)

	res, err := svc.SearchAndIngest(context.Background(), params)
	require.NoError(t, err)
	searcher.AssertExpectations(t)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 3, res.Received)
	assert.Equal(t, 2, res.Persisted)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "a", res.Rows[0].ID)
	require.NotNil(t, res.Rows[0].Company)
	assert.Equal(t, "Acme", *res.Rows[0].Company)
	assert.Equal(t, 2, jobs.Len())

	assert.Equal(t, "memory://responses/2024/01/15/run-1.json", res.ArchiveURI)
	stored, ok := blobs.Object("responses/2024/01/15/run-1.json")
	require.True(t, ok)
	assert.JSONEq(t, string(body), string(stored))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "jobspy.ingested", msgs[0].Topic)
	var event Event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &event))
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, "search", event.Source)
	assert.Equal(t, 3, event.Received)
	assert.Equal(t, 2, event.Persisted)
	assert.Equal(t, []string{"a", res.Rows[1].ID}, event.IDs)
	assert.True(t, runAt.Equal(event.At))
}

func TestSearchAndIngestUpstreamFailure(t *testing.T) {
	t.Parallel()

	searcher := &mockSearcher{}
	searcher.On("FetchJobs", mock.Anything, mock.Anything).
		Return(nil, &jobspy.StatusError{StatusCode: 500}).Once()
	pub := pubmem.New()

	svc, err := New(Options{
		Searcher:  searcher,
		Jobs:      newJobs(t, false),
		Publisher: pub,
		Topic:     "events",
		IDs:       fixedIDs{id: "run-2"},
	})
	require.NoError(t, err)

	res, err := svc.SearchAndIngest(context.Background(), nil)
	var statusErr *jobspy.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 500, statusErr.StatusCode)
	assert.Equal(t, "run-2", res.RunID)
	assert.Empty(t, pub.Messages())
}

func TestSearchAndIngestBareArrayWithoutArchive(t *testing.T) {
	t.Parallel()

	searcher := &mockSearcher{}
	searcher.On("FetchJobs", mock.Anything, mock.Anything).
		Return(json.RawMessage(`[{"id":"x","title":"Engineer"}]`), nil).Once()

	svc, err := New(Options{Searcher: searcher, Jobs: newJobs(t, false)})
	require.NoError(t, err)

	res, err := svc.SearchAndIngest(context.Background(), jobspy.SearchParams{})
	require.NoError(t, err)
	assert.Empty(t, res.ArchiveURI)
	assert.Equal(t, 1, res.Persisted)
}

func TestSearchAndIngestSkipsNonObjectRecords(t *testing.T) {
	t.Parallel()

	searcher := &mockSearcher{}
	searcher.On("FetchJobs", mock.Anything, mock.Anything).
		Return(json.RawMessage(`{"jobs":[{"id":"a","title":"ok"},"garbage",{"id":"c"}],"count":3}`), nil).Once()

	n, err := job.NewNormalizer(job.NormalizerOptions{})
	require.NoError(t, err)
	core, logs := observer.New(zap.WarnLevel)
	jobs := memory.NewJobStore(n, false, zap.New(core))

	svc, err := New(Options{Searcher: searcher, Jobs: jobs})
	require.NoError(t, err)

	res, err := svc.SearchAndIngest(context.Background(), jobspy.SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Received)
	assert.Equal(t, 2, res.Persisted)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "a", res.Rows[0].ID)
	assert.Equal(t, "c", res.Rows[1].ID)
	assert.Equal(t, 1, logs.FilterMessage("skipping job record").Len())
}

func TestSearchAndIngestRejectsUndecodableBody(t *testing.T) {
	t.Parallel()

	searcher := &mockSearcher{}
	searcher.On("FetchJobs", mock.Anything, mock.Anything).
		Return(json.RawMessage(`"just a string"`), nil).Once()

	svc, err := New(Options{Searcher: searcher, Jobs: newJobs(t, false)})
	require.NoError(t, err)

	_, err = svc.SearchAndIngest(context.Background(), jobspy.SearchParams{})
	require.Error(t, err)
}

func TestIngestPublishFailureIsLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	svc, err := New(Options{
		Jobs:      newJobs(t, false),
		Publisher: failingPublisher{},
		Topic:     "events",
		Logger:    zap.New(core),
	})
	require.NoError(t, err)

	res, err := svc.Ingest(context.Background(), []map[string]any{{"id": "a", "title": "Engineer"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Persisted)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, logs.FilterMessage("publish ingest event failed").Len())
}

func TestIngestStrictAbortStillPublishesPartialRun(t *testing.T) {
	t.Parallel()

	pub := pubmem.New()
	svc, err := New(Options{
		Jobs:      newJobs(t, true),
		Publisher: pub,
		Topic:     "events",
		IDs:       fixedIDs{id: "run-3"},
	})
	require.NoError(t, err)

	res, err := svc.Ingest(context.Background(), []map[string]any{
		{"id": "a", "title": "Engineer"},
		{"title": true},
		{"id": "c", "title": "Designer"},
	})
	require.Error(t, err)
	var verr *job.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, res.Persisted)
	require.Len(t, pub.Messages(), 1)

	var event Event
	require.NoError(t, json.Unmarshal(pub.Messages()[0].Data, &event))
	assert.Equal(t, "ingest", event.Source)
	assert.Equal(t, []string{"a"}, event.IDs)
}

func TestIngestStrictAbortWithNothingPersistedSkipsPublish(t *testing.T) {
	t.Parallel()

	pub := pubmem.New()
	svc, err := New(Options{Jobs: newJobs(t, true), Publisher: pub, Topic: "events"})
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), []map[string]any{{"title": 1}})
	require.Error(t, err)
	assert.Empty(t, pub.Messages())
}
