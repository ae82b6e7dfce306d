package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestStore points a storage client at handler.
func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "raw-responses", Metadata: map[string]string{"source": "jobspy"}})
	require.NoError(t, err)
	return store
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		gotName  string
		gotBody  string
		gotQuery string
	)
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotName = r.URL.Query().Get("name")
		gotQuery = r.URL.Path
		gotBody = string(body)
		mu.Unlock()
		fmt.Fprintln(w, `{"name":"responses/2024/01/15/run.json","bucket":"raw-responses"}`)
	}))

	uri, err := store.PutObject(context.Background(), "responses/2024/01/15/run.json", "application/json",
		strings.NewReader(`{"jobs":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "gs://raw-responses/responses/2024/01/15/run.json", uri)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, gotQuery, "/b/raw-responses/o")
	assert.Equal(t, "responses/2024/01/15/run.json", gotName)
	assert.Contains(t, gotBody, `{"jobs":[]}`)
	assert.Contains(t, gotBody, `"source":"jobspy"`)
	assert.Contains(t, gotBody, "application/json")
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := store.PutObject(context.Background(), "x.json", "", strings.NewReader("{}"))
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.NotFoundHandler())
	_, err := store.PutObject(context.Background(), " ", "", strings.NewReader("{}"))
	require.Error(t, err)
}
