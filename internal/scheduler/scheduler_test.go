package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borgius/n8n-local/internal/config"
	"github.com/borgius/n8n-local/internal/ingest"
	"github.com/borgius/n8n-local/internal/jobspy"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []jobspy.SearchParams
	err   error
	ran   chan struct{}
	// block, when set, holds every run until it is closed.
	block chan struct{}
}

func (f *fakeRunner) SearchAndIngest(_ context.Context, params jobspy.SearchParams) (ingest.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()
	if f.ran != nil {
		f.ran <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return ingest.Result{RunID: "run", Received: 2, Persisted: 2}, f.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	err      error
	released int
	keys     []string
}

func (f *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held {
		return nil, false, nil
	}
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.released++
		return nil
	}, true, nil
}

var frontend = config.SavedSearch{
	Name:   "frontend",
	Spec:   "@every 6h",
	Params: `{"searchTerm":"frontend developer","siteNames":"indeed"}`,
}

func TestNewValidatesSearches(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)

	runner := &fakeRunner{}
	_, err = New(Options{Runner: runner, Searches: []config.SavedSearch{{Name: "x", Spec: "not a spec"}}})
	require.ErrorContains(t, err, `saved search "x"`)

	_, err = New(Options{Runner: runner, Searches: []config.SavedSearch{frontend, frontend}})
	require.ErrorContains(t, err, "duplicate")

	_, err = New(Options{Runner: runner, Searches: []config.SavedSearch{{Name: "y", Spec: "@daily", Params: "[1"}}})
	require.Error(t, err)
}

func TestRunNowPassesParams(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	locker := &fakeLocker{}
	s, err := New(Options{Runner: runner, Searches: []config.SavedSearch{frontend}, Locker: locker})
	require.NoError(t, err)

	res, ran, err := s.RunNow(context.Background(), "frontend")
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, res.Persisted)
	require.Equal(t, 1, runner.callCount())
	assert.Equal(t, "frontend developer", runner.calls[0]["searchTerm"])
	assert.Equal(t, []string{"jobspy:schedule:frontend"}, locker.keys)
	assert.Equal(t, 1, locker.released)
}

func TestRunNowSkipsWhenLockHeld(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s, err := New(Options{Runner: runner, Searches: []config.SavedSearch{frontend}, Locker: &fakeLocker{held: true}})
	require.NoError(t, err)

	_, ran, err := s.RunNow(context.Background(), "frontend")
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, runner.callCount())
}

func TestRunNowErrors(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("upstream down")}
	locker := &fakeLocker{}
	s, err := New(Options{Runner: runner, Searches: []config.SavedSearch{frontend}, Locker: locker})
	require.NoError(t, err)

	_, _, err = s.RunNow(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnknownSearch)

	_, ran, err := s.RunNow(context.Background(), "frontend")
	require.ErrorContains(t, err, "upstream down")
	assert.True(t, ran)
	assert.Equal(t, 1, locker.released)

	locked, err := New(Options{Runner: runner, Searches: []config.SavedSearch{frontend}, Locker: &fakeLocker{err: errors.New("no redis")}})
	require.NoError(t, err)
	_, _, err = locked.RunNow(context.Background(), "frontend")
	require.ErrorContains(t, err, "acquire lock")
}

func TestStartRegistersEntriesAndRunsOnStart(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{ran: make(chan struct{}, 2)}
	second := config.SavedSearch{Name: "backend", Spec: "0 */2 * * *"}
	s, err := New(Options{
		Runner:     runner,
		Searches:   []config.SavedSearch{frontend, second},
		RunOnStart: true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.Len(t, s.cron.Entries(), 2)

	for i := 0; i < 2; i++ {
		select {
		case <-runner.ran:
		case <-time.After(2 * time.Second):
			t.Fatal("saved search did not run on start")
		}
	}
	<-s.Stop().Done()
	assert.Equal(t, 2, runner.callCount())
}

func TestStopWaitsForRunOnStart(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{ran: make(chan struct{}, 1), block: make(chan struct{})}
	s, err := New(Options{
		Runner:     runner,
		Searches:   []config.SavedSearch{frontend},
		RunOnStart: true,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("saved search did not run on start")
	}

	done := s.Stop()
	select {
	case <-done.Done():
		t.Fatal("Stop returned before the startup run finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.block)
	select {
	case <-done.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not finish after the startup run returned")
	}
}

func TestRunOnStartSkipsOverlappingTick(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{ran: make(chan struct{}, 4), block: make(chan struct{})}
	s, err := New(Options{
		Runner:     runner,
		Searches:   []config.SavedSearch{{Name: "fast", Spec: "@every 1s"}},
		RunOnStart: true,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	// Let at least one tick fire while the startup run is still blocked.
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 1, runner.callCount())

	close(runner.block)
	<-s.Stop().Done()
}

type fakeLockClient struct {
	setOK   bool
	setErr  error
	evalErr error
	setArgs []any
	evalArg []any
}

func (f *fakeLockClient) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	f.setArgs = []any{key, value, ttl}
	return redis.NewBoolResult(f.setOK, f.setErr)
}

func (f *fakeLockClient) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.evalArg = append([]any{script, keys}, args...)
	return redis.NewCmdResult(int64(1), f.evalErr)
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	t.Parallel()

	client := &fakeLockClient{setOK: true}
	locker := NewRedisLocker(client)

	release, ok, err := locker.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "k", client.setArgs[0])
	token, isString := client.setArgs[1].(string)
	require.True(t, isString)
	require.NotEmpty(t, token)
	require.Equal(t, time.Minute, client.setArgs[2])

	require.NoError(t, release(context.Background()))
	require.Equal(t, releaseScript, client.evalArg[0])
	require.Equal(t, []string{"k"}, client.evalArg[1])
	require.Equal(t, token, client.evalArg[2])
}

func TestRedisLockerContention(t *testing.T) {
	t.Parallel()

	release, ok, err := NewRedisLocker(&fakeLockClient{setOK: false}).Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, release)

	_, _, err = NewRedisLocker(&fakeLockClient{setErr: errors.New("dial tcp")}).Acquire(context.Background(), "k", time.Minute)
	require.ErrorContains(t, err, "redis setnx k")

	client := &fakeLockClient{setOK: true, evalErr: errors.New("readonly")}
	release, ok, err = NewRedisLocker(client).Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.ErrorContains(t, release(context.Background()), "redis release k")
}
