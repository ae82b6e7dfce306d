package redis

import (
	"context"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	args []*goredis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(_ context.Context, a *goredis.XAddArgs) *goredis.StringCmd {
	f.args = append(f.args, a)
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	return goredis.NewStringResult("1700000000000-0", nil)
}

func TestPublishAppendsToStream(t *testing.T) {
	t.Parallel()

	fake := &fakeStream{}
	pub := New(fake, 0)

	id, err := pub.Publish(context.Background(), "jobspy.ingested", map[string]any{"run_id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-0", id)

	require.Len(t, fake.args, 1)
	got := fake.args[0]
	assert.Equal(t, "jobspy.ingested", got.Stream)
	assert.Equal(t, int64(defaultMaxLen), got.MaxLen)
	assert.True(t, got.Approx)
	assert.Equal(t, map[string]any{"payload": `{"run_id":"r1"}`}, got.Values)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeStream{err: errors.New("READONLY")}, 10).Publish(context.Background(), "t", "x")
	require.ErrorContains(t, err, "READONLY")

	_, err = New(&fakeStream{}, 10).Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = New(&fakeStream{}, 10).Publish(context.Background(), "t", make(chan int))
	require.Error(t, err)

	_, err = New(nil, 10).Publish(context.Background(), "t", "x")
	require.Error(t, err)
}
