package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/touge-service-manager-go/pkg/utils/cache"
)

type counter struct {
	calls map[int]int
	err   error
}

func (c *counter) load(_ context.Context, key int) ([]string, error) {
	c.calls[key]++
	if c.err != nil {
		return nil, c.err
	}
	return make([]string, key), nil
}

func TestGet(t *testing.T) {
	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	cnt := &counter{calls: map[int]int{}}
	c := New(
		WithLoader[int, []string](cnt.load),
		WithExpiration[int, []string](time.Minute),
		WithClock[int, []string](func() time.Time { return now }),
	)
	ctx := context.Background()

	v, err := c.Get(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, v, 3)
	_, err = c.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt.calls[3], "second get is served from the cache")

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt.calls[3], "expired entry is reloaded")

	c.Invalidate(3)
	_, err = c.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, cnt.calls[3])

	_, err = c.Get(ctx, 5)
	require.NoError(t, err)
	c.InvalidateAll()
	_, err = c.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt.calls[5])
}

func TestGet_LoaderError(t *testing.T) {
	errLoad := errors.New("db down")
	cnt := &counter{calls: map[int]int{}, err: errLoad}
	c := New(WithLoader[int, []string](cnt.load))

	_, err := c.Get(context.Background(), 1)
	require.ErrorIs(t, err, errLoad)
	_, err = c.Get(context.Background(), 1)
	require.ErrorIs(t, err, errLoad)
	assert.Equal(t, 2, cnt.calls[1], "errors are not cached")
}

func TestGet_NoLoader(t *testing.T) {
	c := New[string, int]()
	_, err := c.Get(context.Background(), "x")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
