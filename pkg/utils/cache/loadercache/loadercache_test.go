//nolint:thelper,whitespace,lll,funlen // ok for tests
package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	gta "gotest.tools/v3/assert"

	"github.com/mpapenbr/racenav/pkg/utils/cache"
)

func TestLoaderCache(t *testing.T) {
	ctx := context.Background()
	loads := 0
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(
		WithLoader[string, int](func(_ context.Context, key string) (*int, error) {
			loads++
			if key == "bad" {
				return nil, errors.New("boom")
			}
			v := len(key)
			return &v, nil
		}),
		WithExpiration[string, int](time.Minute),
		WithClock[string, int](func() time.Time { return now }),
	)

	v, err := c.Get(ctx, "abc")
	gta.NilError(t, err)
	assert.Equal(t, 3, *v)
	_, _ = c.Get(ctx, "abc")
	assert.Equal(t, 1, loads)

	now = now.Add(2 * time.Minute)
	_, _ = c.Get(ctx, "abc")
	assert.Equal(t, 2, loads)

	c.Invalidate(ctx, "abc")
	assert.Equal(t, 0, c.Len())
	_, _ = c.Get(ctx, "abc")
	assert.Equal(t, 3, loads)

	_, err = c.Get(ctx, "bad")
	assert.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestWithoutLoader(t *testing.T) {
	c := New[string, int]()
	_, err := c.Get(context.Background(), "x")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestNoExpiration(t *testing.T) {
	ctx := context.Background()
	loads := 0
	now := time.Now()
	c := New(
		WithLoader[int, int](func(_ context.Context, key int) (*int, error) {
			loads++
			return &key, nil
		}),
		WithExpiration[int, int](0),
		WithClock[int, int](func() time.Time { return now }),
	)
	_, _ = c.Get(ctx, 1)
	now = now.Add(24 * time.Hour)
	_, _ = c.Get(ctx, 1)
	assert.Equal(t, 1, loads)
}
