package track

import (
	"context"
	"time"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/utils/cache"
	"github.com/mpapenbr/racenav/pkg/utils/cache/loadercache"
)

// NewCache returns a cache of loaded tracks keyed by file path. Entries
// expire after expiration, zero keeps them until invalidated.
func NewCache(expiration time.Duration, opts ...Option) cache.Cache[string, Track] {
	return loadercache.New(
		loadercache.WithLoader[string, Track](func(ctx context.Context, path string) (*Track, error) {
			return Load(ctx, path, opts...)
		}),
		loadercache.WithExpiration[string, Track](expiration),
		loadercache.WithLogger[string, Track](log.Default().Named("track.cache")),
	)
}
