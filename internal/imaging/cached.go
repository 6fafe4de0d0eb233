// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imaging

import (
	"context"

	"github.com/ballet-proxy/ballet/internal/log"
	"github.com/ballet-proxy/ballet/internal/lru"
	"github.com/ballet-proxy/ballet/internal/trace"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// A Store holds transcoded images by key. Get returns nil, nil for a
// missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Cached is a Transcoder that remembers the results of another one.
// Store errors are logged and otherwise ignored.
type Cached struct {
	t     Transcoder
	store Store
}

// NewCached returns a Transcoder that caches the results of t in store.
func NewCached(t Transcoder, store Store) *Cached {
	return &Cached{t: t, store: store}
}

// Transcode implements Transcoder. The PNG key is tried before the JPEG
// key, since PNG output does not depend on the background.
func (c *Cached) Transcode(ctx context.Context, src Source, width, height int, bg uint32) (Format, []byte, error) {
	ctx, span := trace.StartSpan(ctx, "imaging.Cached.Transcode")
	defer span.End()

	f, data, result := c.lookup(ctx, src, width, height, bg)
	recordCacheResult(ctx, result)
	if data != nil {
		span.Annotate(result)
		return f, data, nil
	}

	f, data, err := c.t.Transcode(ctx, src, width, height, bg)
	if err != nil {
		return 0, nil, err
	}
	if err := c.store.Put(ctx, Key(f, src.URL, width, height, bg), data); err != nil {
		log.Warningf(ctx, "image cache: %v", err)
	}
	return f, data, nil
}

// lookup returns the cached image, if any, and the result of the lookup:
// "hit", "miss" or "error".
func (c *Cached) lookup(ctx context.Context, src Source, width, height int, bg uint32) (Format, []byte, string) {
	for _, f := range []Format{PNG, JPEG} {
		data, err := c.store.Get(ctx, Key(f, src.URL, width, height, bg))
		if err != nil {
			log.Warningf(ctx, "image cache: %v", err)
			return 0, nil, "error"
		}
		if data != nil {
			return f, data, "hit"
		}
	}
	return 0, nil, "miss"
}

// Memory is an in-process Store.
type Memory struct {
	c *lru.Cache[string, []byte]
}

// NewMemory returns a Store holding up to maxBytes of image data.
func NewMemory(maxBytes int64) *Memory {
	return &Memory{c: lru.New[string](maxBytes, func(b []byte) int64 { return int64(len(b)) })}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	b, _ := m.c.Get(key)
	return b, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.c.Put(key, data)
	return nil
}

var (
	keyCacheResult = tag.MustNewKey("imaging.cache_result")
	cacheResults   = stats.Int64(
		"ballet/imaging/cache_result_count",
		"The result of an image cache lookup.",
		stats.UnitDimensionless,
	)
	// CacheResultCount is a counter of image cache lookups, by result.
	CacheResultCount = &view.View{
		Name:        "ballet/imaging/cache_result_count",
		Measure:     cacheResults,
		Aggregation: view.Count(),
		Description: "image cache lookups, by hit, miss or error",
		TagKeys:     []tag.Key{keyCacheResult},
	}
)

func recordCacheResult(ctx context.Context, result string) {
	stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(keyCacheResult, result),
	}, cacheResults.M(1))
}
