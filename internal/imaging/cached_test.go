// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !plan9

package imaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ballet-proxy/ballet/internal/cache"
	"github.com/go-redis/redis/v8"
	"github.com/google/go-cmp/cmp"
	"go.opencensus.io/stats/view"
)

type countingTranscoder struct {
	format Format
	calls  int
	err    error
}

func (c *countingTranscoder) Transcode(ctx context.Context, src Source, w, h int, bg uint32) (Format, []byte, error) {
	c.calls++
	if c.err != nil {
		return 0, nil, c.err
	}
	return c.format, []byte(src.URL), nil
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (brokenStore) Put(context.Context, string, []byte) error   { return errors.New("down") }

func TestCached(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	redisStore := cache.New(redis.NewClient(&redis.Options{Addr: s.Addr()}), "img:", time.Hour)

	for _, test := range []struct {
		name   string
		store  Store
		format Format
		calls  int
	}{
		{"memory png", NewMemory(1 << 20), PNG, 1},
		{"memory jpeg", NewMemory(1 << 20), JPEG, 2},
		{"redis png", redisStore, PNG, 1},
		{"broken store", brokenStore{}, PNG, 3},
	} {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			inner := &countingTranscoder{format: test.format}
			c := NewCached(inner, test.store)
			src := Source{URL: "http://x/" + test.name}
			// JPEG results depend on the background, PNG results do not.
			for _, bg := range []uint32{0xFFFFFF, 0xFFFFFF, 0x000000} {
				f, data, err := c.Transcode(ctx, src, 10, 10, bg)
				if err != nil {
					t.Fatal(err)
				}
				if f != test.format {
					t.Errorf("format = %v, want %v", f, test.format)
				}
				if diff := cmp.Diff([]byte(src.URL), data); diff != "" {
					t.Errorf("mismatch (-want +got):\n%s", diff)
				}
			}
			if inner.calls != test.calls {
				t.Errorf("inner transcoder called %d times, want %d", inner.calls, test.calls)
			}
		})
	}
}

func TestCachedFailureNotStored(t *testing.T) {
	ctx := context.Background()
	inner := &countingTranscoder{err: errors.New("bad")}
	c := NewCached(inner, NewMemory(1<<20))
	for range 2 {
		if _, _, err := c.Transcode(ctx, Source{URL: "u"}, 1, 1, 0); err == nil {
			t.Fatal("got nil error")
		}
	}
	if inner.calls != 2 {
		t.Errorf("inner transcoder called %d times, want 2", inner.calls)
	}
}

func cacheResultCounts(t *testing.T) map[string]int64 {
	t.Helper()
	rows, err := view.RetrieveData(CacheResultCount.Name)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]int64{}
	for _, r := range rows {
		for _, tg := range r.Tags {
			if tg.Key == keyCacheResult {
				got[tg.Value] = r.Data.(*view.CountData).Value
			}
		}
	}
	return got
}

func TestCachedResultCounts(t *testing.T) {
	for _, test := range []struct {
		name  string
		store Store
		want  map[string]int64
	}{
		{"memory", NewMemory(1 << 20), map[string]int64{"miss": 1, "hit": 2}},
		{"broken store", brokenStore{}, map[string]int64{"error": 3}},
	} {
		t.Run(test.name, func(t *testing.T) {
			if err := view.Register(CacheResultCount); err != nil {
				t.Fatal(err)
			}
			defer view.Unregister(CacheResultCount)

			ctx := context.Background()
			c := NewCached(&countingTranscoder{format: PNG}, test.store)
			for range 3 {
				if _, _, err := c.Transcode(ctx, Source{URL: "u"}, 1, 1, 0); err != nil {
					t.Fatal(err)
				}
			}
			if diff := cmp.Diff(test.want, cacheResultCounts(t)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
