// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache implements a redis-based store for transcoded images,
// shared by all gateway instances.
package cache

import (
	"context"
	"time"

	"github.com/ballet-proxy/ballet/internal/derrors"
	"github.com/go-redis/redis/v8"
)

// Cache is a Redis-based cache. All keys live under a common prefix.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a new Cache using the given Redis client. Entries expire
// after ttl; a zero ttl means they never expire.
func New(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the value for key, or nil if the key does not exist.
func (c *Cache) Get(ctx context.Context, key string) (value []byte, err error) {
	defer derrors.Wrap(&err, "Get(%q)", key)
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil { // not found
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Put stores data under key.
func (c *Cache) Put(ctx context.Context, key string, data []byte) (err error) {
	defer derrors.Wrap(&err, "Put(%q, %d bytes)", key, len(data))
	return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

// Purge deletes every entry under the cache's prefix.
func (c *Cache) Purge(ctx context.Context) (err error) {
	defer derrors.Wrap(&err, "Purge(%q)", c.prefix)
	iter := c.client.Scan(ctx, 0, c.prefix+"*", int64(scanCount)).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= scanCount {
			if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Unlink(ctx, keys...).Err()
	}
	return nil
}

// The "count" argument to the Redis SCAN command, also used as the batch
// size for deletions in Purge.
// var for testing.
var scanCount = 100
