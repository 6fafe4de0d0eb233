// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lru provides an in-process LRU cache bounded by the total cost
// of its entries.
package lru

import (
	"container/list"
	"fmt"
	"sync"
)

// Cache is an LRU cache. It is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	maxCost int64
	cost    func(V) int64
	total   int64
	order   *list.List // front is most recently used
	entries map[K]*list.Element
}

type entry[K comparable, V any] struct {
	k    K
	v    V
	cost int64
}

// New returns a new Cache holding entries up to a total cost of maxCost.
// A nil cost function gives every entry a cost of 1. maxCost must be
// positive or New will panic.
func New[K comparable, V any](maxCost int64, cost func(V) int64) *Cache[K, V] {
	if maxCost < 1 {
		panic(fmt.Errorf("lru.New called with non-positive cost limit %v", maxCost))
	}
	if cost == nil {
		cost = func(V) int64 { return 1 }
	}
	return &Cache[K, V]{
		maxCost: maxCost,
		cost:    cost,
		order:   list.New(),
		entries: map[K]*list.Element{},
	}
}

// Get gets the entry for k in the Cache.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(e)
	return e.Value.(*entry[K, V]).v, true
}

// Put puts in an entry for k, v in Cache, evicting least recently used
// entries until the total cost fits. An entry costing more than the limit
// is not stored.
func (c *Cache[K, V]) Put(k K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.cost(v)
	if e, ok := c.entries[k]; ok {
		c.remove(e)
	}
	if n > c.maxCost {
		return
	}
	for c.total+n > c.maxCost {
		c.remove(c.order.Back())
	}
	c.entries[k] = c.order.PushFront(&entry[K, V]{k: k, v: v, cost: n})
	c.total += n
}

func (c *Cache[K, V]) remove(e *list.Element) {
	en := c.order.Remove(e).(*entry[K, V])
	delete(c.entries, en.k)
	c.total -= en.cost
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cost returns the total cost of the entries.
func (c *Cache[K, V]) Cost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
