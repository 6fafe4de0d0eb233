// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package breaker guards calls to an upstream with a circuit breaker.
//
// The breaker is Green while the upstream is healthy and calls pass. It
// turns Red when too many recent calls failed; calls are then refused
// without reaching the upstream. After a timeout it turns Yellow and lets
// calls through on probation: enough consecutive successes make it Green
// again, a single failure sends it back to Red with a longer timeout.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ballet-proxy/ballet/internal/derrors"
)

// For testing.
var timeNow = time.Now

// numBuckets is the number of slots in the sliding failure window.
const numBuckets = 8

// State is the state of a Breaker.
type State int

const (
	Red State = iota
	Yellow
	Green
)

func (s State) String() string {
	switch s {
	case Red:
		return "red"
	case Yellow:
		return "yellow"
	case Green:
		return "green"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrOpen is returned by Do when the breaker refuses a call.
var ErrOpen = fmt.Errorf("circuit breaker is red: %w", derrors.Unavailable)

// Config holds the tuning of a Breaker.
type Config struct {
	// FailsToRed is the number of failures within Window that must be
	// exceeded before a Green breaker can turn Red.
	FailsToRed int
	// FailureThreshold is the failure ratio within Window that must be
	// exceeded before a Green breaker turns Red.
	FailureThreshold float64
	// Window is the length of the sliding window of calls considered while
	// Green.
	Window time.Duration
	// MinTimeout and MaxTimeout bound how long the breaker stays Red. The
	// timeout doubles on every failed probation.
	MinTimeout, MaxTimeout time.Duration
	// SuccsToGreen is the number of consecutive successes that turn a
	// Yellow breaker Green.
	SuccsToGreen int
}

// DefaultConfig suits a page renderer fetching from arbitrary hosts.
var DefaultConfig = Config{
	FailsToRed:       10,
	FailureThreshold: 0.5,
	Window:           30 * time.Second,
	MinTimeout:       10 * time.Second,
	MaxTimeout:       5 * time.Minute,
	SuccsToGreen:     5,
}

func (c Config) validate() error {
	switch {
	case c.FailsToRed <= 0:
		return errors.New("FailsToRed must be positive")
	case c.FailureThreshold <= 0, c.FailureThreshold > 1:
		return errors.New("FailureThreshold must be in (0, 1]")
	case c.Window <= 0:
		return errors.New("Window must be positive")
	case c.MinTimeout <= 0:
		return errors.New("MinTimeout must be positive")
	case c.MaxTimeout < c.MinTimeout:
		return errors.New("MaxTimeout must not be less than MinTimeout")
	case c.SuccsToGreen <= 0:
		return errors.New("SuccsToGreen must be positive")
	}
	return nil
}

// A Breaker is safe for concurrent use.
type Breaker struct {
	config Config

	mu      sync.Mutex
	state   State
	window  window
	streak  int // consecutive successes
	timeout time.Duration
	last    time.Time // time of the last recorded call or state change
}

// New returns a Green breaker.
func New(config Config) (*Breaker, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("breaker.New: %v: %w", err, derrors.InvalidArgument)
	}
	return &Breaker{
		config:  config,
		state:   Green,
		window:  window{slot: config.Window / numBuckets},
		timeout: config.MinTimeout,
		last:    timeNow(),
	}, nil
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// current applies an elapsed Red timeout. b.mu must be held.
func (b *Breaker) current() State {
	if b.state == Red && timeNow().After(b.last.Add(b.timeout)) {
		b.state = Yellow
	}
	return b.state
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by Record.
func (b *Breaker) Allow() bool {
	return b.State() != Red
}

// Record registers the outcome of an allowed call.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := timeNow()
	if !now.Before(b.last) {
		b.window.advance(now.Sub(b.last))
		b.last = now
	}
	if success {
		b.succeeded()
	} else {
		b.failed()
	}
}

// Do calls fn if the breaker allows it and records the outcome. Errors for
// which failure reports false count as successes. It returns ErrOpen
// without calling fn when the breaker is Red.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error, failure func(error) bool) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn(ctx)
	b.Record(err == nil || !failure(err))
	return err
}

func (b *Breaker) succeeded() {
	b.window.cur().successes++
	b.streak++
	if b.current() == Yellow && b.streak >= b.config.SuccsToGreen {
		b.state = Green
		b.timeout = b.config.MinTimeout
		b.window.reset()
	}
}

func (b *Breaker) failed() {
	b.window.cur().failures++
	b.streak = 0
	switch b.current() {
	case Yellow:
		b.timeout = min(2*b.timeout, b.config.MaxTimeout)
		b.state = Red
	case Green:
		s, f := b.window.totals()
		if f <= b.config.FailsToRed {
			return
		}
		if float64(f)/float64(s+f) > b.config.FailureThreshold {
			b.state = Red
		}
	}
}

// window is a ring of counters covering the last numBuckets slots.
type window struct {
	slot    time.Duration
	buckets [numBuckets]bucket
	pos     int
}

type bucket struct {
	successes, failures int
}

func (w *window) cur() *bucket { return &w.buckets[w.pos] }

// advance moves the window forward by the slots covered by d.
func (w *window) advance(d time.Duration) {
	n := int(d / w.slot)
	if n >= numBuckets {
		w.reset()
		return
	}
	for range n {
		w.pos = (w.pos + 1) % numBuckets
		w.buckets[w.pos] = bucket{}
	}
}

func (w *window) totals() (successes, failures int) {
	for _, b := range w.buckets {
		successes += b.successes
		failures += b.failures
	}
	return successes, failures
}

func (w *window) reset() {
	w.buckets = [numBuckets]bucket{}
	w.pos = 0
}
