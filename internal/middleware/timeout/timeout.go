// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package timeout bounds the total time spent on a gateway request.
package timeout

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ballet-proxy/ballet/internal/derrors"
)

// ErrRequestTimeout is the cause attached to the context of a request whose
// deadline has passed.
var ErrRequestTimeout = fmt.Errorf("request deadline exceeded: %w", derrors.Unavailable)

// Timeout returns a new Middleware that times out each request after the given
// duration. A non-positive duration leaves requests unbounded.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		if d <= 0 {
			return h
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeoutCause(r.Context(), d, ErrRequestTimeout)
			defer cancel()
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
