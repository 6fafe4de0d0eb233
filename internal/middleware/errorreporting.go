// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package middleware

import (
	"fmt"
	"net/http"

	"cloud.google.com/go/errorreporting"
	"github.com/ballet-proxy/ballet/internal/derrors"
)

// ErrorReporting returns a middleware that reports any server errors using the
// report func.
func ErrorReporting(report func(errorreporting.Entry)) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w2 := &responseWriter{ResponseWriter: w}
			h.ServeHTTP(w2, r)
			if !reportable(w2.status) {
				return
			}
			report(errorreporting.Entry{
				Error: fmt.Errorf("handler for %q returned status code %d", r.URL.Path, w2.status),
				Req:   r,
			})
		})
	}
}

// reportable reports whether a response status indicates a server fault
// worth reporting. Unavailable upstreams and gateway timeouts are expected
// under load and are not reported.
func reportable(status int) bool {
	switch {
	case status < 500:
		return false
	case status == derrors.ToStatus(derrors.Unavailable):
		return false
	case status == http.StatusGatewayTimeout:
		return false
	}
	return status < 600
}
