// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package middleware

import (
	"net/http"
	"slices"
)

const maxURILength = 1000

// AcceptRequests serves 405 (Method Not Allowed) for any method not on the
// given list, 414 (Request URI Too Long) for any URI that exceeds
// maxURILength and 413 (Request Entity Too Large) for a declared body
// larger than maxBody. Bodies of unknown length are cut off at maxBody.
// A maxBody of zero or less disables the body check.
func AcceptRequests(maxBody int64, methods ...string) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.URL.String()) >= maxURILength {
				http.Error(w, http.StatusText(http.StatusRequestURITooLong), http.StatusRequestURITooLong)
				return
			}
			if !slices.Contains(methods, r.Method) {
				http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
				return
			}
			if maxBody > 0 {
				if r.ContentLength > maxBody {
					http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, maxBody)
			}
			h.ServeHTTP(w, r)
		})
	}
}
