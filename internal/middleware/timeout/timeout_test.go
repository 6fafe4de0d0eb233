// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package timeout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTimeout(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			if errors.Is(context.Cause(r.Context()), ErrRequestTimeout) {
				http.Error(w, "timed out", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "bad", http.StatusInternalServerError)
			return
		case <-time.After(20 * time.Millisecond):
		}
		fmt.Fprintln(w, "Hello!")
	})

	mux := http.NewServeMux()
	mux.Handle("/A", Timeout(5*time.Second)(handler))
	mux.Handle("/B", Timeout(time.Millisecond)(handler))
	mux.Handle("/C", Timeout(0)(handler))

	ts := httptest.NewServer(mux)
	defer ts.Close()

	for _, test := range []struct {
		label      string
		path       string
		wantStatus int
	}{
		{"normal timed request", "/A", http.StatusOK},
		{"timed-out request", "/B", http.StatusServiceUnavailable},
		{"request with no timeout", "/C", http.StatusOK},
	} {
		t.Run(test.label, func(t *testing.T) {
			resp, err := ts.Client().Get(ts.URL + test.path)
			if err != nil {
				t.Fatalf("GET %s got error %v, want nil", test.path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != test.wantStatus {
				t.Errorf("GET %s: got status %d, want %d", test.path, resp.StatusCode, test.wantStatus)
			}
		})
	}
}
