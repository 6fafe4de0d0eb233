// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dcensus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"go.opencensus.io/trace"
	"github.com/ballet-proxy/ballet/internal/log"
)

// debugTraceExporter wraps a trace exporter and logs the span data of any
// span whose export fails.
type debugTraceExporter struct {
	exp trace.Exporter
	mu  sync.Mutex
	err error
}

// onError is called by the wrapped exporter while d.mu is held in
// ExportSpan, or from its bundler goroutine.
func (d *debugTraceExporter) onError(err error) {
	log.Debugf(context.Background(), "trace exporter: onError called with %v", err)
	d.err = err
}

// ExportSpan implements the trace.Exporter interface.
func (d *debugTraceExporter) ExportSpan(s *trace.SpanData) {
	ctx := context.Background()
	d.mu.Lock()
	d.exp.ExportSpan(s)
	err := d.err
	d.err = nil
	d.mu.Unlock()
	if err != nil {
		log.Warningf(ctx, "trace exporter: %v", err)
		log.Debugf(ctx, "trace exporter SpanData:\n%s", dumpSpanData(s))
	}
}

func dumpSpanData(s *trace.SpanData) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Name: %q\n", s.Name)
	fmt.Fprintf(&buf, "Duration: %s\n", s.EndTime.Sub(s.StartTime))
	dumpAttributes(&buf, s.Attributes)
	for _, a := range s.Annotations {
		fmt.Fprintf(&buf, "  annotation: %q\n", a.Message)
		dumpAttributes(&buf, a.Attributes)
	}
	fmt.Fprintf(&buf, "Status: %d %q\n", s.Status.Code, s.Status.Message)
	return buf.String()
}

// dumpAttributes writes m in key order.
func dumpAttributes(w io.Writer, m map[string]any) {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		fmt.Fprintf(w, "  %q: %#v\n", k, m[k])
	}
}
