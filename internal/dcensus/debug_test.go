// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dcensus

import (
	"errors"
	"strings"
	"testing"

	"go.opencensus.io/trace"
)

type failingExporter struct {
	onError func(error)
	spans   int
}

func (f *failingExporter) ExportSpan(s *trace.SpanData) {
	f.spans++
	if s.Name == "bad" {
		f.onError(errors.New("export failed"))
	}
}

func TestDebugTraceExporter(t *testing.T) {
	d := &debugTraceExporter{}
	fe := &failingExporter{onError: d.onError}
	d.exp = fe

	d.ExportSpan(&trace.SpanData{Name: "bad"})
	if d.err != nil {
		t.Errorf("error not cleared after export: %v", d.err)
	}
	d.ExportSpan(&trace.SpanData{Name: "good"})
	if fe.spans != 2 {
		t.Errorf("exported %d spans, want 2", fe.spans)
	}
}

func TestDumpSpanData(t *testing.T) {
	s := &trace.SpanData{
		Name:       "gateway.Handle",
		Attributes: map[string]any{"version": int64(3)},
		Annotations: []trace.Annotation{
			{Message: "rendered", Attributes: map[string]any{"url": "http://example.com/"}},
		},
		Status: trace.Status{Message: "ok"},
	}
	got := dumpSpanData(s)
	for _, want := range []string{
		`Name: "gateway.Handle"`,
		`"version": 3`,
		`annotation: "rendered"`,
		`"url": "http://example.com/"`,
		`Status: 0 "ok"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("dump missing %q:\n%s", want, got)
		}
	}
}

func TestDumpAttributesSorted(t *testing.T) {
	var buf strings.Builder
	dumpAttributes(&buf, map[string]any{"b": 2, "a": "x", "c": true})
	want := "  \"a\": \"x\"\n  \"b\": 2\n  \"c\": true\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNewServer(t *testing.T) {
	if _, err := NewServer(); err != nil {
		t.Fatal(err)
	}
}
