// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obml

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ballet-proxy/ballet/internal/derrors"
	"github.com/google/go-cmp/cmp"
)

func TestRGB565(t *testing.T) {
	for _, test := range []struct {
		in   uint32
		want uint16
	}{
		{0x000000, 0x0000},
		{0xFFFFFF, 0xFFFF},
		{0xFF0000, 0x001F},
		{0x00FF00, 0x07E0},
		{0x0000FF, 0xF800},
	} {
		if got := RGB565(test.in); got != test.want {
			t.Errorf("RGB565(%#06x) = %#04x, want %#04x", test.in, got, test.want)
		}
	}
}

func TestSerializeConnectionAck(t *testing.T) {
	d := New(3)
	d.SetURL("server:t0")
	d.Text("ignored")
	got, err := d.Optimize().Serialize()
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte{0x00, 0x24, 0x00, 0x00, 0x00, 0x20}, bytes.Repeat([]byte{0xFF}, 32)...)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeServerTest(t *testing.T) {
	d := New(1)
	d.SetURL("server:test")
	d.End()
	got, err := d.Optimize().Serialize()
	if err != nil {
		t.Fatal(err)
	}
	prefix := append([]byte{0x00, 0x0b}, "server:test"...)
	prefix = append(prefix, 0, 0, 0, 0, 0)
	if !bytes.HasPrefix(got, prefix) {
		t.Errorf("got prefix % x, want % x", got[:len(prefix)], prefix)
	}
}

func TestSerializeHeader(t *testing.T) {
	for _, test := range []struct {
		version int
		extra   []byte
	}{
		{1, nil},
		{2, []byte{0, 0}},
		{3, []byte{0, 0}},
	} {
		d := New(test.version)
		d.SetURL("a")
		d.Style(TextStyle{}).End()
		got, err := d.Optimize().Serialize()
		if err != nil {
			t.Fatal(err)
		}
		var want []byte
		want = append(want, 0, 0)
		want = append(want, make([]byte, 16)...)
		want = append(want,
			0, 2, // tags
			0, 1, 0, 1, 0, 0,
			0, 1, // styles
			0, 0, 0,
			0xFF, 0xFF)
		want = append(want, test.extra...)
		want = append(want, 0, 3, '1', '/', 'a')
		if !bytes.HasPrefix(got, want) {
			t.Errorf("v%d: got % x, want prefix % x", test.version, got, want)
		}
	}
}

func TestSerializeTags(t *testing.T) {
	for _, test := range []struct {
		name    string
		version int
		build   func(d *Document)
		want    []byte
	}{
		{
			name:    "text",
			version: 2,
			build:   func(d *Document) { d.Text("hi") },
			want:    []byte{'T', 0, 2, 'h', 'i'},
		},
		{
			name:    "background v2",
			version: 2,
			build:   func(d *Document) { d.Background(0xFFFFFF) },
			want:    []byte{'D', 0xFF, 0xFF},
		},
		{
			name:    "background v3",
			version: 3,
			build:   func(d *Document) { d.Background(0x123456) },
			want:    []byte{'D', 0x00, 0x12, 0x34, 0x56},
		},
		{
			name:    "style",
			version: 3,
			build: func(d *Document) {
				d.Style(TextStyle{Bold: true, Italic: true, Align: AlignRight, Color: 0xFF, Pad: 2})
			},
			want: []byte{'S', 0x23, 0, 0, 0, 0xFF, 2},
		},
		{
			name:    "form text v1",
			version: 1,
			build:   func(d *Document) { d.FormText("n", "v", true) },
			want:    []byte{'x', 0, 1, 'n', 0, 1, 'v'},
		},
		{
			name:    "form text v2",
			version: 2,
			build:   func(d *Document) { d.FormText("n", "v", true) },
			want:    []byte{'x', 1, 0, 1, 'n', 0, 1, 'v'},
		},
		{
			name:    "image",
			version: 2,
			build:   func(d *Document) { d.Image(3, 4, []byte{9, 9}) },
			want:    []byte{'I', 0, 3, 0, 4, 0, 2, 0, 0, 9, 9},
		},
		{
			name:    "placeholder",
			version: 2,
			build:   func(d *Document) { d.Placeholder(10, 20) },
			want:    []byte{'J', 0, 10, 0, 20},
		},
		{
			name:    "select",
			version: 2,
			build:   func(d *Document) { d.FormSelectOpen("s", true, 2) },
			want:    []byte{'s', 0, 1, 's', 1, 0, 2},
		},
		{
			name:    "auth code",
			version: 2,
			build:   func(d *Document) { d.AuthCode("c") },
			want:    []byte{'k', 1, 0, 1, 'c'},
		},
		{
			name:    "end",
			version: 1,
			build:   func(d *Document) { d.End() },
			want:    []byte{'Q'},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			d := New(test.version)
			test.build(d)
			got, err := d.Optimize().Serialize()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.HasSuffix(got, test.want) {
				t.Errorf("got % x, want suffix % x", got, test.want)
			}
		})
	}
}

func TestSerializeStyleRef(t *testing.T) {
	d := New(2)
	for i := range 257 {
		d.Style(TextStyle{Color: uint32(i)}).Text("")
	}
	d.Style(TextStyle{Color: 256})
	got, err := d.Optimize().Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{'y', 0x01, 0x00}; !bytes.HasSuffix(got, want) {
		t.Errorf("got suffix % x, want % x", got[len(got)-3:], want)
	}
}

func TestSerializeErrors(t *testing.T) {
	for _, test := range []struct {
		name  string
		build func(d *Document)
		want  error
	}{
		{
			name:  "oversized image",
			build: func(d *Document) { d.Image(1, 1, make([]byte, 70000)) },
			want:  derrors.OversizedImage,
		},
		{
			name:  "long text",
			build: func(d *Document) { d.Text(string(make([]byte, 0x10000))) },
			want:  derrors.TextTooLong,
		},
		{
			name:  "dimension out of range",
			build: func(d *Document) { d.Placeholder(-1, 1) },
			want:  derrors.EncodingError,
		},
		{
			name:  "unknown payload",
			build: func(d *Document) { d.Tag(Text, 3.5) },
			want:  derrors.EncodingError,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			d := New(2)
			test.build(d)
			_, err := d.Optimize().Serialize()
			if !errors.Is(err, test.want) {
				t.Errorf("got error %v, want %v", err, test.want)
			}
		})
	}
}

func TestSerializeHeaderOverflow(t *testing.T) {
	brs := make([]Tag, math.MaxUint16+1)
	for i := range brs {
		brs[i] = Tag{Kind: BR}
	}
	for _, test := range []struct {
		name string
		page *Page
		want error
	}{
		{"too many tags", &Page{version: 2, url: "http://a", tags: brs}, derrors.EncodingError},
		{"too many styles", &Page{version: 2, url: "http://a", styles: math.MaxUint16 + 1}, derrors.EncodingError},
		{"url too long", &Page{version: 2, url: strings.Repeat("a", math.MaxUint16)}, derrors.TextTooLong},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := test.page.Serialize()
			if !errors.Is(err, test.want) {
				t.Fatalf("got error %v, want %v", err, test.want)
			}
			if msg := err.Error(); !strings.Contains(msg, "header") || strings.Contains(msg, "tag 0") {
				t.Errorf("error %q does not blame the header", msg)
			}
		})
	}
}
