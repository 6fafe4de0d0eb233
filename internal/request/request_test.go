// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ballet-proxy/ballet/internal/derrors"
	"github.com/ballet-proxy/ballet/internal/mangle"
	"github.com/google/go-cmp/cmp"
)

// encode builds a request body from key=value pairs with the given two-byte
// encoding prefix. A nil prefix produces a legacy body.
func encode(prefix []byte, pairs ...string) []byte {
	return append(prefix, strings.Join(pairs, "\x00")...)
}

var plain = []byte{0, 0}

func TestDecode(t *testing.T) {
	ctx := context.Background()
	for _, test := range []struct {
		name string
		body []byte
		want *Request
	}{
		{
			name: "3.x unencrypted",
			body: encode(plain, "u=/obml/example.com", "v=x/3", "d=w:176;h:208;zz:1", "e=gzip"),
			want: &Request{
				Fields: map[string]string{
					mangle.RawURL:      "/obml/example.com",
					mangle.Version:     "x/3",
					mangle.OptionsStr:  "w:176;h:208;zz:1",
					mangle.Compression: "gzip",
				},
				Options: map[string]string{
					mangle.Width:  "176",
					mangle.Height: "208",
					"unk_zz":      "1",
				},
				Version: 3,
				Part:    1,
				URL:     "http://example.com",
			},
		},
		{
			name: "1.x legacy keys without prefix",
			body: encode(nil, "x-u=/obml/2/http://a.b/c?d=e", "x-o=13", "x-e=def", "garbage", "x-new=1"),
			want: &Request{
				Fields: map[string]string{
					mangle.RawURL:      "/obml/2/http://a.b/c?d=e",
					mangle.BrowserType: "13",
					mangle.Compression: "def",
					"unk_x-new":        "1",
				},
				Options: map[string]string{},
				Version: 1,
				Part:    2,
				URL:     "http://a.b/c?d=e",
			},
		},
		{
			name: "last duplicate wins across generations",
			body: encode(plain, "u=/obml/first", "x-u=/obml/second"),
			want: &Request{
				Fields:  map[string]string{mangle.RawURL: "/obml/second"},
				Options: map[string]string{},
				Version: 1,
				Part:    1,
				URL:     "http://second",
			},
		},
		{
			name: "value keeps later equals signs",
			body: encode(plain, "u=/obml/x.org/?a=b=c", "o=280"),
			want: &Request{
				Fields: map[string]string{
					mangle.RawURL:      "/obml/x.org/?a=b=c",
					mangle.BrowserType: "280",
				},
				Options: map[string]string{},
				Version: 2,
				Part:    1,
				URL:     "http://x.org/?a=b=c",
			},
		},
		{
			name: "unknown route",
			body: encode(plain, "u=example.com"),
			want: &Request{
				Fields:  map[string]string{mangle.RawURL: "example.com"},
				Options: map[string]string{},
				Version: 1,
				Part:    1,
				URL:     BlankURL,
			},
		},
		{
			name: "connection test forces no compression",
			body: encode(plain, "u=/obml/server:t0", "o=285", "e=gzip"),
			want: &Request{
				Fields: map[string]string{
					mangle.RawURL:      "/obml/server:t0",
					mangle.BrowserType: "285",
					mangle.Compression: "none",
				},
				Options: map[string]string{},
				Version: 3,
				Part:    1,
				URL:     TestURLv3,
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := Decode(ctx, test.body)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeEncrypted(t *testing.T) {
	_, err := Decode(context.Background(), encode([]byte{0, 1}, "u=/obml/example.com"))
	if !errors.Is(err, derrors.UnsupportedSecurity) {
		t.Errorf("got %v, want UnsupportedSecurity", err)
	}
	if got := derrors.ToStatus(err); got != 403 {
		t.Errorf("ToStatus = %d, want 403", got)
	}
}

func TestDecodeShortBodies(t *testing.T) {
	for _, body := range [][]byte{nil, {}, {0}, {0, 0}} {
		r, err := Decode(context.Background(), body)
		if err != nil {
			t.Fatalf("Decode(%v): %v", body, err)
		}
		if r.URL != BlankURL || r.Version != 1 || r.Part != 1 {
			t.Errorf("Decode(%v) = %+v, want blank v1 request", body, r)
		}
	}
}

func TestDetectVersion(t *testing.T) {
	for _, test := range []struct {
		browserType, version string
		want                 int
	}{
		{"", "", 1},
		{"13", "", 1},
		{"280", "", 2},
		{"285", "", 3},
		{"29", "", 3},
		{"285", "Opera Mini/2", 2},
		{"", "x/3", 3},
		{"280", "x/0", 1},
		{"285", "x/4", 3},
		{"", "x/12", 1},
		{"", "/3", 1},
		{"", "x/03", 3},
		{"abc", "x3", 1},
	} {
		if got := DetectVersion(test.browserType, test.version); got != test.want {
			t.Errorf("DetectVersion(%q, %q) = %d, want %d", test.browserType, test.version, got, test.want)
		}
	}
}

func TestParsePath(t *testing.T) {
	ctx := context.Background()
	for _, test := range []struct {
		raw      string
		wantPart int
		wantURL  string
	}{
		{"/obml/example.com", 1, "example.com"},
		{"/OBML/3/example.com/a", 3, "example.com/a"},
		{"/obml/123", 1, "123"},
		{"/obml/", 1, ""},
		{"/obml", 1, BlankURL},
		{"/other/example.com", 1, BlankURL},
		{"", 1, BlankURL},
	} {
		part, url := parsePath(ctx, test.raw)
		if part != test.wantPart || url != test.wantURL {
			t.Errorf("parsePath(%q) = %d, %q, want %d, %q", test.raw, part, url, test.wantPart, test.wantURL)
		}
	}
}

func TestNormalize(t *testing.T) {
	for in, want := range map[string]string{
		"example.com":         "http://example.com",
		"//example.com/x":     "http://example.com/x",
		"https://example.com": "https://example.com",
		"server:test":         "server:test",
		"about:blank":         "about:blank",
		"my-scheme:foo":       "my-scheme:foo",
		"":                    "http://",
	} {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIntOption(t *testing.T) {
	r := &Request{Options: map[string]string{mangle.Width: "176", mangle.Height: "x"}}
	if got := r.IntOption(mangle.Width, 240); got != 176 {
		t.Errorf("IntOption(width) = %d, want 176", got)
	}
	if got := r.IntOption(mangle.Height, 320); got != 320 {
		t.Errorf("IntOption(height) = %d, want fallback 320", got)
	}
	if got := r.IntOption(mangle.Colors, 16); got != 16 {
		t.Errorf("IntOption(colors) = %d, want fallback 16", got)
	}
}
