// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package request decodes the legacy Opera Mini request encoding into a
// canonical Request.
package request

import (
	"context"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ballet-proxy/ballet/internal/derrors"
	"github.com/ballet-proxy/ballet/internal/log"
	"github.com/ballet-proxy/ballet/internal/mangle"
)

// Encoding types carried in the first two bytes of 3.x requests.
const (
	encodingPlain     = 0
	encodingEncrypted = 1
)

// URLs used by devices to test network connectivity. They are answered by
// the gateway itself, never by the renderer.
const (
	// TestURL is the connection test of 1.x and 2.x clients.
	TestURL = "server:test"
	// TestURLv3 is the connection test of 3.x clients.
	TestURLv3 = "server:t0"
)

// BlankURL is used when the request path cannot be parsed.
const BlankURL = "about:blank"

// A Request is one decoded device request. It is owned by the goroutine
// serving the call and discarded with the response.
type Request struct {
	// Fields holds the request pairs by canonical name.
	Fields map[string]string
	// Options holds the pairs of the OptionsStr field by canonical name.
	Options map[string]string
	// Version is the OBML protocol version, 1 to 3.
	Version int
	// Part is the page part requested, 1 when absent.
	Part int
	// URL is the normalized target URL.
	URL string
}

// Field returns the value of the named canonical field.
func (r *Request) Field(name string) string { return r.Fields[name] }

// Option returns the value of the named canonical option.
func (r *Request) Option(name string) string { return r.Options[name] }

// IntOption returns the named option as an integer, or fallback if it is
// absent or not a positive number.
func (r *Request) IntOption(name string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.Options[name]))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// Compression returns the requested compression name as sent by the device.
// It is "none" for connection tests.
func (r *Request) Compression() string { return r.Fields[mangle.Compression] }

// IsConnectionTest reports whether the request is a connection test.
func (r *Request) IsConnectionTest() bool {
	return r.URL == TestURL || r.URL == TestURLv3
}

// Decode parses body into a Request. The only error it returns wraps
// derrors.UnsupportedSecurity, for encrypted requests; every other problem
// is recovered and logged.
func Decode(ctx context.Context, body []byte) (_ *Request, err error) {
	defer derrors.Wrap(&err, "request.Decode(%d bytes)", len(body))

	if len(body) >= 2 {
		switch binary.BigEndian.Uint16(body) {
		case encodingPlain:
			body = body[2:]
		case encodingEncrypted:
			return nil, fmt.Errorf("encrypted 3.x request: %w", derrors.UnsupportedSecurity)
		default:
			// Pre-3.x clients send no encoding prefix.
		}
	}

	r := &Request{
		Fields:  parsePairs(ctx, string(body), "\x00", "=", mangle.Request),
		Options: map[string]string{},
	}
	if opts, ok := r.Fields[mangle.OptionsStr]; ok && opts != "" {
		r.Options = parsePairs(ctx, opts, ";", ":", mangle.Options)
	}
	r.Version = DetectVersion(r.Fields[mangle.BrowserType], r.Fields[mangle.Version])
	r.Part, r.URL = parsePath(ctx, r.Fields[mangle.RawURL])
	r.URL = Normalize(r.URL)
	if r.IsConnectionTest() {
		r.Fields[mangle.Compression] = "none"
	}
	return r, nil
}

// parsePairs splits s on sep into key/value pairs divided by the first kv.
// Pairs without kv are skipped. Keys are canonicalized through dict and the
// last occurrence of a key wins.
func parsePairs(ctx context.Context, s, sep, kv string, dict *mangle.Dictionary) map[string]string {
	m := map[string]string{}
	for _, pair := range strings.Split(strings.ToValidUTF8(s, "�"), sep) {
		key, value, ok := strings.Cut(pair, kv)
		if !ok {
			if pair != "" {
				log.Debugf(ctx, "skipping %q: %v", pair, derrors.MalformedField)
			}
			continue
		}
		m[dict.Canonical(key)] = value
	}
	return m
}

// Browser types reported by the device.
const (
	browserType2x    = 280
	browserType3x    = 285
	browserType3xAlt = 29
)

var versionRE = regexp.MustCompile(`^([^/]+)/(\d+)`)

// DetectVersion derives the protocol version from the browserType and
// version fields. An explicit version of the form "<name>/<n>" with n in
// [0, 3] overrides the browser type. Version 0 is reported as 1.
func DetectVersion(browserType, version string) int {
	v := 1
	if bt, err := strconv.Atoi(strings.TrimSpace(browserType)); err == nil {
		switch bt {
		case browserType3x, browserType3xAlt:
			v = 3
		case browserType2x:
			v = 2
		}
	}
	if m := versionRE.FindStringSubmatch(version); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil && n >= 0 && n <= 3 {
			v = n
		}
	}
	return max(v, 1)
}

var pathRE = regexp.MustCompile(`(?i)^/obml(?:/(\d+))?/(.*)$`)

// parsePath extracts the part number and target from a request path of the
// form /obml[/<part>]/<url>.
func parsePath(ctx context.Context, raw string) (part int, url string) {
	m := pathRE.FindStringSubmatch(raw)
	if m == nil {
		log.Warningf(ctx, "%v: %q", derrors.UnknownRoute, raw)
		return 1, BlankURL
	}
	part = 1
	if m[1] != "" {
		if n, err := strconv.Atoi(m[1]); err == nil {
			part = n
		}
	}
	return part, m[2]
}

var schemeRE = regexp.MustCompile(`^[\w-]+:`)

// Normalize adds an http scheme to url when it has none.
func Normalize(url string) string {
	switch {
	case schemeRE.MatchString(url):
		return url
	case strings.HasPrefix(url, "//"):
		return "http:" + url
	default:
		return "http://" + url
	}
}
