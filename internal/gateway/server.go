// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gateway serves OBML pages to Opera Mini 1.x to 3.x clients.
//
// A device posts an encoded request naming a target URL. The gateway
// renders that page, converts it into an OBML document and answers with
// the framed binary page.
package gateway

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ballet-proxy/ballet/internal/derrors"
	"github.com/ballet-proxy/ballet/internal/imaging"
	"github.com/ballet-proxy/ballet/internal/log"
	"github.com/ballet-proxy/ballet/internal/log/stackdriverlogger"
	"github.com/ballet-proxy/ballet/internal/mangle"
	"github.com/ballet-proxy/ballet/internal/obml"
	"github.com/ballet-proxy/ballet/internal/render"
	"github.com/ballet-proxy/ballet/internal/request"
	"github.com/ballet-proxy/ballet/internal/trace"
)

// ServerConfig contains everything needed by a Server.
type ServerConfig struct {
	Renderer   render.Renderer
	Transcoder imaging.Transcoder
	// RenderTimeout bounds the rendering of one page. Zero means no
	// bound beyond the request's own context.
	RenderTimeout time.Duration
	// Defaults holds the device options used when a request omits them.
	Defaults render.Options
	// MaxBodySize limits the size of request bodies read by ServeHTTP.
	MaxBodySize int64
}

// Server handles device requests.
type Server struct {
	renderer      render.Renderer
	transcoder    imaging.Transcoder
	renderTimeout time.Duration
	defaults      render.Options
	maxBodySize   int64
}

// NewServer creates a new Server for the given configuration.
func NewServer(scfg ServerConfig) (*Server, error) {
	if scfg.Renderer == nil {
		return nil, fmt.Errorf("gateway.NewServer: no renderer: %w", derrors.InvalidArgument)
	}
	if scfg.Transcoder == nil {
		scfg.Transcoder = imaging.NewStandard()
	}
	if scfg.MaxBodySize <= 0 {
		scfg.MaxBodySize = 10 << 20
	}
	return &Server{
		renderer:      scfg.Renderer,
		transcoder:    scfg.Transcoder,
		renderTimeout: scfg.RenderTimeout,
		defaults:      scfg.Defaults.WithDefaults(),
		maxBodySize:   scfg.MaxBodySize,
	}, nil
}

// Response is the answer to one device request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Handle decodes a raw request body and produces the response for it.
// Failures to render the target page are reported to the device as an
// error page with status 200.
func (s *Server) Handle(ctx context.Context, body []byte) *Response {
	ctx, span := trace.StartSpan(ctx, "gateway.Handle")
	defer span.End()

	req, err := request.Decode(ctx, body)
	if err != nil {
		status := derrors.ToStatus(err)
		if !errors.Is(err, derrors.UnsupportedSecurity) {
			status = http.StatusBadRequest
		}
		log.Errorf(ctx, "%v", err)
		recordRequest(ctx, 0, "", outcomeRejected)
		return &Response{Status: status, Header: http.Header{}}
	}
	ctx = stackdriverlogger.NewContextWithLabel(ctx, "obml_version", strconv.Itoa(req.Version))
	log.Infof(ctx, "Request: %s (v%d, part %d)", req.URL, req.Version, req.Part)

	compression := obml.ParseCompression(req.Compression())
	var (
		doc     *obml.Document
		outcome = outcomePage
	)
	if req.IsConnectionTest() {
		doc = connectionTestPage(req)
		outcome = outcomeConnectionTest
	} else {
		doc, err = s.renderPage(ctx, req)
		if err != nil {
			log.Warningf(ctx, "rendering %s: %v", req.URL, err)
			doc = errorPage(req, err.Error())
			outcome = outcomeError
		}
	}

	data, err := obml.Build(doc, compression)
	if err != nil {
		log.Errorf(ctx, "building %s: %v", req.URL, err)
		data, err = obml.Build(errorPage(req, err.Error()), compression)
		outcome = outcomeError
		if err != nil {
			log.Errorf(ctx, "building error page for %s: %v", req.URL, err)
			recordRequest(ctx, req.Version, compression.String(), outcomeRejected)
			return &Response{Status: http.StatusInternalServerError, Header: http.Header{}}
		}
	}
	recordRequest(ctx, req.Version, compression.String(), outcome)
	span.Annotate(outcome)

	h := http.Header{}
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.Itoa(len(data)))
	return &Response{Status: http.StatusOK, Header: h, Body: data}
}

// renderPage renders the target of req into a document.
func (s *Server) renderPage(ctx context.Context, req *request.Request) (*obml.Document, error) {
	opts := s.options(req)
	if s.renderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.renderTimeout)
		defer cancel()
	}
	start := time.Now()
	res, err := s.renderer.Render(ctx, req.URL, opts)
	recordRenderLatency(ctx, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	doc := obml.New(req.Version)
	s.convert(ctx, doc, res, opts.Width)
	return doc, nil
}

// options returns the device options of req.
func (s *Server) options(req *request.Request) render.Options {
	opts := render.Options{
		Width:     req.IntOption(mangle.Width, s.defaults.Width),
		Height:    req.IntOption(mangle.Height, s.defaults.Height),
		UserAgent: req.Field(mangle.UserAgent),
		Language:  req.Field(mangle.Language),
	}
	if opts.UserAgent == "" {
		opts.UserAgent = s.defaults.UserAgent
	}
	if opts.Language == "" {
		opts.Language = req.Field(mangle.DeviceLanguage)
	}
	if opts.Language == "" {
		opts.Language = s.defaults.Language
	}
	return opts
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		log.Infof(ctx, "%s %s: ignoring non-POST request", r.Method, r.URL.Path)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	body, status := s.readBody(w, r)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	resp := s.Handle(ctx, body)
	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil {
		log.Debugf(ctx, "writing response: %v", err)
	}
}

// readBody reads the request body, inflating it when the client sent a
// Content-Encoding. The limit applies to both the wire and the inflated
// bytes. It returns the HTTP status to answer with when the body is
// unusable.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, int) {
	ctx := r.Context()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, http.StatusRequestEntityTooLarge
		}
		log.Errorf(ctx, "reading request body: %v", err)
		return nil, http.StatusBadRequest
	}
	var zr io.ReadCloser
	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return raw, http.StatusOK
	case "gzip", "x-gzip":
		zr, err = gzip.NewReader(bytes.NewReader(raw))
	case "deflate":
		// HTTP deflate is zlib-wrapped, but some clients send a raw stream.
		zr, err = zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			zr, err = flate.NewReader(bytes.NewReader(raw)), nil
		}
	default:
		log.Infof(ctx, "unsupported Content-Encoding %q", enc)
		return nil, http.StatusUnsupportedMediaType
	}
	if err != nil {
		log.Infof(ctx, "inflating request body: %v", err)
		return nil, http.StatusBadRequest
	}
	defer zr.Close()
	body, err := io.ReadAll(io.LimitReader(zr, s.maxBodySize+1))
	if err != nil {
		log.Infof(ctx, "inflating request body: %v", err)
		return nil, http.StatusBadRequest
	}
	if int64(len(body)) > s.maxBodySize {
		return nil, http.StatusRequestEntityTooLarge
	}
	return body, http.StatusOK
}

// Install registers the gateway routes using the given handler
// registration func.
func (s *Server) Install(handle func(string, http.Handler)) {
	handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	}))
	// Devices post to the gateway root or to an /obml/ path; the target is
	// named in the request body.
	handle("/obml/", s)
	handle("/", s)
}
