// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	// Decoders for image sizes.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/ballet-proxy/ballet/internal/breaker"
	"github.com/ballet-proxy/ballet/internal/derrors"
	"github.com/ballet-proxy/ballet/internal/log"
	"github.com/ballet-proxy/ballet/internal/trace"
	"go.opencensus.io/plugin/ochttp"
	"golang.org/x/net/context/ctxhttp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
)

// HTMLConfig configures an HTML renderer.
type HTMLConfig struct {
	// Client fetches pages and images. If nil, a client instrumented with
	// OpenCensus is used.
	Client *http.Client
	// Breaker, if set, sheds page loads while upstream fetches keep
	// failing.
	Breaker *breaker.Breaker
	// MaxPageBytes and MaxImageBytes limit how much of a response is read.
	MaxPageBytes, MaxImageBytes int64
	// ImageFetchers bounds the number of concurrent image fetches.
	ImageFetchers int
}

// HTML renders pages from their markup, without scripts or style sheets.
type HTML struct {
	cfg HTMLConfig
}

// NewHTML returns an HTML renderer.
func NewHTML(cfg HTMLConfig) *HTML {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Transport: &ochttp.Transport{}}
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = 4 << 20
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 2 << 20
	}
	if cfg.ImageFetchers <= 0 {
		cfg.ImageFetchers = 8
	}
	return &HTML{cfg: cfg}
}

// loadError is an error loading a page. Its message is shown to the user.
type loadError struct {
	err error
	// transient errors count against the circuit breaker.
	transient bool
}

func (e *loadError) Error() string { return e.err.Error() }

func (e *loadError) Unwrap() []error { return []error{e.err, derrors.RenderFailure} }

func isTransient(err error) bool {
	var le *loadError
	return errors.As(err, &le) && le.transient
}

// Render implements Renderer.
func (h *HTML) Render(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	ctx, span := trace.StartSpan(ctx, "render.HTML.Render")
	defer span.End()

	opts = opts.WithDefaults()
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &loadError{err: fmt.Errorf("unsupported URL %q: %w", rawURL, derrors.InvalidArgument)}
	}
	if h.cfg.Breaker == nil {
		return h.load(ctx, u, opts)
	}
	var res *Result
	err = h.cfg.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = h.load(ctx, u, opts)
		return err
	}, isTransient)
	if errors.Is(err, breaker.ErrOpen) {
		return nil, &loadError{err: err}
	}
	return res, err
}

func (h *HTML) load(ctx context.Context, u *url.URL, opts Options) (*Result, error) {
	lang := deviceLanguage(opts.Language)
	resp, err := h.get(ctx, u.String(), opts, lang)
	if err != nil {
		return nil, &loadError{err: err, transient: true}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &loadError{
			err:       derrors.FromStatus(resp.StatusCode, "%s returned %s", u, resp.Status),
			transient: resp.StatusCode >= 500,
		}
	}
	final := resp.Request.URL

	ctype := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ctype)
	if strings.HasPrefix(mediaType, "image/") {
		// A bare image is shown as a page holding only that image.
		data, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxImageBytes))
		if err != nil {
			return nil, &loadError{err: err, transient: true}
		}
		tokens := []Token{{Kind: Image, Image: ImageRef{Src: final.String()}}}
		res := &Result{URL: final.String(), Resources: map[string][]byte{final.String(): data}}
		fillSizes(tokens, res.Resources)
		res.Tokens = slices.Values(tokens)
		return res, nil
	}

	r, err := charset.NewReader(io.LimitReader(resp.Body, h.cfg.MaxPageBytes), ctype)
	if err != nil {
		return nil, &loadError{err: fmt.Errorf("decoding %s: %v", u, err)}
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, &loadError{err: fmt.Errorf("parsing %s: %v", u, err)}
	}
	w := newWalker(final, lang)
	if base := find(doc, atom.Base); base != nil {
		if b := attr(base, "href"); b != "" {
			if bu, err := final.Parse(b); err == nil {
				w.base = bu
			}
		}
	}
	w.run(doc)

	res := &Result{
		URL:       final.String(),
		Title:     w.title,
		Resources: h.fetchImages(ctx, w.images, opts, lang),
	}
	fillSizes(w.tokens, res.Resources)
	res.Tokens = slices.Values(w.tokens)
	return res, nil
}

func (h *HTML) get(ctx context.Context, u string, opts Options, lang language.Tag) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	if al := acceptLanguage(lang); al != "" {
		req.Header.Set("Accept-Language", al)
	}
	return ctxhttp.Do(ctx, h.cfg.Client, req)
}

// fetchImages fetches the given image URLs concurrently. Images that
// cannot be fetched are left out.
func (h *HTML) fetchImages(ctx context.Context, srcs []string, opts Options, lang language.Tag) map[string][]byte {
	var (
		mu  sync.Mutex
		res = map[string][]byte{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.ImageFetchers)
	for _, src := range srcs {
		g.Go(func() error {
			data, err := h.fetchImage(gctx, src, opts, lang)
			if err != nil {
				log.Debugf(ctx, "image %s: %v", src, err)
				return nil
			}
			mu.Lock()
			res[src] = data
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return res
}

func (h *HTML) fetchImage(ctx context.Context, src string, opts Options, lang language.Tag) (_ []byte, err error) {
	defer derrors.Wrap(&err, "fetchImage(%q)", src)
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return nil, derrors.InvalidArgument
	}
	resp, err := h.get(ctx, src, opts, lang)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, derrors.FromStatus(resp.StatusCode, "%s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxImageBytes))
}

// fillSizes completes image sizes missing from the markup with the
// intrinsic size of the fetched image, keeping the aspect ratio when one
// dimension is given.
func fillSizes(tokens []Token, resources map[string][]byte) {
	for i := range tokens {
		img := &tokens[i].Image
		if tokens[i].Kind != Image || (img.Width > 0 && img.Height > 0) {
			continue
		}
		data, ok := resources[img.Src]
		if !ok {
			continue
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil || cfg.Width == 0 || cfg.Height == 0 {
			continue
		}
		switch {
		case img.Width > 0:
			img.Height = img.Width * cfg.Height / cfg.Width
		case img.Height > 0:
			img.Width = img.Height * cfg.Width / cfg.Height
		default:
			img.Width, img.Height = cfg.Width, cfg.Height
		}
	}
}

// deviceLanguage parses the language a device reports, such as "fi" or
// "en_GB".
func deviceLanguage(s string) language.Tag {
	t, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return language.Und
	}
	return t
}

// acceptLanguage returns an Accept-Language header preferring t, then its
// base language, then English.
func acceptLanguage(t language.Tag) string {
	if t == language.Und {
		return ""
	}
	prefs := []string{t.String()}
	if base, conf := t.Base(); conf != language.No && base.String() != t.String() {
		prefs = append(prefs, base.String()+";q=0.8")
	}
	if b, _ := t.Base(); b.String() != "en" {
		prefs = append(prefs, "en;q=0.5")
	}
	return strings.Join(prefs, ", ")
}
