// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package imaging converts page images into the small PNG or JPEG files
// OBML clients can display.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	// Decoders for the source formats.
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/ballet-proxy/ballet/internal/derrors"
	"golang.org/x/image/draw"
)

// Format is the encoding of a transcoded image.
type Format int

const (
	PNG Format = iota
	JPEG
)

func (f Format) String() string {
	if f == PNG {
		return "png"
	}
	return "jpg"
}

// Source is an image fetched while rendering a page.
type Source struct {
	URL  string
	Data []byte
}

// A Transcoder scales an image to width x height and re-encodes it.
// Transparent images that are not kept as PNG are flattened onto bg, a
// 0xRRGGBB color.
type Transcoder interface {
	Transcode(ctx context.Context, src Source, width, height int, bg uint32) (Format, []byte, error)
}

// Key returns the cache key of an image transcoded to the given format.
// JPEG output depends on the background it was flattened on, PNG output
// does not.
func Key(f Format, url string, width, height int, bg uint32) string {
	if f == PNG {
		return fmt.Sprintf("%s-%d-%d", url, width, height)
	}
	return fmt.Sprintf("%s-%d-%d-%d", url, width, height, bg)
}

const (
	// DefaultPNGLimit is the source size under which PNG images stay PNG.
	DefaultPNGLimit = 30000
	// DefaultQuality is the JPEG encoding quality.
	DefaultQuality = 85
)

// Standard is the default Transcoder.
type Standard struct {
	// PNGLimit is the source size in bytes under which PNG sources are
	// re-encoded as PNG.
	PNGLimit int
	// Quality is the JPEG quality, 1 to 100.
	Quality int
	// Scaler resizes images. It defaults to draw.ApproxBiLinear.
	Scaler draw.Scaler
}

// NewStandard returns a Standard transcoder with the default settings.
func NewStandard() *Standard {
	return &Standard{
		PNGLimit: DefaultPNGLimit,
		Quality:  DefaultQuality,
		Scaler:   draw.ApproxBiLinear,
	}
}

// Transcode implements Transcoder.
func (s *Standard) Transcode(ctx context.Context, src Source, width, height int, bg uint32) (_ Format, _ []byte, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("transcoding %s: %v: %w", src.URL, err, derrors.ImageTranscodeFailure)
		}
	}()
	if width <= 0 || height <= 0 {
		return 0, nil, fmt.Errorf("invalid size %dx%d", width, height)
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	img, kind, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return 0, nil, err
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		s.scaler().Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if kind == "png" && len(src.Data) < s.PNGLimit {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return 0, nil, err
		}
		return PNG, buf.Bytes(), nil
	}
	if err := jpeg.Encode(&buf, Flatten(img, bg), &jpeg.Options{Quality: s.Quality}); err != nil {
		return 0, nil, err
	}
	return JPEG, buf.Bytes(), nil
}

func (s *Standard) scaler() draw.Scaler {
	if s.Scaler == nil {
		return draw.ApproxBiLinear
	}
	return s.Scaler
}

// Flatten composites img over an opaque background of color bg.
func Flatten(img image.Image, bg uint32) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	c := color.RGBA{R: uint8(bg >> 16), G: uint8(bg >> 8), B: uint8(bg), A: 0xFF}
	draw.Draw(dst, b, image.NewUniform(c), image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
