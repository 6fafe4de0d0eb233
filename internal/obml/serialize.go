// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obml

import (
	"bytes"
	"fmt"
	"math"

	"github.com/ballet-proxy/ballet/internal/bytewriter"
	"github.com/ballet-proxy/ballet/internal/derrors"
)

// Connection test URLs. A page with one of these URLs answers the
// test instead of describing content.
const (
	testURL   = "server:test" // 1.x and 2.x
	testURLv3 = "server:t0"
)

// specialResponseSize is the minimum size of the special response area at
// the start of a page.
const specialResponseSize = 16

// Style flag bits.
const (
	flagItalic      = 1 << 0
	flagBold        = 1 << 1
	flagUnderline   = 1 << 2
	flagStrike      = 1 << 3
	flagAlignCenter = 1 << 4
	flagAlignRight  = 1 << 5
	flagMonospace   = 1 << 6
)

// RGB565 packs a 0xRRGGBB color into the 16-bit form used by 1.x and 2.x
// clients.
func RGB565(color uint32) uint16 {
	r := (color >> 16) & 0xFF
	g := (color >> 8) & 0xFF
	b := color & 0xFF
	return uint16((r >> 3) | ((g & 0xFC) << 3) | ((b & 0xF8) << 8))
}

// encoder writes tags for one protocol version. The first error sticks and
// suppresses further output.
type encoder struct {
	w       *bytewriter.Writer
	version int
	err     error
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) u8(v int) {
	if v < 0 || v > math.MaxUint8 {
		e.fail(fmt.Errorf("%d does not fit in 8 bits: %w", v, derrors.EncodingError))
		return
	}
	e.w.Uint8(uint8(v))
}

func (e *encoder) u16(v int) {
	if v < 0 || v > math.MaxUint16 {
		e.fail(fmt.Errorf("%d does not fit in 16 bits: %w", v, derrors.EncodingError))
		return
	}
	e.w.Uint16(uint16(v))
}

func (e *encoder) flag(b bool) {
	if b {
		e.w.Uint8(1)
	} else {
		e.w.Uint8(0)
	}
}

func (e *encoder) text(s string) {
	if err := e.w.WriteText(s); err != nil {
		e.fail(err)
	}
}

func (e *encoder) color(c uint32) {
	if e.version >= 3 {
		e.w.Uint32(c)
	} else {
		e.w.Uint16(RGB565(c))
	}
}

// Serialize returns the binary form of the page.
func (p *Page) Serialize() (_ []byte, err error) {
	defer derrors.Wrap(&err, "Serialize(%q)", p.url)

	w := bytewriter.New()
	if p.url == testURLv3 {
		w.Uint16(0x24)
		w.Write([]byte{0x00, 0x00, 0x00, 0x20})
		w.Write(bytes.Repeat([]byte{0xFF}, 0x20))
		return w.Bytes(), nil
	}

	e := &encoder{w: w, version: p.version}

	var special []byte
	if p.url == testURL {
		special = []byte(p.url)
	}
	e.u16(len(special))
	w.Write(special)
	if len(special) < specialResponseSize {
		w.Zeros(specialResponseSize - len(special))
	}

	e.u16(len(p.tags))
	w.Uint16(1) // current part
	w.Uint16(1) // parts count
	w.Uint16(0)
	e.u16(p.styles)
	w.Uint16(0).Uint8(0)
	w.Uint16(0xFFFF) // cacheable
	if p.version >= 2 {
		w.Uint16(0)
	}
	e.text("1/" + p.url)
	if e.err != nil {
		return nil, fmt.Errorf("header: %w", e.err)
	}

	for i, t := range p.tags {
		e.tag(t)
		if e.err != nil {
			return nil, fmt.Errorf("tag %d (%v): %w", i, t.Kind, e.err)
		}
	}
	return w.Bytes(), nil
}

func (e *encoder) tag(t Tag) {
	if err := e.w.WriteChar(t.Kind.ID()); err != nil {
		e.fail(err)
		return
	}
	switch pl := t.Payload.(type) {
	case nil:
		// Markers carry no payload.
	case string:
		e.text(pl)
	case uint32:
		e.color(pl)
	case int:
		if t.Kind == StyleRef2 {
			e.u16(pl)
		} else {
			e.u8(pl)
		}
	case TextStyle:
		e.style(pl)
	case ImageData:
		if len(pl.Data) > math.MaxUint16 {
			e.fail(fmt.Errorf("%d bytes: %w", len(pl.Data), derrors.OversizedImage))
			return
		}
		e.u16(pl.Width)
		e.u16(pl.Height)
		e.u16(len(pl.Data))
		e.w.Uint16(0)
		e.w.Write(pl.Data)
	case ImageIndex:
		e.u16(pl.Width)
		e.u16(pl.Height)
		e.u16(pl.Index)
	case Size:
		e.u16(pl.Width)
		e.u16(pl.Height)
	case AuthValue:
		e.w.Uint8(uint8(pl.Type))
		e.text(pl.Value)
	case Message:
		e.text(pl.Title)
		e.text(pl.Message)
	case Field:
		e.text(pl.Name)
		e.text(pl.Value)
	case Toggle:
		e.text(pl.Name)
		e.text(pl.Value)
		e.flag(pl.Checked)
	case TextField:
		if e.version > 1 {
			e.flag(pl.Multiline)
		}
		e.text(pl.Name)
		e.text(pl.Value)
	case Upload:
		e.text(pl.Name)
	case Select:
		e.text(pl.Name)
		e.flag(pl.Multiple)
		e.u16(pl.Count)
	case Option:
		e.text(pl.Title)
		e.text(pl.Value)
		e.flag(pl.Checked)
	default:
		e.fail(fmt.Errorf("payload of type %T: %w", pl, derrors.EncodingError))
	}
}

func (e *encoder) style(s TextStyle) {
	var flags uint8
	switch s.Align {
	case AlignCenter:
		flags |= flagAlignCenter
	case AlignRight:
		flags |= flagAlignRight
	}
	if s.Bold {
		flags |= flagBold
	}
	if s.Underline {
		flags |= flagUnderline
	}
	if s.Monospace {
		flags |= flagMonospace
	}
	if s.Italic {
		flags |= flagItalic
	}
	if s.Strike {
		flags |= flagStrike
	}
	e.w.Uint8(flags)
	e.color(s.Color)
	e.w.Uint8(s.Pad)
}
