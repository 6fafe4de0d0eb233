// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bytewriter provides the growable big-endian output buffer used to
// serialize OBML pages and packets.
package bytewriter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ballet-proxy/ballet/internal/derrors"
)

// chunkSize is the initial capacity and the minimum growth step.
const chunkSize = 2048

// A Writer accumulates big-endian binary data. The zero value is ready to use.
// A Writer must not be shared between goroutines.
type Writer struct {
	buf []byte
}

// New returns a Writer with the default initial capacity.
func New() *Writer {
	return &Writer{buf: make([]byte, 0, chunkSize)}
}

// grow makes room for n more bytes and returns the slice to fill.
func (w *Writer) grow(n int) []byte {
	l := len(w.buf)
	if l+n > cap(w.buf) {
		c := max(2*cap(w.buf), l+n, chunkSize)
		nb := make([]byte, l, c)
		copy(nb, w.buf)
		w.buf = nb
	}
	w.buf = w.buf[:l+n]
	return w.buf[l:]
}

// Int8 writes a signed byte.
func (w *Writer) Int8(v int8) *Writer { return w.Uint8(uint8(v)) }

// Uint8 writes a byte.
func (w *Writer) Uint8(v uint8) *Writer {
	w.grow(1)[0] = v
	return w
}

// Int16 writes a big-endian signed 16-bit integer.
func (w *Writer) Int16(v int16) *Writer { return w.Uint16(uint16(v)) }

// Uint16 writes a big-endian 16-bit integer.
func (w *Writer) Uint16(v uint16) *Writer {
	binary.BigEndian.PutUint16(w.grow(2), v)
	return w
}

// Int32 writes a big-endian signed 32-bit integer.
func (w *Writer) Int32(v int32) *Writer { return w.Uint32(uint32(v)) }

// Uint32 writes a big-endian 32-bit integer.
func (w *Writer) Uint32(v uint32) *Writer {
	binary.BigEndian.PutUint32(w.grow(4), v)
	return w
}

// Write appends p unchanged. It always returns len(p), nil.
func (w *Writer) Write(p []byte) (int, error) {
	copy(w.grow(len(p)), p)
	return len(p), nil
}

// Zeros appends n zero bytes.
func (w *Writer) Zeros(n int) *Writer {
	clear(w.grow(n))
	return w
}

// WriteChar writes c, which must encode to exactly one byte.
func (w *Writer) WriteChar(c string) error {
	if len(c) != 1 {
		return fmt.Errorf("WriteChar(%q): %d bytes: %w", c, len(c), derrors.EncodingError)
	}
	w.Uint8(c[0])
	return nil
}

// WriteText writes s as a 16-bit byte length followed by its UTF-8 bytes.
func (w *Writer) WriteText(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("WriteText: %d bytes: %w", len(s), derrors.TextTooLong)
	}
	w.Uint16(uint16(len(s)))
	copy(w.grow(len(s)), s)
	return nil
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written bytes. The slice aliases the Writer's storage
// and is valid until the next write.
func (w *Writer) Bytes() []byte { return w.buf }
