// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obml

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/ballet-proxy/ballet/internal/bytewriter"
	"github.com/ballet-proxy/ballet/internal/derrors"
)

// Compression is the compression applied to a page inside its packet.
type Compression int

const (
	None Compression = iota
	Deflate
	Gzip
)

// ParseCompression returns the compression named by the device. Unknown
// names mean None.
func ParseCompression(name string) Compression {
	switch name {
	case "def":
		return Deflate
	case "gzip":
		return Gzip
	default:
		return None
	}
}

func (c Compression) String() string {
	switch c {
	case Deflate:
		return "def"
	case Gzip:
		return "gzip"
	default:
		return "none"
	}
}

func (c Compression) marker() byte {
	switch c {
	case Deflate:
		return 0x32
	case Gzip:
		return 0x31
	default:
		return 0x33
	}
}

// headerSize is the size of the packet header: magic, compression marker
// and 32-bit length.
const headerSize = 6

// Magic returns the packet magic byte of a protocol version.
func Magic(version int) (byte, error) {
	switch version {
	case 1:
		return 0x0d, nil
	case 2:
		return 0x18, nil
	case 3:
		return 0x1a, nil
	default:
		return 0, fmt.Errorf("protocol version %d: %w", version, derrors.InvalidArgument)
	}
}

// Frame compresses page and wraps it in a packet for the given protocol
// version. The length field counts the header.
func Frame(version int, c Compression, page []byte) (_ []byte, err error) {
	defer derrors.Wrap(&err, "Frame(%d, %s, %d bytes)", version, c, len(page))

	magic, err := Magic(version)
	if err != nil {
		return nil, err
	}
	body, err := compress(c, page)
	if err != nil {
		return nil, err
	}
	w := bytewriter.New()
	w.Uint8(magic)
	w.Uint8(c.marker())
	w.Uint32(uint32(len(body) + headerSize))
	w.Write(body)
	return w.Bytes(), nil
}

func compress(c Compression, page []byte) ([]byte, error) {
	var (
		buf bytes.Buffer
		zw  io.WriteCloser
		err error
	)
	switch c {
	case Deflate:
		zw, err = flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
	case Gzip:
		zw = gzip.NewWriter(&buf)
	default:
		return page, nil
	}
	if _, err := zw.Write(page); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Build optimizes doc, serializes it and frames the result. It consumes
// doc.
func Build(doc *Document, c Compression) ([]byte, error) {
	page, err := doc.Optimize().Serialize()
	if err != nil {
		return nil, err
	}
	return Frame(doc.Version(), c, page)
}
