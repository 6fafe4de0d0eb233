// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytewriter

import (
	"errors"
	"strings"
	"testing"

	"github.com/ballet-proxy/ballet/internal/derrors"
	"github.com/google/go-cmp/cmp"
)

func TestIntegers(t *testing.T) {
	w := New()
	w.Uint8(0xab).Int8(-1).Uint16(0x1234).Int16(-2).Uint32(0xdeadbeef).Int32(-3)
	want := []byte{
		0xab,
		0xff,
		0x12, 0x34,
		0xff, 0xfe,
		0xde, 0xad, 0xbe, 0xef,
		0xff, 0xff, 0xff, 0xfd,
	}
	if diff := cmp.Diff(want, w.Bytes()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestZeroValue(t *testing.T) {
	var w Writer
	w.Uint16(7)
	if diff := cmp.Diff([]byte{0, 7}, w.Bytes()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestGrowth(t *testing.T) {
	w := New()
	big := make([]byte, 3*chunkSize+17)
	for i := range big {
		big[i] = byte(i)
	}
	w.Uint8(1)
	w.Write(big)
	w.Zeros(3)
	if got, want := w.Len(), 1+len(big)+3; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if got := len(w.Bytes()); got != w.Len() {
		t.Errorf("len(Bytes()) = %d, want exactly %d", got, w.Len())
	}
	if diff := cmp.Diff(big, w.Bytes()[1:1+len(big)]); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteChar(t *testing.T) {
	w := New()
	if err := w.WriteChar("T"); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"", "ab", "é"} {
		if err := w.WriteChar(bad); !errors.Is(err, derrors.EncodingError) {
			t.Errorf("WriteChar(%q) = %v, want EncodingError", bad, err)
		}
	}
	if diff := cmp.Diff([]byte("T"), w.Bytes()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteText(t *testing.T) {
	w := New()
	if err := w.WriteText("héllo"); err != nil {
		t.Fatal(err)
	}
	want := append([]byte{0, 6}, "héllo"...)
	if diff := cmp.Diff(want, w.Bytes()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if err := New().WriteText(strings.Repeat("x", 0xFFFF)); err != nil {
		t.Errorf("WriteText(65535 bytes) = %v, want nil", err)
	}
	if err := New().WriteText(strings.Repeat("x", 0x10000)); !errors.Is(err, derrors.TextTooLong) {
		t.Errorf("WriteText(65536 bytes) = %v, want TextTooLong", err)
	}
}
