// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package binio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOverflow is returned when a value does not fit the requested
// integer width.
var ErrOverflow = errors.New("value overflows field width")

// Writer appends little-endian fixed-width values to a growing
// buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written buffer. The slice aliases the Writer's
// storage until the next write.
func (w *Writer) Bytes() []byte { return w.buf }

// FitsUint reports whether v can be stored in width bytes.
func FitsUint(v uint64, width int) bool {
	if width >= 8 {
		return true
	}
	return v < 1<<(8*uint(width))
}

func encode(dst []byte, width int, v uint64) error {
	if !FitsUint(v, width) {
		return fmt.Errorf("%w: %d in %d bytes", ErrOverflow, v, width)
	}
	switch width {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	default:
		return fmt.Errorf("unsupported integer width %d", width)
	}
	return nil
}

// PutUint appends v using width bytes.
func (w *Writer) PutUint(width int, v uint64) error {
	var scratch [8]byte
	if width < 0 || width > len(scratch) {
		return fmt.Errorf("unsupported integer width %d", width)
	}
	if err := encode(scratch[:width], width, v); err != nil {
		return err
	}
	w.buf = append(w.buf, scratch[:width]...)
	return nil
}

// PatchUint overwrites width bytes at offset at with v. The range
// must already have been written.
func (w *Writer) PatchUint(at, width int, v uint64) error {
	if at < 0 || at+width > len(w.buf) {
		return fmt.Errorf("patch at %d+%d outside written range %d", at, width, len(w.buf))
	}
	return encode(w.buf[at:at+width], width, v)
}

// PutBytes appends data verbatim.
func (w *Writer) PutBytes(data []byte) {
	w.buf = append(w.buf, data...)
}

// PutZeros appends n zero bytes.
func (w *Writer) PutZeros(n int) {
	for range n {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) PutU8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) PutU16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *Writer) PutU32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *Writer) PutU64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
