// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package binio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortRead is the sentinel wrapped by every [*ShortReadError].
var ErrShortRead = errors.New("short read")

// ShortReadError reports a read that needed more bytes than the
// buffer had left.
type ShortReadError struct {
	Offset int
	Want   int
	Have   int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read at offset %d: want %d bytes, have %d", e.Offset, e.Want, e.Have)
}

func (e *ShortReadError) Unwrap() error {
	return ErrShortRead
}

// Reader is a read cursor over a byte slice.
type Reader struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

// NewReader returns a little-endian Reader positioned at offset 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, order: binary.LittleEndian}
}

// NewReaderOrder returns a Reader using the given byte order.
func NewReaderOrder(data []byte, order binary.ByteOrder) *Reader {
	return &Reader{data: data, order: order}
}

// Pos returns the current offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the total buffer length.
func (r *Reader) Len() int { return len(r.data) }

// Remaining returns the number of unread bytes after Pos.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Seek moves the cursor to an absolute offset. Seeking to exactly
// Len is allowed; anything past it is a short read.
func (r *Reader) Seek(offset int) error {
	if offset < 0 || offset > len(r.data) {
		return &ShortReadError{Offset: offset, Want: 0, Have: len(r.data)}
	}
	r.pos = offset
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, &ShortReadError{Offset: r.pos, Want: n, Have: r.Remaining()}
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// Bytes returns the next n bytes. The returned slice aliases the
// underlying buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	return r.take(n)
}

// Uint reads an unsigned integer of the given width (1, 2, 4 or 8
// bytes).
func (r *Reader) Uint(width int) (uint64, error) {
	raw, err := r.take(width)
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return uint64(raw[0]), nil
	case 2:
		return uint64(r.order.Uint16(raw)), nil
	case 4:
		return uint64(r.order.Uint32(raw)), nil
	case 8:
		return r.order.Uint64(raw), nil
	default:
		r.pos -= width
		return 0, fmt.Errorf("unsupported integer width %d", width)
	}
}

func (r *Reader) U8() (uint8, error) {
	v, err := r.Uint(1)
	return uint8(v), err
}

func (r *Reader) U16() (uint16, error) {
	v, err := r.Uint(2)
	return uint16(v), err
}

func (r *Reader) U32() (uint32, error) {
	v, err := r.Uint(4)
	return uint32(v), err
}

func (r *Reader) U64() (uint64, error) {
	return r.Uint(8)
}

func (r *Reader) I8() (int8, error) {
	v, err := r.Uint(1)
	return int8(v), err
}

func (r *Reader) I16() (int16, error) {
	v, err := r.Uint(2)
	return int16(v), err
}

func (r *Reader) I32() (int32, error) {
	v, err := r.Uint(4)
	return int32(v), err
}

func (r *Reader) I64() (int64, error) {
	v, err := r.Uint(8)
	return int64(v), err
}

func (r *Reader) F32() (float32, error) {
	v, err := r.Uint(4)
	return math.Float32frombits(uint32(v)), err
}

func (r *Reader) F64() (float64, error) {
	v, err := r.Uint(8)
	return math.Float64frombits(v), err
}
