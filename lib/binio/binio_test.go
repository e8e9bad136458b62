// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package binio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestReaderLittleEndian(t *testing.T) {
	reader := NewReader([]byte{0x2a, 0x00, 0x00, 0x00, 0x01, 0x02, 0xff})

	id, err := reader.U32()
	if err != nil {
		t.Fatalf("U32 failed: %v", err)
	}
	if id != 42 {
		t.Errorf("U32 = %d, want 42", id)
	}

	half, err := reader.U16()
	if err != nil {
		t.Fatalf("U16 failed: %v", err)
	}
	if half != 0x0201 {
		t.Errorf("U16 = %#x, want 0x0201", half)
	}

	signed, err := reader.I8()
	if err != nil {
		t.Fatalf("I8 failed: %v", err)
	}
	if signed != -1 {
		t.Errorf("I8 = %d, want -1", signed)
	}
	if reader.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", reader.Remaining())
	}
}

func TestReaderBigEndian(t *testing.T) {
	reader := NewReaderOrder([]byte{0x00, 0x00, 0x00, 0x2a}, binary.BigEndian)
	value, err := reader.U32()
	if err != nil {
		t.Fatalf("U32 failed: %v", err)
	}
	if value != 42 {
		t.Errorf("U32 = %d, want 42", value)
	}
}

func TestReaderShortRead(t *testing.T) {
	reader := NewReader([]byte{1, 2, 3})
	if _, err := reader.U8(); err != nil {
		t.Fatalf("U8 failed: %v", err)
	}

	_, err := reader.U32()
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("U32 error = %v, want ErrShortRead", err)
	}
	var shortRead *ShortReadError
	if !errors.As(err, &shortRead) {
		t.Fatalf("error %T is not *ShortReadError", err)
	}
	if shortRead.Offset != 1 || shortRead.Want != 4 || shortRead.Have != 2 {
		t.Errorf("ShortReadError = %+v, want offset 1, want 4, have 2", *shortRead)
	}
	if reader.Pos() != 1 {
		t.Errorf("Pos after failed read = %d, want 1", reader.Pos())
	}
}

func TestReaderSeek(t *testing.T) {
	reader := NewReader([]byte{0, 0, 7})
	if err := reader.Seek(2); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	value, err := reader.U8()
	if err != nil {
		t.Fatalf("U8 failed: %v", err)
	}
	if value != 7 {
		t.Errorf("U8 = %d, want 7", value)
	}
	if err := reader.Seek(3); err != nil {
		t.Errorf("Seek to end failed: %v", err)
	}
	if err := reader.Seek(4); !errors.Is(err, ErrShortRead) {
		t.Errorf("Seek past end error = %v, want ErrShortRead", err)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	writer := NewWriter()
	writer.PutU8(0xff)
	writer.PutU16(0x0201)
	writer.PutU32(42)
	writer.PutU64(0x0807060504030201)
	writer.PutBytes([]byte("ok"))

	want := []byte{
		0xff,
		0x01, 0x02,
		0x2a, 0x00, 0x00, 0x00,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		'o', 'k',
	}
	if !bytes.Equal(writer.Bytes(), want) {
		t.Fatalf("Bytes = %x, want %x", writer.Bytes(), want)
	}

	reader := NewReader(writer.Bytes())
	if v, _ := reader.U8(); v != 0xff {
		t.Errorf("U8 = %#x, want 0xff", v)
	}
	if v, _ := reader.U16(); v != 0x0201 {
		t.Errorf("U16 = %#x, want 0x0201", v)
	}
	if v, _ := reader.U32(); v != 42 {
		t.Errorf("U32 = %d, want 42", v)
	}
	if v, _ := reader.U64(); v != 0x0807060504030201 {
		t.Errorf("U64 = %#x, want 0x0807060504030201", v)
	}
	if v, _ := reader.Bytes(2); string(v) != "ok" {
		t.Errorf("Bytes = %q, want %q", v, "ok")
	}
}

func TestPutUintMatchesFixedWidthPuts(t *testing.T) {
	for _, width := range []int{1, 2, 4, 8} {
		viaWidth := NewWriter()
		if err := viaWidth.PutUint(width, 0x7f); err != nil {
			t.Fatalf("PutUint(%d) failed: %v", width, err)
		}
		direct := NewWriter()
		switch width {
		case 1:
			direct.PutU8(0x7f)
		case 2:
			direct.PutU16(0x7f)
		case 4:
			direct.PutU32(0x7f)
		case 8:
			direct.PutU64(0x7f)
		}
		if !bytes.Equal(viaWidth.Bytes(), direct.Bytes()) {
			t.Errorf("width %d: PutUint = %x, fixed put = %x", width, viaWidth.Bytes(), direct.Bytes())
		}
	}
}

func TestWriterPatchAndOverflow(t *testing.T) {
	writer := NewWriter()
	if err := writer.PutUint(2, 0); err != nil {
		t.Fatalf("PutUint failed: %v", err)
	}
	writer.PutBytes([]byte{9, 9})
	if err := writer.PatchUint(0, 2, 0x0304); err != nil {
		t.Fatalf("PatchUint failed: %v", err)
	}
	if want := []byte{0x04, 0x03, 9, 9}; !bytes.Equal(writer.Bytes(), want) {
		t.Errorf("Bytes = %v, want %v", writer.Bytes(), want)
	}

	if err := writer.PutUint(1, 256); !errors.Is(err, ErrOverflow) {
		t.Errorf("PutUint(1, 256) error = %v, want ErrOverflow", err)
	}
	if err := writer.PatchUint(3, 2, 1); err == nil {
		t.Error("PatchUint outside written range succeeded")
	}
}
