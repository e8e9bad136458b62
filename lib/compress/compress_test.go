// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
)

func TestTagString(t *testing.T) {
	tests := []struct {
		tag  Tag
		want string
	}{
		{None, "none"},
		{LZ4, "lz4"},
		{Zstd, "zstd"},
		{Tag(99), "unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.tag.String(); got != tt.want {
				t.Errorf("Tag(%d).String() = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestParseTag(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		tag, err := ParseTag(name)
		if err != nil {
			t.Fatalf("ParseTag(%q) failed: %v", name, err)
		}
		if tag.String() != name {
			t.Errorf("roundtrip: ParseTag(%q).String() = %q", name, tag.String())
		}
	}
	if _, err := ParseTag("gzip"); err == nil {
		t.Error("ParseTag(\"gzip\") should fail")
	}
}

func compressibleData() []byte {
	return []byte(strings.Repeat("fuel_capacity=1200;thrust=88;", 200))
}

func TestRoundTrip(t *testing.T) {
	data := compressibleData()
	set := NewSet()

	for _, tag := range []Tag{None, LZ4, Zstd} {
		t.Run(tag.String(), func(t *testing.T) {
			compressed, err := set.Compress(data, tag)
			if err != nil {
				t.Fatalf("Compress(%s) failed: %v", tag, err)
			}
			if tag != None && len(compressed) >= len(data) {
				t.Errorf("Compress(%s) = %d bytes, want fewer than %d", tag, len(compressed), len(data))
			}
			decompressed, err := set.Decompress(compressed, tag, len(data))
			if err != nil {
				t.Fatalf("Decompress(%s) failed: %v", tag, err)
			}
			if !bytes.Equal(decompressed, data) {
				t.Errorf("%s roundtrip mismatch", tag)
			}
		})
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	data := compressibleData()
	set := NewSet()

	for _, tag := range []Tag{None, LZ4, Zstd} {
		compressed, err := set.Compress(data, tag)
		if err != nil {
			t.Fatalf("Compress(%s) failed: %v", tag, err)
		}
		if _, err := set.Decompress(compressed, tag, len(data)+1); err == nil {
			t.Errorf("Decompress(%s) with wrong size should fail", tag)
		}
	}

	_, err := set.Decompress([]byte("abc"), None, 4)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("none size mismatch error = %v, want ErrSizeMismatch", err)
	}
}

func TestDecompressRejectsImpossibleSize(t *testing.T) {
	data := compressibleData()
	set := NewSet()

	for _, tag := range []Tag{LZ4, Zstd} {
		compressed, err := set.Compress(data, tag)
		if err != nil {
			t.Fatalf("Compress(%s) failed: %v", tag, err)
		}
		limit, ok := set.MaxSize(tag, len(compressed))
		if !ok {
			t.Fatalf("MaxSize(%s) not bounded", tag)
		}
		if limit < int64(len(data)) {
			t.Errorf("MaxSize(%s, %d) = %d, below the real size %d", tag, len(compressed), limit, len(data))
		}
		_, err = set.Decompress(compressed, tag, 0xF0000000)
		if !errors.Is(err, ErrSizeMismatch) {
			t.Errorf("Decompress(%s) of a 3.75 GiB claim error = %v, want ErrSizeMismatch", tag, err)
		}
	}

	if limit, ok := set.MaxSize(None, 10); !ok || limit != 10 {
		t.Errorf("MaxSize(none, 10) = %d, %v, want 10, true", limit, ok)
	}
	if _, ok := set.MaxSize(Tag(9), 10); ok {
		t.Error("MaxSize of an unregistered tag should not be bounded")
	}
}

func TestIncompressible(t *testing.T) {
	random := make([]byte, 4096)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}

	set := NewSet()
	if _, err := set.Compress(random, Zstd); !errors.Is(err, ErrIncompressible) {
		t.Errorf("Compress(random, zstd) error = %v, want ErrIncompressible", err)
	}

	output, tag, err := set.CompressAuto(random)
	if err != nil {
		t.Fatalf("CompressAuto failed: %v", err)
	}
	if tag != None {
		t.Errorf("CompressAuto tag = %s, want none", tag)
	}
	if !bytes.Equal(output, random) {
		t.Error("CompressAuto should return incompressible data unchanged")
	}
}

func TestSelect(t *testing.T) {
	if tag := Select(nil); tag != None {
		t.Errorf("Select(nil) = %s, want none", tag)
	}
	if tag := Select(compressibleData()); tag != Zstd {
		t.Errorf("Select(repetitive) = %s, want zstd", tag)
	}
}

type reverseCodec struct{}

func (reverseCodec) Compress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	for i, b := range data {
		out[len(data)-1-i] = b
	}
	return out, nil
}

func (r reverseCodec) Decompress(compressed []byte, size int) ([]byte, error) {
	return r.Compress(compressed)
}

func TestRegisterCustomCodec(t *testing.T) {
	set := NewSet()
	custom := Tag(7)

	if _, err := set.Compress([]byte("abc"), custom); err == nil {
		t.Fatal("Compress with unregistered tag should fail")
	}
	if err := set.Register(custom, reverseCodec{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	compressed, err := set.Compress([]byte("abc"), custom)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if string(compressed) != "cba" {
		t.Errorf("Compress = %q, want %q", compressed, "cba")
	}
	if err := set.Register(None, reverseCodec{}); err == nil {
		t.Error("Register(None) should fail")
	}
}
