// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the compression algorithm used for one container
// entry. Tags are stored in the container table of contents (1 byte
// each). These values are format constants: changing them breaks
// compatibility with existing containers.
type Tag uint8

const (
	// None indicates stored bytes. Used for already-compressed
	// payloads (textures, audio banks) and for entries where the
	// compressed form would not be smaller.
	None Tag = 0

	// LZ4 indicates LZ4 block compression. Fast decode, modest
	// ratio; selected when zstd's probe ratio is marginal.
	LZ4 Tag = 1

	// Zstd indicates zstd at the default level. Better ratio for
	// record tables and text-like data.
	Zstd Tag = 2
)

// String returns the human-readable name of a tag.
func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseTag parses a tag from its string representation.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// ErrIncompressible is returned by Codec.Compress when the output
// would not be smaller than the input. The caller should store the
// entry with [None].
var ErrIncompressible = errors.New("data is incompressible")

// ErrSizeMismatch is returned when decompression produces a
// different number of bytes than the declared uncompressed size.
var ErrSizeMismatch = errors.New("decompressed size mismatch")

// Codec is one compression algorithm. Implementations must be safe
// for concurrent use.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(compressed []byte, size int) ([]byte, error)
}

// Bounded is implemented by codecs whose output size is limited by
// their input size. [Set.MaxSize] uses it to reject declared sizes no
// valid stream could produce.
type Bounded interface {
	MaxDecompressedSize(compressedSize int) int64
}

// Set maps tags to codecs. The zero value is not usable; call
// [NewSet] or use [Default].
type Set struct {
	mu     sync.RWMutex
	codecs map[Tag]Codec
}

// NewSet returns a Set with the built-in lz4 and zstd codecs.
func NewSet() *Set {
	return &Set{codecs: map[Tag]Codec{
		LZ4:  lz4Codec{},
		Zstd: zstdCodec{},
	}}
}

// Register installs or replaces the codec for tag. [None] cannot be
// replaced.
func (s *Set) Register(tag Tag, codec Codec) error {
	if tag == None {
		return fmt.Errorf("cannot register a codec for tag %s", tag)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codecs[tag] = codec
	return nil
}

func (s *Set) codec(tag Tag) (Codec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codec, ok := s.codecs[tag]
	if !ok {
		return nil, fmt.Errorf("unsupported compression tag: %s", tag)
	}
	return codec, nil
}

// Compress compresses data with the codec registered for tag. For
// [None] the input is returned unchanged (no copy).
func (s *Set) Compress(data []byte, tag Tag) ([]byte, error) {
	if tag == None {
		return data, nil
	}
	codec, err := s.codec(tag)
	if err != nil {
		return nil, err
	}
	return codec.Compress(data)
}

// MaxSize reports the largest uncompressed size that stored bytes
// under tag can expand to. ok is false when the tag's codec is unknown
// or does not implement [Bounded].
func (s *Set) MaxSize(tag Tag, stored int) (size int64, ok bool) {
	if tag == None {
		return int64(stored), true
	}
	codec, err := s.codec(tag)
	if err != nil {
		return 0, false
	}
	bounded, ok := codec.(Bounded)
	if !ok {
		return 0, false
	}
	return bounded.MaxDecompressedSize(stored), true
}

// Decompress reverses Compress. size must match the original data
// length exactly; a mismatch returns an error wrapping
// [ErrSizeMismatch]. A size beyond what the codec can produce from
// compressed is rejected before any output buffer is allocated.
func (s *Set) Decompress(compressed []byte, tag Tag, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrSizeMismatch, size)
	}
	if tag == None {
		if len(compressed) != size {
			return nil, fmt.Errorf("%w: stored entry is %d bytes, expected %d",
				ErrSizeMismatch, len(compressed), size)
		}
		return compressed, nil
	}
	codec, err := s.codec(tag)
	if err != nil {
		return nil, err
	}
	if bounded, ok := codec.(Bounded); ok {
		if limit := bounded.MaxDecompressedSize(len(compressed)); int64(size) > limit {
			return nil, fmt.Errorf("%s decompress: %w: %d bytes cannot expand to %d",
				tag, ErrSizeMismatch, len(compressed), size)
		}
	}
	return codec.Decompress(compressed, size)
}

// Select probes data to pick a tag. zstd is tried first: a ratio of
// at least 1.5x selects zstd, between 1.1x and 1.5x selects LZ4
// (faster with acceptable ratio), and anything lower is stored.
func Select(data []byte) Tag {
	if len(data) == 0 {
		return None
	}

	compressed := zstdEncoder.EncodeAll(data, nil)
	ratio := float64(len(data)) / float64(len(compressed))

	switch {
	case ratio >= 1.5:
		return Zstd
	case ratio >= 1.1:
		return LZ4
	default:
		return None
	}
}

// CompressAuto compresses data with the tag chosen by [Select].
// Incompressible data comes back unchanged with [None].
func (s *Set) CompressAuto(data []byte) ([]byte, Tag, error) {
	tag := Select(data)

	compressed, err := s.Compress(data, tag)
	if err != nil {
		if errors.Is(err, ErrIncompressible) {
			return data, None, nil
		}
		return nil, 0, err
	}
	return compressed, tag, nil
}

// Default is the process-wide Set used by callers that do not need
// custom codecs.
var Default = NewSet()

// lz4Codec is block-mode LZ4.
type lz4Codec struct{}

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it decides the data is
	// incompressible.
	if written == 0 || written >= len(data) {
		return nil, ErrIncompressible
	}
	return destination[:written], nil
}

// lz4MaxRatio bounds block expansion: a match token can emit at most
// 255 bytes per input byte.
const lz4MaxRatio = 255

func (lz4Codec) MaxDecompressedSize(compressedSize int) int64 {
	return int64(compressedSize) * lz4MaxRatio
}

func (c lz4Codec) Decompress(compressed []byte, size int) ([]byte, error) {
	if size < 0 || int64(size) > c.MaxDecompressedSize(len(compressed)) {
		return nil, fmt.Errorf("lz4 decompress: %w: %d bytes cannot expand to %d", ErrSizeMismatch, len(compressed), size)
	}
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: %w: got %d bytes, expected %d", ErrSizeMismatch, read, size)
	}
	return destination, nil
}

// zstdEncoder and zstdDecoder are shared across calls. zstd.Encoder
// and zstd.Decoder are safe for concurrent use via EncodeAll and
// DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

type zstdCodec struct{}

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, ErrIncompressible
	}
	return compressed, nil
}

// zstdMaxRatio bounds frame expansion: a 4-byte RLE block yields at
// most 128 KiB.
const zstdMaxRatio = 32 << 10

func (zstdCodec) MaxDecompressedSize(compressedSize int) int64 {
	return int64(compressedSize) * zstdMaxRatio
}

func (c zstdCodec) Decompress(compressed []byte, size int) ([]byte, error) {
	if size < 0 || int64(size) > c.MaxDecompressedSize(len(compressed)) {
		return nil, fmt.Errorf("zstd decompress: %w: %d bytes cannot expand to %d", ErrSizeMismatch, len(compressed), size)
	}
	var header zstd.Header
	if err := header.Decode(compressed); err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if header.HasFCS && header.FrameContentSize != uint64(size) {
		return nil, fmt.Errorf("zstd decompress: %w: frame declares %d bytes, expected %d", ErrSizeMismatch, header.FrameContentSize, size)
	}
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("zstd decompress: %w: got %d bytes, expected %d", ErrSizeMismatch, len(result), size)
	}
	return result, nil
}
