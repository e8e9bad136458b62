// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/pakforge/pakforge/lib/compress"
	"github.com/pakforge/pakforge/lib/fingerprint"
	"github.com/pakforge/pakforge/lib/itempath"
)

// Format constants.
const (
	formatVersion = 1

	// headerSize: 4-byte magic + 2-byte version + 2-byte flags +
	// 4-byte entry count + 4-byte TOC size + 4-byte TOC CRC32C +
	// 8-byte data offset + 4-byte reserved.
	headerSize = 32

	// tocEntryFixedSize: 1-byte compression tag + 1-byte reserved +
	// 2-byte path length + 8-byte offset + 4-byte stored size +
	// 4-byte size + 32-byte checksum. The path follows.
	tocEntryFixedSize = 52

	maxPathLength = 1<<16 - 1
)

var magic = [4]byte{'P', 'A', 'K', 'F'}

// castagnoli is the CRC32C table for TOC checksums.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var (
	// ErrCorruptContainer is returned by Open when the header or
	// table of contents cannot be trusted.
	ErrCorruptContainer = errors.New("corrupt container")

	// ErrDecompression is returned by Read when an entry's stored
	// bytes do not decompress to the declared size and checksum.
	ErrDecompression = errors.New("entry decompression failed")

	// ErrDuplicatePath is returned by Write when two inputs
	// normalize to the same item path.
	ErrDuplicatePath = errors.New("duplicate item path")
)

// Entry describes one item in a container's table of contents.
type Entry struct {
	// Path is the item path as stored.
	Path itempath.Path

	// Compression is the algorithm the stored bytes were
	// compressed with.
	Compression compress.Tag

	// Offset is the stored bytes' position relative to the start
	// of the data region.
	Offset uint64

	// StoredSize is the byte length of the stored (compressed)
	// payload.
	StoredSize uint32

	// Size is the uncompressed length.
	Size uint32

	// Checksum is the entry-domain fingerprint of the uncompressed
	// bytes.
	Checksum fingerprint.Hash
}

// EntryError attaches an item path to a per-entry failure.
type EntryError struct {
	Path itempath.Path
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptContainer, fmt.Sprintf(format, args...))
}
