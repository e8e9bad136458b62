// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress is the pluggable compression capability used by
// the archive container codec.
//
// Each container entry is compressed independently and tagged with a
// one-byte [Tag]. A [Set] maps tags to [Codec] implementations; the
// built-in set carries block-mode LZ4 (pierrec/lz4) and zstd
// (klauspost/compress). Additional algorithms can be registered on a
// private Set without touching [Default].
//
// Decompression always verifies the declared uncompressed size and
// reports disagreement as [ErrSizeMismatch], which the container
// codec surfaces as a decompression error for that entry.
package compress
