// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package container reads and writes PAKF archive containers.
//
// A container bundles many named items. Each item is compressed
// independently so any one can be extracted without touching the
// others. The layout is little-endian:
//
//	header (32 bytes)
//	  magic       "PAKF"
//	  version     uint16 (1)
//	  flags       uint16 (must be 0)
//	  entry count uint32
//	  TOC size    uint32
//	  TOC CRC32C  uint32
//	  data offset uint64 (32 + TOC size)
//	  reserved    uint32 (must be 0)
//	table of contents, one record per entry, ascending by path key
//	  compression uint8, reserved uint8, path length uint16,
//	  offset uint64 (relative to data offset), stored size uint32,
//	  size uint32, BLAKE3 entry checksum [32]byte, path bytes
//	data: stored payloads in TOC order
//
// [Open] validates the header and the whole table of contents up
// front and fails with [ErrCorruptContainer] if anything is out of
// bounds. Entry bytes are not read until [Archive.Read], which checks
// both the declared size and the checksum and fails with
// [ErrDecompression] on disagreement.
//
// [Write] builds the complete container in memory before returning
// it, and [WriteFile] replaces the destination with a single rename.
package container
