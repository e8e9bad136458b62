// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package binio provides endian-aware cursors over in-memory byte
// buffers.
//
// [Reader] reads fixed-width integers and floats from a byte slice and
// reports short reads as [*ShortReadError] carrying the offset at
// which the read was attempted. [Writer] appends to a growing buffer
// and supports patching already-written integers in place, which the
// record codec uses to fill in pointer fields once the pointed-to
// data has been placed.
//
// Reader defaults to little-endian and accepts another byte order
// through [NewReaderOrder]; Writer is always little-endian, the order
// every container and record field uses. Neither type is safe for
// concurrent use; callers create one cursor per decode or encode.
//
// This package has no pakforge-internal dependencies.
package binio
