// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package record decodes binary records into value trees guided by a
// schema registry, and encodes value trees back to bytes.
//
// A [Node] is a tagged variant: a scalar, a composite of named fields,
// a list, or an opaque byte block. Scalars keep raw bits so every
// value, including NaN payloads and out-of-range bools, survives a
// round trip.
//
// [Codec.Decode] walks the schema depth-first. Pointer fields are read
// in sequence with everything else; the fields they locate are decoded
// after the containing struct's sequential part, at the pointer value
// added to the struct start (record base) or the buffer start (stream
// base). Every byte no field claims is kept on the root as a [Span] at
// its absolute offset. Data of a type the registry does not know
// decodes to a single opaque root.
//
// [Codec.Encode] writes fields in schema order and recomputes count
// fields from list lengths. Out-of-line regions are first placed where
// their recorded pointer values say; if a gap opens, the root or a
// span overlaps another region, or two pointed regions disagree about
// a byte, every region is laid out again in
// its original order and the pointers are rewritten. Unmodified trees
// therefore reproduce their input exactly.
//
// Multi-byte values are little-endian.
package record
