// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema holds the versioned catalogue of binary record
// layouts consulted by the record codec.
//
// A [Type] is a named, versioned, ordered list of fields. Field order
// within one version fixes byte offsets. Fields may be fixed-width
// scalars, fixed-width text (char), NUL-terminated text (cstring),
// fixed-size byte blocks, nested struct types, or arrays whose length
// is fixed, read from an earlier integer field, or runs to the end of
// the available bytes. A field may be gated on the value of an earlier
// field, and an integer field may be a pointer locating a later field
// elsewhere in the buffer.
//
// Definitions are data. [Registry.LoadDir] reads YAML, JSON, JSONC and
// compiled CBOR bundle files:
//
//	types:
//	  - name: ship
//	    version: 1
//	    fields:
//	      - {name: id, type: u32}
//	      - {name: name, type: char, size: 16}
//
// [Registry.Lookup] reports an unknown type by returning false rather
// than failing, and the record codec preserves such data verbatim.
// [Registry.Validate] checks every cross-field and cross-type
// reference; the codec assumes a validated registry.
package schema
