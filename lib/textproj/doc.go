// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package textproj renders decoded record trees as editable YAML and
// parses them back without loss.
//
// Every value carries its type as a YAML tag, so a document can be
// parsed without consulting the schema registry:
//
//	type: ship
//	version: 1
//	record: !rec/ship
//	  id: !u32 42
//	  name: !char "Explorer"
//	  crew: !list/member
//	    - !rec/member@2
//	      rank: !i8 -2
//	      callsign: !cstring "Rigel"
//	spans:
//	  - offset: 20
//	    data: !opaque "0000"
//
// Integers are decimal. Floats use the shortest decimal that parses
// back to the same bits; NaN and infinities are written as their bit
// pattern in hex (0x7fc00000). A bool holding a byte other than 0 or 1
// is written as that integer. Text that does not fill a char field
// cleanly is written as a mapping, {text: "...", tail: "hex"} when
// bytes follow the terminator and {raw: "hex"} when the bytes are not
// valid text. A nested struct whose version differs from the record's
// names it after an @.
//
// [FromText] reports problems as a *ParseError carrying the line and
// field, wrapping [ErrMalformedText].
package textproj
