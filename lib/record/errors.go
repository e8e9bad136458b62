// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedInput means decoding ran out of bytes before the
	// schema was satisfied.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrSchemaMismatch means a value tree does not have the shape the
	// schema requires, or the schema itself cannot be applied.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrFieldTooLong means edited text or bytes exceed the fixed width
	// of their field.
	ErrFieldTooLong = errors.New("field too long")

	// ErrOverflow means a count, pointer or scalar value does not fit
	// the width of its field.
	ErrOverflow = errors.New("value overflows field width")

	// ErrUnencodable means text cannot be represented in the field's
	// text encoding.
	ErrUnencodable = errors.New("text not representable in field encoding")

	// ErrNoSuchField is returned by Node.Lookup for a path that does
	// not exist in the tree.
	ErrNoSuchField = errors.New("no such field")
)

// FieldError locates a codec failure. Offset is the absolute byte
// offset for decode failures and -1 when no offset applies.
type FieldError struct {
	Path   string
	Offset int
	Err    error
}

func (e *FieldError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s at offset %d: %v", e.Path, e.Offset, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldErrorf(path string, offset int, sentinel error, format string, args ...any) error {
	return &FieldError{
		Path:   path,
		Offset: offset,
		Err:    fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}
