// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
	"reflect"
)

// Text encodings accepted for char and cstring fields.
const (
	EncodingUTF8     = "utf-8"
	EncodingASCII    = "ascii"
	EncodingLatin1   = "latin1"
	EncodingShiftJIS = "shift-jis"
)

// KnownEncoding reports whether name is an accepted text encoding. The
// empty name means utf-8.
func KnownEncoding(name string) bool {
	switch name {
	case "", EncodingUTF8, EncodingASCII, EncodingLatin1, EncodingShiftJIS:
		return true
	}
	return false
}

// DefinitionError locates a layout rule violation.
type DefinitionError struct {
	Type  string
	Field string
	Err   error
}

func (e *DefinitionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("%s.%s: %v", e.Type, e.Field, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// Validate checks every registered type and returns all violations
// joined. Each violation is a *DefinitionError wrapping
// ErrInvalidType.
func (r *Registry) Validate() error {
	var errs []error
	for _, definition := range r.Types() {
		errs = append(errs, r.validateType(definition)...)
	}
	errs = append(errs, r.validateCycles()...)
	return errors.Join(errs...)
}

func invalid(definition *Type, field string, format string, args ...any) error {
	return &DefinitionError{
		Type:  definition.Key(),
		Field: field,
		Err:   fmt.Errorf("%w: %s", ErrInvalidType, fmt.Sprintf(format, args...)),
	}
}

func (r *Registry) validateType(definition *Type) []error {
	var errs []error
	if len(definition.Fields) == 0 {
		errs = append(errs, invalid(definition, "", "no fields"))
	}

	seen := make(map[string]bool)
	targeted := make(map[string]string)
	lastSequential := -1
	for i := range definition.Fields {
		field := &definition.Fields[i]
		if field.Name == "" {
			errs = append(errs, invalid(definition, fmt.Sprintf("#%d", i), "field name is required"))
			continue
		}
		if seen[field.Name] {
			errs = append(errs, invalid(definition, field.Name, "duplicate field name"))
		}
		seen[field.Name] = true
		if field.Pointer != nil {
			if previous, ok := targeted[field.Pointer.Target]; ok {
				errs = append(errs, invalid(definition, field.Name, "target %q is already located by %q", field.Pointer.Target, previous))
			}
			targeted[field.Pointer.Target] = field.Name
		}
		if !definition.Pointed(field.Name) {
			lastSequential = i
		}
	}

	for i := range definition.Fields {
		field := &definition.Fields[i]
		if field.Name == "" {
			continue
		}
		errs = append(errs, r.validateField(definition, i, lastSequential)...)
	}
	return errs
}

func (r *Registry) validateField(definition *Type, index, lastSequential int) []error {
	field := &definition.Fields[index]
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, invalid(definition, field.Name, format, args...))
	}

	switch field.Type {
	case "":
		fail("type is required")
	case Char, Bytes:
		if field.Size <= 0 {
			fail("%s requires a positive size", field.Type)
		}
	case CString:
		if field.Size != 0 {
			fail("cstring takes no size")
		}
	case Array:
		errs = append(errs, r.validateArray(definition, index, lastSequential)...)
	default:
		if _, ok := ScalarSize(field.Type); !ok {
			if _, ok := r.Lookup(field.Type, definition.StructVersion(field)); !ok {
				fail("struct type %s@%d is not registered", field.Type, definition.StructVersion(field))
			}
		}
	}
	if field.Type != Array && field.Count != nil {
		fail("count applies only to arrays")
	}
	if field.Type != Char && field.Type != CString && field.Encoding != "" {
		fail("encoding applies only to char and cstring")
	}
	if !KnownEncoding(field.Encoding) {
		fail("unknown encoding %q", field.Encoding)
	}

	if field.When != nil {
		errs = append(errs, validateCondition(definition, index)...)
	}
	if field.Pointer != nil {
		errs = append(errs, validatePointer(definition, index)...)
	}
	if definition.Pointed(field.Name) && field.When != nil {
		fail("pointer target cannot be conditional, use a nullable pointer")
	}
	return errs
}

// earlierField returns the named field if it precedes index and is
// decoded sequentially.
func earlierField(definition *Type, index int, name string) (*Field, bool) {
	referenced, position := definition.Field(name)
	if referenced == nil || position >= index || definition.Pointed(name) {
		return nil, false
	}
	return referenced, true
}

func (r *Registry) validateArray(definition *Type, index, lastSequential int) []error {
	field := &definition.Fields[index]
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, invalid(definition, field.Name, format, args...))
	}

	switch field.Of {
	case "":
		fail("array requires an element type")
	case Char, Bytes:
		if field.Size <= 0 {
			fail("array of %s requires a positive size", field.Of)
		}
	case Array:
		fail("arrays of arrays are not supported, wrap the inner array in a struct")
	case CString:
	default:
		if _, ok := ScalarSize(field.Of); !ok {
			if _, ok := r.Lookup(field.Of, definition.StructVersion(field)); !ok {
				fail("element type %s@%d is not registered", field.Of, definition.StructVersion(field))
			}
		}
	}

	count := field.Count
	if count == nil {
		fail("array requires a count")
		return errs
	}
	set := 0
	if count.Fixed != 0 {
		set++
	}
	if count.Field != "" {
		set++
	}
	if count.Remaining {
		set++
	}
	if set != 1 {
		fail("count must be exactly one of fixed, field or remaining")
	}
	if count.Fixed < 0 {
		fail("fixed count must be positive")
	}

	if count.Field != "" {
		counter, ok := earlierField(definition, index, count.Field)
		switch {
		case !ok:
			fail("count field %q must be an earlier sequential field", count.Field)
		case !IsInteger(counter.Type):
			fail("count field %q must be an integer, got %s", count.Field, counter.Type)
		case counter.Pointer != nil:
			fail("count field %q is a pointer", count.Field)
		case counter.When != nil && !reflect.DeepEqual(counter.When, field.When):
			fail("count field %q is conditional and the array does not share its condition", count.Field)
		}
	}

	if count.Remaining {
		if _, ok := r.ElementSize(definition, field); !ok {
			fail("remaining array requires fixed-size elements")
		}
		if !definition.Pointed(field.Name) && index != lastSequential {
			fail("remaining array must be the last sequential field")
		}
	}
	return errs
}

func validateCondition(definition *Type, index int) []error {
	field := &definition.Fields[index]
	condition := field.When
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, invalid(definition, field.Name, format, args...))
	}

	gate, ok := earlierField(definition, index, condition.Field)
	switch {
	case !ok:
		fail("condition field %q must be an earlier sequential field", condition.Field)
	case !IsInteger(gate.Type) && gate.Type != Bool:
		fail("condition field %q must be an integer or bool, got %s", condition.Field, gate.Type)
	}
	if (len(condition.Equals) == 0) == (len(condition.NotEquals) == 0) {
		fail("condition needs exactly one of equals or not_equals")
	}
	return errs
}

func validatePointer(definition *Type, index int) []error {
	field := &definition.Fields[index]
	pointer := field.Pointer
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, invalid(definition, field.Name, format, args...))
	}

	if !IsInteger(field.Type) || IsSigned(field.Type) {
		fail("pointer must be an unsigned integer, got %s", field.Type)
	}
	switch pointer.Base {
	case "", BaseRecord, BaseStream:
	default:
		fail("unknown pointer base %q", pointer.Base)
	}
	target, position := definition.Field(pointer.Target)
	switch {
	case target == nil:
		fail("pointer target %q does not exist", pointer.Target)
	case position <= index:
		fail("pointer target %q must follow the pointer", pointer.Target)
	case target.Pointer != nil:
		fail("pointer target %q is itself a pointer", pointer.Target)
	}
	if definition.Pointed(field.Name) {
		fail("a pointer cannot itself be a pointer target")
	}
	return errs
}

// validateCycles reports struct types that contain themselves without
// an intervening variable-length array, which would never terminate.
func (r *Registry) validateCycles() []error {
	var errs []error
	for _, definition := range r.Types() {
		if r.reachesInline(definition, definition.Key(), make(map[string]bool)) {
			errs = append(errs, invalid(definition, "", "type contains itself"))
		}
	}
	return errs
}

func (r *Registry) reachesInline(definition *Type, goal string, visited map[string]bool) bool {
	if visited[definition.Key()] {
		return false
	}
	visited[definition.Key()] = true
	for i := range definition.Fields {
		field := &definition.Fields[i]
		if field.When != nil {
			continue
		}
		if field.Type == Array && (field.Count == nil || field.Count.Fixed == 0) {
			continue
		}
		nested, ok := r.Resolve(definition, field)
		if !ok {
			continue
		}
		if nested.Key() == goal || r.reachesInline(nested, goal, visited) {
			return true
		}
	}
	return false
}
