// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pakforge/pakforge/lib/codec"
	"github.com/pakforge/pakforge/lib/fingerprint"
)

// Primitive type names. Any other Field.Type names a struct type.
const (
	U8      = "u8"
	U16     = "u16"
	U32     = "u32"
	U64     = "u64"
	I8      = "i8"
	I16     = "i16"
	I32     = "i32"
	I64     = "i64"
	F32     = "f32"
	F64     = "f64"
	Bool    = "bool"
	Char    = "char"
	CString = "cstring"
	Bytes   = "bytes"
	Array   = "array"
)

var scalarSizes = map[string]int{
	U8: 1, U16: 2, U32: 4, U64: 8,
	I8: 1, I16: 2, I32: 4, I64: 8,
	F32: 4, F64: 8,
	Bool: 1,
}

// ScalarSize returns the byte width of a fixed-width numeric or bool
// type.
func ScalarSize(typeName string) (int, bool) {
	size, ok := scalarSizes[typeName]
	return size, ok
}

// IsInteger reports whether typeName is one of the integer types.
func IsInteger(typeName string) bool {
	switch typeName {
	case U8, U16, U32, U64, I8, I16, I32, I64:
		return true
	}
	return false
}

// IsSigned reports whether typeName is a signed integer type.
func IsSigned(typeName string) bool {
	return strings.HasPrefix(typeName, "i") && IsInteger(typeName)
}

// IsBuiltin reports whether typeName is reserved by the schema
// language and so cannot name a struct type.
func IsBuiltin(typeName string) bool {
	if _, ok := scalarSizes[typeName]; ok {
		return true
	}
	switch typeName {
	case Char, CString, Bytes, Array:
		return true
	}
	return false
}

// Pointer base.
const (
	BaseRecord = "record"
	BaseStream = "stream"
)

// Type is one versioned record definition.
type Type struct {
	Name    string  `yaml:"name" json:"name"`
	Version int     `yaml:"version" json:"version"`
	Fields  []Field `yaml:"fields" json:"fields"`

	// Doc is free text carried through for tooling.
	Doc string `yaml:"doc,omitempty" json:"doc,omitempty"`
}

// Field is one entry in a Type's ordered field list.
type Field struct {
	Name string `yaml:"name" json:"name"`

	// Type is a primitive type name or the name of a struct type.
	Type string `yaml:"type" json:"type"`

	// Size is the byte width of char and bytes fields.
	Size int `yaml:"size,omitempty" json:"size,omitempty"`

	// Encoding is the text encoding of char and cstring fields:
	// utf-8 (default), ascii, latin1 or shift-jis.
	Encoding string `yaml:"encoding,omitempty" json:"encoding,omitempty"`

	// Of is the element type of an array: an integer, float, bool,
	// cstring or struct type name.
	Of string `yaml:"of,omitempty" json:"of,omitempty"`

	// Count is the element count rule of an array.
	Count *Count `yaml:"count,omitempty" json:"count,omitempty"`

	// Version pins a struct reference to a specific version. Zero
	// means the containing type's version.
	Version int `yaml:"version,omitempty" json:"version,omitempty"`

	// When gates the field's presence on an earlier integer field.
	When *Condition `yaml:"when,omitempty" json:"when,omitempty"`

	// Pointer marks an integer field as an offset to a later field
	// of the same type.
	Pointer *Pointer `yaml:"pointer,omitempty" json:"pointer,omitempty"`
}

// Count is an array length rule. Exactly one member is set.
type Count struct {
	// Fixed is a constant element count.
	Fixed int `yaml:"fixed,omitempty" json:"fixed,omitempty"`

	// Field names an earlier integer field holding the count.
	Field string `yaml:"field,omitempty" json:"field,omitempty"`

	// Remaining reads fixed-size elements until the end of the
	// available bytes.
	Remaining bool `yaml:"remaining,omitempty" json:"remaining,omitempty"`
}

// Condition makes a field present only when an earlier integer or
// bool field matches.
type Condition struct {
	Field     string  `yaml:"field" json:"field"`
	Equals    []int64 `yaml:"equals,omitempty" json:"equals,omitempty"`
	NotEquals []int64 `yaml:"not_equals,omitempty" json:"not_equals,omitempty"`
}

// Matches reports whether a gate value satisfies the condition.
func (c *Condition) Matches(value int64) bool {
	if len(c.Equals) > 0 {
		for _, candidate := range c.Equals {
			if candidate == value {
				return true
			}
		}
		return false
	}
	for _, candidate := range c.NotEquals {
		if candidate == value {
			return false
		}
	}
	return true
}

// Pointer describes an offset field.
type Pointer struct {
	// Target is the later field the offset locates.
	Target string `yaml:"target" json:"target"`

	// Base is "record" (offset from the start of the containing
	// struct) or "stream" (offset from the start of the buffer).
	Base string `yaml:"base,omitempty" json:"base,omitempty"`

	// Nullable treats an offset of zero as an absent target.
	Nullable bool `yaml:"nullable,omitempty" json:"nullable,omitempty"`
}

// UnmarshalYAML accepts `count: 4`, `count: remaining`, `count: n`
// (a field name) or the mapping form.
func (c *Count) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return c.fromScalar(node.Value, node.ShortTag() == "!!int")
	}
	type plain Count
	return node.Decode((*plain)(c))
}

// UnmarshalJSON accepts the same shorthand forms as UnmarshalYAML.
func (c *Count) UnmarshalJSON(data []byte) error {
	var number int
	if err := json.Unmarshal(data, &number); err == nil {
		*c = Count{Fixed: number}
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return c.fromScalar(text, false)
	}
	type plain Count
	return json.Unmarshal(data, (*plain)(c))
}

func (c *Count) fromScalar(value string, isInt bool) error {
	if isInt {
		fixed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("count %q: %w", value, err)
		}
		*c = Count{Fixed: fixed}
		return nil
	}
	if value == "remaining" {
		*c = Count{Remaining: true}
		return nil
	}
	*c = Count{Field: value}
	return nil
}

// Key is the registry key of a type.
func (t *Type) Key() string {
	return fmt.Sprintf("%s@%d", t.Name, t.Version)
}

// Field returns the field with the given name and its index.
func (t *Type) Field(name string) (*Field, int) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i], i
		}
	}
	return nil, -1
}

// Pointed reports whether the named field is the target of a pointer
// field and so is decoded out of line.
func (t *Type) Pointed(name string) bool {
	return t.PointerFor(name) != nil
}

// PointerFor returns the pointer field that targets name, or nil.
func (t *Type) PointerFor(name string) *Field {
	for i := range t.Fields {
		if pointer := t.Fields[i].Pointer; pointer != nil && pointer.Target == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// Fingerprint identifies the definition's content. Two types with the
// same fingerprint decode bytes identically.
func (t *Type) Fingerprint() (fingerprint.Hash, error) {
	encoded, err := codec.Marshal(t)
	if err != nil {
		return fingerprint.Hash{}, fmt.Errorf("encoding %s: %w", t.Key(), err)
	}
	return fingerprint.Sum(fingerprint.SchemaDomain, encoded), nil
}

// StructVersion returns the version a struct reference in field
// resolves to.
func (t *Type) StructVersion(field *Field) int {
	if field.Version != 0 {
		return field.Version
	}
	return t.Version
}
