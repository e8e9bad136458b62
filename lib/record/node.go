// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pakforge/pakforge/lib/binio"
	"github.com/pakforge/pakforge/lib/schema"
)

// Kind is the variant of a Node.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindScalar
	KindComposite
	KindList
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindComposite:
		return "composite"
	case KindList:
		return "list"
	case KindOpaque:
		return "opaque"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Node is one value in a decoded record tree. Which members are
// meaningful depends on Kind:
//
//   - KindScalar: Type is a primitive type name. Integer, float and
//     bool values live in Bits as raw little-endian bits. Char and
//     cstring values live in Text, or in Raw when the bytes are not
//     valid in the field's encoding; a non-empty Raw takes
//     precedence. Tail keeps any non-zero bytes found after a char
//     field's terminator.
//   - KindComposite: Type and Version name the struct type and Fields
//     holds the present fields in schema order. A root composite also
//     carries the Spans no field claimed.
//   - KindList: Type is the element type and Items the elements.
//   - KindOpaque: Raw holds the bytes. Type is "bytes" for a bytes
//     field, or the requested type name for data of an unknown type.
type Node struct {
	Kind    Kind
	Type    string
	Version int

	Bits uint64
	Text string
	Tail []byte
	Raw  []byte

	Fields []Member
	Items  []*Node
	Spans  []Span
}

// Member is a named field of a composite.
type Member struct {
	Name  string
	Value *Node
}

// Span is a run of bytes no schema field accounts for, kept at its
// absolute offset in the encoded record.
type Span struct {
	Offset int
	Data   []byte
}

// NewUint returns an unsigned or signed integer scalar holding the
// low bits of v.
func NewUint(typeName string, v uint64) *Node {
	return &Node{Kind: KindScalar, Type: typeName, Bits: v}
}

// NewInt returns an integer scalar holding v in two's complement.
func NewInt(typeName string, v int64) *Node {
	node := &Node{Kind: KindScalar, Type: typeName}
	size, _ := schema.ScalarSize(typeName)
	node.Bits = truncate(uint64(v), size)
	return node
}

// NewFloat returns an f32 or f64 scalar.
func NewFloat(typeName string, v float64) *Node {
	node := &Node{Kind: KindScalar, Type: typeName}
	if typeName == schema.F32 {
		node.Bits = uint64(math.Float32bits(float32(v)))
	} else {
		node.Bits = math.Float64bits(v)
	}
	return node
}

// NewBool returns a bool scalar.
func NewBool(v bool) *Node {
	node := &Node{Kind: KindScalar, Type: schema.Bool}
	if v {
		node.Bits = 1
	}
	return node
}

// NewText returns a char or cstring scalar.
func NewText(typeName, text string) *Node {
	return &Node{Kind: KindScalar, Type: typeName, Text: text}
}

// NewOpaque returns an opaque node owning a copy of data.
func NewOpaque(typeName string, data []byte) *Node {
	return &Node{Kind: KindOpaque, Type: typeName, Raw: bytes.Clone(data)}
}

// NewComposite returns a composite of the given members.
func NewComposite(typeName string, version int, members ...Member) *Node {
	return &Node{Kind: KindComposite, Type: typeName, Version: version, Fields: members}
}

// NewList returns a list of the given items.
func NewList(elementType string, items ...*Node) *Node {
	return &Node{Kind: KindList, Type: elementType, Items: items}
}

func truncate(v uint64, size int) uint64 {
	if size <= 0 || size >= 8 {
		return v
	}
	return v & (1<<(8*size) - 1)
}

// Uint returns the raw bits of an integer or bool scalar.
func (n *Node) Uint() uint64 { return n.Bits }

// Int returns an integer scalar's value, sign-extended for signed
// types.
func (n *Node) Int() int64 {
	if !schema.IsSigned(n.Type) {
		return int64(n.Bits)
	}
	size, _ := schema.ScalarSize(n.Type)
	shift := 64 - 8*size
	return int64(n.Bits<<shift) >> shift
}

// Float returns a float scalar's value.
func (n *Node) Float() float64 {
	if n.Type == schema.F32 {
		return float64(math.Float32frombits(uint32(n.Bits)))
	}
	return math.Float64frombits(n.Bits)
}

// Bool reports whether a bool scalar is non-zero.
func (n *Node) Bool() bool { return n.Bits != 0 }

// SetUint stores v in an integer scalar. It fails with ErrOverflow if
// v does not fit the type's width.
func (n *Node) SetUint(v uint64) error {
	if !schema.IsInteger(n.Type) {
		return fmt.Errorf("%w: SetUint on %s", ErrSchemaMismatch, n.Type)
	}
	size, _ := schema.ScalarSize(n.Type)
	if schema.IsSigned(n.Type) {
		if v > uint64(math.MaxInt64)>>(64-8*size) {
			return fmt.Errorf("%w: %d does not fit %s", ErrOverflow, v, n.Type)
		}
	} else if !binio.FitsUint(v, size) {
		return fmt.Errorf("%w: %d does not fit %s", ErrOverflow, v, n.Type)
	}
	n.Bits = v
	return nil
}

// SetInt stores v in an integer scalar. It fails with ErrOverflow if v
// is out of the type's range.
func (n *Node) SetInt(v int64) error {
	if !schema.IsInteger(n.Type) {
		return fmt.Errorf("%w: SetInt on %s", ErrSchemaMismatch, n.Type)
	}
	size, _ := schema.ScalarSize(n.Type)
	if !schema.IsSigned(n.Type) {
		if v < 0 {
			return fmt.Errorf("%w: %d does not fit %s", ErrOverflow, v, n.Type)
		}
		return n.SetUint(uint64(v))
	}
	bits := 8 * size
	minimum := int64(-1) << (bits - 1)
	maximum := -(minimum + 1)
	if v < minimum || v > maximum {
		return fmt.Errorf("%w: %d does not fit %s", ErrOverflow, v, n.Type)
	}
	n.Bits = truncate(uint64(v), size)
	return nil
}

// SetFloat stores v in a float scalar, rounding to f32 as needed.
func (n *Node) SetFloat(v float64) error {
	switch n.Type {
	case schema.F32:
		n.Bits = uint64(math.Float32bits(float32(v)))
	case schema.F64:
		n.Bits = math.Float64bits(v)
	default:
		return fmt.Errorf("%w: SetFloat on %s", ErrSchemaMismatch, n.Type)
	}
	return nil
}

// SetBool stores v in a bool scalar.
func (n *Node) SetBool(v bool) error {
	if n.Type != schema.Bool {
		return fmt.Errorf("%w: SetBool on %s", ErrSchemaMismatch, n.Type)
	}
	n.Bits = 0
	if v {
		n.Bits = 1
	}
	return nil
}

// SetText replaces the text of a char or cstring scalar and drops any
// raw fallback bytes. Width is checked on encode.
func (n *Node) SetText(text string) error {
	if n.Type != schema.Char && n.Type != schema.CString {
		return fmt.Errorf("%w: SetText on %s", ErrSchemaMismatch, n.Type)
	}
	n.Text = text
	n.Raw = nil
	return nil
}

// Field returns the value of the named field of a composite, or nil.
func (n *Node) Field(name string) *Node {
	for _, member := range n.Fields {
		if member.Name == name {
			return member.Value
		}
	}
	return nil
}

// SetField replaces the named field, appending it if absent.
func (n *Node) SetField(name string, value *Node) {
	for i := range n.Fields {
		if n.Fields[i].Name == name {
			n.Fields[i].Value = value
			return
		}
	}
	n.Fields = append(n.Fields, Member{Name: name, Value: value})
}

// Lookup resolves a dotted path with list indexes, such as
// "crew[2].callsign", relative to n.
func (n *Node) Lookup(path string) (*Node, error) {
	current := n
	rest := path
	for rest != "" {
		var segment string
		segment, rest, _ = strings.Cut(rest, ".")
		name, indexes, err := splitIndexes(segment)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNoSuchField, path, err)
		}
		if name != "" {
			next := current.Field(name)
			if next == nil {
				return nil, fmt.Errorf("%w: %s", ErrNoSuchField, path)
			}
			current = next
		}
		for _, index := range indexes {
			if current.Kind != KindList || index >= len(current.Items) {
				return nil, fmt.Errorf("%w: %s", ErrNoSuchField, path)
			}
			current = current.Items[index]
		}
	}
	return current, nil
}

func splitIndexes(segment string) (string, []int, error) {
	name, rest, found := strings.Cut(segment, "[")
	if !found {
		return segment, nil, nil
	}
	var indexes []int
	rest = "[" + rest
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("malformed index in %q", segment)
		}
		closing := strings.IndexByte(rest, ']')
		if closing < 0 {
			return "", nil, fmt.Errorf("unclosed index in %q", segment)
		}
		index, err := strconv.Atoi(rest[1:closing])
		if err != nil || index < 0 {
			return "", nil, fmt.Errorf("bad index in %q", segment)
		}
		indexes = append(indexes, index)
		rest = rest[closing+1:]
	}
	return name, indexes, nil
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := *n
	clone.Tail = bytes.Clone(n.Tail)
	clone.Raw = bytes.Clone(n.Raw)
	if n.Fields != nil {
		clone.Fields = make([]Member, len(n.Fields))
		for i, member := range n.Fields {
			clone.Fields[i] = Member{Name: member.Name, Value: member.Value.Clone()}
		}
	}
	if n.Items != nil {
		clone.Items = make([]*Node, len(n.Items))
		for i, item := range n.Items {
			clone.Items[i] = item.Clone()
		}
	}
	if n.Spans != nil {
		clone.Spans = make([]Span, len(n.Spans))
		for i, span := range n.Spans {
			clone.Spans[i] = Span{Offset: span.Offset, Data: bytes.Clone(span.Data)}
		}
	}
	return &clone
}

// Size estimates the memory n holds, in bytes.
func (n *Node) Size() int {
	if n == nil {
		return 0
	}
	const overhead = 160
	size := overhead + len(n.Type) + len(n.Text) + len(n.Tail) + len(n.Raw)
	for _, member := range n.Fields {
		size += 24 + len(member.Name) + member.Value.Size()
	}
	for _, item := range n.Items {
		size += 8 + item.Size()
	}
	for _, span := range n.Spans {
		size += 32 + len(span.Data)
	}
	return size
}

// Equal reports whether two trees are structurally identical.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Type != b.Type || a.Version != b.Version ||
		a.Bits != b.Bits || a.Text != b.Text ||
		!bytes.Equal(a.Tail, b.Tail) || !bytes.Equal(a.Raw, b.Raw) {
		return false
	}
	if len(a.Fields) != len(b.Fields) || len(a.Items) != len(b.Items) || len(a.Spans) != len(b.Spans) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i].Name != b.Fields[i].Name || !Equal(a.Fields[i].Value, b.Fields[i].Value) {
			return false
		}
	}
	for i := range a.Items {
		if !Equal(a.Items[i], b.Items[i]) {
			return false
		}
	}
	for i := range a.Spans {
		if a.Spans[i].Offset != b.Spans[i].Offset || !bytes.Equal(a.Spans[i].Data, b.Spans[i].Data) {
			return false
		}
	}
	return true
}
