// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	"github.com/pakforge/pakforge/lib/binio"
	"github.com/pakforge/pakforge/lib/schema"
)

// region is one contiguous run of output: the root struct's
// sequential part, a pointed value, or a span.
type region struct {
	writer *binio.Writer

	// locator is the pointer that places a pointed region, nil for the
	// root and for spans.
	locator *pointerSlot

	// preferred is where recorded pointer values or span offsets put
	// the region; -1 when they place it nowhere usable.
	preferred int
	offset    int
}

func (r *region) len() int { return r.writer.Len() }

// pointerSlot is a pointer field waiting for its target's final
// offset.
type pointerSlot struct {
	path     string
	region   *region
	at       int
	width    int
	stream   bool
	nullable bool
	recorded uint64

	// owner and start locate the struct holding the pointer, the base
	// of record-relative pointers.
	owner *region
	start int

	target *region
}

type encoder struct {
	registry *schema.Registry
	regions  []*region
	slots    []*pointerSlot
}

func (e *encoder) newRegion() *region {
	r := &region{writer: binio.NewWriter()}
	e.regions = append(e.regions, r)
	return r
}

func mismatch(path, format string, args ...any) error {
	return fieldErrorf(path, -1, ErrSchemaMismatch, format, args...)
}

// Encode writes node back to bytes. Count fields are recomputed from
// list lengths and pointer fields from where their targets land. An
// opaque root encodes to its bytes unchanged.
func (c *Codec) Encode(node *Node) ([]byte, error) {
	if node == nil {
		return nil, mismatch("", "nil node")
	}
	if node.Kind == KindOpaque {
		return bytes.Clone(node.Raw), nil
	}
	if node.Kind != KindComposite {
		return nil, mismatch(node.Type, "root is a %s, want a composite or opaque node", node.Kind)
	}
	definition, ok := c.registry.Lookup(node.Type, node.Version)
	if !ok || node.Version == 0 {
		return nil, mismatch(node.Type, "type %s@%d is not registered", node.Type, node.Version)
	}

	e := &encoder{registry: c.registry}
	root := e.newRegion()
	root.preferred = 0
	if err := e.encodeStruct(root, definition, node, node.Type, 0); err != nil {
		return nil, err
	}
	for _, span := range node.Spans {
		if span.Offset < 0 {
			return nil, mismatch(node.Type, "span at negative offset %d", span.Offset)
		}
		r := e.newRegion()
		r.writer.PutBytes(span.Data)
		r.preferred = span.Offset
	}
	return e.layout(node.Type)
}

func (e *encoder) encodeStruct(r *region, definition *schema.Type, node *Node, path string, depth int) error {
	if depth > maxDepth {
		return mismatch(path, "nesting deeper than %d", maxDepth)
	}
	if node == nil || node.Kind != KindComposite {
		return mismatch(path, "want composite %s@%d", definition.Name, definition.Version)
	}
	if node.Type != definition.Name || node.Version != definition.Version {
		return mismatch(path, "value is %s@%d, schema wants %s@%d", node.Type, node.Version, definition.Name, definition.Version)
	}

	members := make(map[string]*Node, len(node.Fields))
	for _, member := range node.Fields {
		if field, _ := definition.Field(member.Name); field == nil {
			return mismatch(path, "unknown field %q", member.Name)
		}
		if _, duplicate := members[member.Name]; duplicate {
			return mismatch(path, "field %q appears twice", member.Name)
		}
		members[member.Name] = member.Value
	}

	counts, err := countValues(definition, members, path)
	if err != nil {
		return err
	}
	values := make(map[string]*Node, len(members))
	for name, value := range members {
		values[name] = value
	}
	for name, count := range counts {
		counter, _ := definition.Field(name)
		values[name] = &Node{Kind: KindScalar, Type: counter.Type, Bits: count}
	}

	start := r.len()
	slots := make(map[string]*pointerSlot)
	for i := range definition.Fields {
		field := &definition.Fields[i]
		if definition.Pointed(field.Name) {
			continue
		}
		member := members[field.Name]
		fieldPath := path + "." + field.Name
		if !present(field, values) {
			if member != nil {
				return mismatch(fieldPath, "present although its condition on %s does not hold", field.When.Field)
			}
			continue
		}
		if member == nil {
			return mismatch(fieldPath, "missing")
		}

		if field.Pointer != nil || counts != nil && hasCount(counts, field.Name) {
			if err := checkScalar(member, field.Type, fieldPath); err != nil {
				return err
			}
		}
		switch {
		case field.Pointer != nil:
			size, _ := schema.ScalarSize(field.Type)
			slot := &pointerSlot{
				path:     fieldPath,
				region:   r,
				at:       r.len(),
				width:    size,
				stream:   field.Pointer.Base == schema.BaseStream,
				nullable: field.Pointer.Nullable,
				recorded: member.Bits,
				owner:    r,
				start:    start,
			}
			r.writer.PutZeros(size)
			slots[field.Pointer.Target] = slot
			e.slots = append(e.slots, slot)

		case hasCount(counts, field.Name):
			if err := putInteger(r.writer, field.Type, counts[field.Name], fieldPath); err != nil {
				return err
			}

		default:
			if err := e.encodeField(r, definition, field, member, fieldPath, depth); err != nil {
				return err
			}
		}
	}

	for i := range definition.Fields {
		field := &definition.Fields[i]
		if !definition.Pointed(field.Name) {
			continue
		}
		member := members[field.Name]
		slot := slots[field.Name]
		fieldPath := path + "." + field.Name
		if slot == nil {
			if member != nil {
				return mismatch(fieldPath, "present although its pointer is absent")
			}
			continue
		}
		if member == nil {
			if !slot.nullable {
				return mismatch(fieldPath, "missing, and its pointer is not nullable")
			}
			continue
		}
		target := e.newRegion()
		target.locator = slot
		slot.target = target
		if err := e.encodeField(target, definition, field, member, fieldPath, depth); err != nil {
			return err
		}
	}
	return nil
}

func hasCount(counts map[string]uint64, name string) bool {
	_, ok := counts[name]
	return ok
}

// countValues derives every count field from the length of the arrays
// it sizes.
func countValues(definition *schema.Type, members map[string]*Node, path string) (map[string]uint64, error) {
	var counts map[string]uint64
	for i := range definition.Fields {
		field := &definition.Fields[i]
		if field.Type != schema.Array || field.Count == nil || field.Count.Field == "" {
			continue
		}
		list := members[field.Name]
		if list == nil {
			continue
		}
		if list.Kind != KindList {
			return nil, mismatch(path+"."+field.Name, "want a list, have a %s", list.Kind)
		}
		length := uint64(len(list.Items))
		if previous, ok := counts[field.Count.Field]; ok && previous != length {
			return nil, mismatch(path+"."+field.Name,
				"arrays sized by %s have %d and %d items", field.Count.Field, previous, length)
		}
		if counts == nil {
			counts = make(map[string]uint64)
		}
		counts[field.Count.Field] = length
	}
	return counts, nil
}

func checkScalar(node *Node, typeName, path string) error {
	if node == nil || node.Kind != KindScalar || node.Type != typeName {
		have := "nothing"
		if node != nil {
			have = fmt.Sprintf("%s %s", node.Kind, node.Type)
		}
		return mismatch(path, "want %s, have %s", typeName, have)
	}
	return nil
}

// putInteger writes an integer, checking that it fits the type's
// range.
func putInteger(writer *binio.Writer, typeName string, value uint64, path string) error {
	size, _ := schema.ScalarSize(typeName)
	limit := uint64(math.MaxUint64) >> (64 - 8*size)
	if schema.IsSigned(typeName) {
		limit >>= 1
	}
	if value > limit {
		return fieldErrorf(path, -1, ErrOverflow, "%d does not fit %s", value, typeName)
	}
	return writer.PutUint(size, value)
}

func (e *encoder) encodeField(r *region, owner *schema.Type, field *schema.Field, node *Node, path string, depth int) error {
	if field.Type != schema.Array {
		return e.encodeValue(r, owner, field, field.Type, node, path, depth)
	}
	if node == nil || node.Kind != KindList || node.Type != field.Of {
		return mismatch(path, "want a list of %s", field.Of)
	}
	if fixed := field.Count.Fixed; fixed > 0 && len(node.Items) != fixed {
		return mismatch(path, "fixed array has %d items, want %d", len(node.Items), fixed)
	}
	element := schema.Field{
		Name:     field.Name,
		Type:     field.Of,
		Size:     field.Size,
		Encoding: field.Encoding,
		Version:  field.Version,
	}
	for i, item := range node.Items {
		if err := e.encodeValue(r, owner, &element, field.Of, item, fmt.Sprintf("%s[%d]", path, i), depth); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeValue(r *region, owner *schema.Type, field *schema.Field, typeName string, node *Node, path string, depth int) error {
	if size, ok := schema.ScalarSize(typeName); ok {
		if err := checkScalar(node, typeName, path); err != nil {
			return err
		}
		if !binio.FitsUint(node.Bits, size) {
			return fieldErrorf(path, -1, ErrOverflow, "bits %#x do not fit %s", node.Bits, typeName)
		}
		return r.writer.PutUint(size, node.Bits)
	}

	switch typeName {
	case schema.Char:
		if err := checkScalar(node, schema.Char, path); err != nil {
			return err
		}
		encoded, err := encodeChar(field.Encoding, node, field.Size)
		if err != nil {
			return &FieldError{Path: path, Offset: -1, Err: err}
		}
		r.writer.PutBytes(encoded)
		return nil

	case schema.CString:
		if err := checkScalar(node, schema.CString, path); err != nil {
			return err
		}
		encoded, err := encodeCString(field.Encoding, node)
		if err != nil {
			return &FieldError{Path: path, Offset: -1, Err: err}
		}
		r.writer.PutBytes(encoded)
		return nil

	case schema.Bytes:
		if node == nil || node.Kind != KindOpaque {
			return mismatch(path, "want opaque bytes")
		}
		if len(node.Raw) > field.Size {
			return fieldErrorf(path, -1, ErrFieldTooLong, "%d bytes in a %d-byte field", len(node.Raw), field.Size)
		}
		r.writer.PutBytes(node.Raw)
		r.writer.PutZeros(field.Size - len(node.Raw))
		return nil
	}

	nested, ok := e.registry.Lookup(typeName, owner.StructVersion(field))
	if !ok {
		return mismatch(path, "struct type %s@%d is not registered", typeName, owner.StructVersion(field))
	}
	return e.encodeStruct(r, nested, node, path, depth+1)
}

// layout assigns every region its final offset and returns the
// assembled bytes. Regions go where their recorded pointers and span
// offsets say if that reproduces a gap-free, conflict-free buffer;
// otherwise they are packed in that same order and pointers are
// rewritten.
func (e *encoder) layout(path string) ([]byte, error) {
	for _, r := range e.regions[1:] {
		slot := r.locator
		if slot == nil {
			continue
		}
		r.preferred = -1
		if slot.owner.preferred < 0 || slot.recorded > math.MaxInt32 {
			continue
		}
		base := 0
		if !slot.stream {
			base = slot.owner.preferred + slot.start
		}
		r.preferred = base + int(slot.recorded)
	}

	for _, r := range e.regions {
		r.offset = r.preferred
	}
	if data, ok := e.assembleInPlace(); ok {
		return data, nil
	}

	packed := slices.Clone(e.regions[1:])
	slices.SortStableFunc(packed, func(a, b *region) int {
		return preferredOrder(a) - preferredOrder(b)
	})
	cursor := e.regions[0].len()
	e.regions[0].offset = 0
	for _, r := range packed {
		r.offset = cursor
		cursor += r.len()
	}
	if err := e.patchPointers(); err != nil {
		return nil, err
	}
	out := make([]byte, cursor)
	for _, r := range e.regions {
		copy(out[r.offset:], r.writer.Bytes())
	}
	return out, nil
}

func preferredOrder(r *region) int {
	if r.preferred < 0 {
		return math.MaxInt
	}
	return r.preferred
}

// assembleInPlace writes each region at its preferred offset. It
// fails if any region has no usable offset, a byte is left unwritten,
// or two regions share a byte. Only pointed regions may share bytes,
// and only when they agree, since input can point two fields at the
// same data; the root and spans never overlap anything.
func (e *encoder) assembleInPlace() ([]byte, bool) {
	total, extent := 0, 0
	for _, r := range e.regions {
		if r.offset < 0 {
			return nil, false
		}
		total += r.len()
		extent = max(extent, r.offset+r.len())
	}
	if extent > total {
		return nil, false
	}
	if err := e.patchPointers(); err != nil {
		return nil, false
	}

	out := make([]byte, extent)
	owners := make([]*region, extent)
	for _, r := range e.regions {
		for i, b := range r.writer.Bytes() {
			at := r.offset + i
			if previous := owners[at]; previous != nil {
				if previous.locator == nil || r.locator == nil || out[at] != b {
					return nil, false
				}
			}
			out[at] = b
			owners[at] = r
		}
	}
	for _, owner := range owners {
		if owner == nil {
			return nil, false
		}
	}
	return out, true
}

// patchPointers writes every pointer field from the current region
// offsets.
func (e *encoder) patchPointers() error {
	for _, slot := range e.slots {
		var value int
		if slot.target != nil {
			base := 0
			if !slot.stream {
				base = slot.owner.offset + slot.start
			}
			value = slot.target.offset - base
			if value < 0 {
				return fieldErrorf(slot.path, -1, ErrOverflow, "target lies %d bytes before its base", -value)
			}
		}
		if !binio.FitsUint(uint64(value), slot.width) {
			return fieldErrorf(slot.path, -1, ErrOverflow, "offset %d does not fit %d bytes", value, slot.width)
		}
		if err := slot.region.writer.PatchUint(slot.at, slot.width, uint64(value)); err != nil {
			return fieldErrorf(slot.path, -1, ErrOverflow, "%v", err)
		}
	}
	return nil
}
