// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/pakforge/pakforge/lib/binio"
	"github.com/pakforge/pakforge/lib/schema"
)

// maxDepth bounds struct nesting through count-sized arrays of
// self-referencing types.
const maxDepth = 64

// Codec decodes and encodes records against one registry. It holds no
// per-call state and is safe for concurrent use.
type Codec struct {
	registry *schema.Registry
}

// New returns a codec backed by registry. The registry should have
// passed Validate.
func New(registry *schema.Registry) *Codec {
	return &Codec{registry: registry}
}

// Registry returns the registry the codec consults.
func (c *Codec) Registry() *schema.Registry {
	return c.registry
}

type extent struct {
	start, end int
}

type decoder struct {
	registry *schema.Registry
	data     []byte
	reader   *binio.Reader
	claims   []extent

	// targets holds every pointer target seen so far, ascending.
	// Remaining arrays stop at the nearest one.
	targets []int
}

// Decode decodes data as the given type. A version of zero selects
// the latest registered version. If the registry does not know the
// type, the result is a single opaque node holding all of data and
// the error is nil.
func (c *Codec) Decode(data []byte, typeName string, version int) (*Node, error) {
	definition, ok := c.registry.Lookup(typeName, version)
	if !ok {
		return &Node{Kind: KindOpaque, Type: typeName, Version: version, Raw: bytes.Clone(data)}, nil
	}
	d := &decoder{
		registry: c.registry,
		data:     data,
		reader:   binio.NewReader(data),
	}
	root, _, err := d.decodeStruct(definition, 0, 0, typeName, 0)
	if err != nil {
		return nil, err
	}
	root.Spans = d.gaps()
	return root, nil
}

func (d *decoder) truncated(path string, offset int, err error) error {
	return &FieldError{Path: path, Offset: offset, Err: fmt.Errorf("%w: %w", ErrTruncatedInput, err)}
}

func (d *decoder) bytesAt(offset, n int, path string) ([]byte, error) {
	if err := d.reader.Seek(offset); err != nil {
		return nil, d.truncated(path, offset, err)
	}
	data, err := d.reader.Bytes(n)
	if err != nil {
		return nil, d.truncated(path, offset, err)
	}
	d.claim(offset, offset+n)
	return data, nil
}

func (d *decoder) uintAt(offset, width int, path string) (uint64, error) {
	if err := d.reader.Seek(offset); err != nil {
		return 0, d.truncated(path, offset, err)
	}
	value, err := d.reader.Uint(width)
	if err != nil {
		return 0, d.truncated(path, offset, err)
	}
	d.claim(offset, offset+width)
	return value, nil
}

func (d *decoder) claim(start, end int) {
	if end > start {
		d.claims = append(d.claims, extent{start, end})
	}
}

func (d *decoder) addTarget(offset int) {
	i, found := slices.BinarySearch(d.targets, offset)
	if !found {
		d.targets = slices.Insert(d.targets, i, offset)
	}
}

// boundary returns where a remaining array starting at pos must stop:
// the nearest pointer target at or after pos, ignoring the start of
// the region being decoded, or the end of the data.
func (d *decoder) boundary(pos, region int) int {
	for i := sort.SearchInts(d.targets, pos); i < len(d.targets); i++ {
		if d.targets[i] != region {
			return d.targets[i]
		}
	}
	return len(d.data)
}

// gaps returns every byte range no field claimed.
func (d *decoder) gaps() []Span {
	slices.SortFunc(d.claims, func(a, b extent) int { return a.start - b.start })
	var spans []Span
	covered := 0
	for _, claim := range d.claims {
		if claim.start > covered {
			spans = append(spans, Span{Offset: covered, Data: bytes.Clone(d.data[covered:claim.start])})
		}
		covered = max(covered, claim.end)
	}
	if covered < len(d.data) {
		spans = append(spans, Span{Offset: covered, Data: bytes.Clone(d.data[covered:])})
	}
	return spans
}

// present evaluates a field's condition against the sibling values
// decoded or encoded so far.
func present(field *schema.Field, values map[string]*Node) bool {
	if field.When == nil {
		return true
	}
	gate := values[field.When.Field]
	if gate == nil {
		return false
	}
	return field.When.Matches(gate.Int())
}

// pointerTarget returns the absolute offset a pointer value locates.
// ok is false for a null nullable pointer.
func pointerTarget(pointer *schema.Pointer, start int, value uint64) (int, bool) {
	if pointer.Nullable && value == 0 {
		return 0, false
	}
	if value > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if pointer.Base == schema.BaseStream {
		return int(value), true
	}
	return start + int(value), true
}

// decodeStruct decodes one struct at start and returns it with the end
// of its sequential part. region is the start of the enclosing
// top-level or pointed region.
func (d *decoder) decodeStruct(definition *schema.Type, start, region int, path string, depth int) (*Node, int, error) {
	if depth > maxDepth {
		return nil, 0, fieldErrorf(path, start, ErrSchemaMismatch, "nesting deeper than %d", maxDepth)
	}
	values := make(map[string]*Node, len(definition.Fields))
	ordered := make([]*Node, len(definition.Fields))

	pos := start
	for i := range definition.Fields {
		field := &definition.Fields[i]
		if definition.Pointed(field.Name) || !present(field, values) {
			continue
		}
		value, next, err := d.decodeField(definition, field, pos, region, values, path+"."+field.Name, depth)
		if err != nil {
			return nil, 0, err
		}
		ordered[i] = value
		values[field.Name] = value
		pos = next
		if field.Pointer != nil {
			if target, ok := pointerTarget(field.Pointer, start, value.Bits); ok {
				d.addTarget(target)
			}
		}
	}
	end := pos

	for i := range definition.Fields {
		field := &definition.Fields[i]
		locator := definition.PointerFor(field.Name)
		if locator == nil {
			continue
		}
		offset := values[locator.Name]
		if offset == nil {
			continue
		}
		target, ok := pointerTarget(locator.Pointer, start, offset.Bits)
		if !ok {
			continue
		}
		fieldPath := path + "." + field.Name
		if target > len(d.data) {
			return nil, 0, fieldErrorf(fieldPath, target, ErrTruncatedInput,
				"%s locates offset %d beyond %d bytes", locator.Name, target, len(d.data))
		}
		value, _, err := d.decodeField(definition, field, target, target, values, fieldPath, depth)
		if err != nil {
			return nil, 0, err
		}
		ordered[i] = value
		values[field.Name] = value
	}

	node := &Node{Kind: KindComposite, Type: definition.Name, Version: definition.Version}
	for i, value := range ordered {
		if value != nil {
			node.Fields = append(node.Fields, Member{Name: definition.Fields[i].Name, Value: value})
		}
	}
	return node, end, nil
}

func (d *decoder) decodeField(owner *schema.Type, field *schema.Field, pos, region int, values map[string]*Node, path string, depth int) (*Node, int, error) {
	if field.Type == schema.Array {
		return d.decodeArray(owner, field, pos, region, values, path, depth)
	}
	return d.decodeValue(owner, field, field.Type, pos, region, path, depth)
}

func (d *decoder) decodeValue(owner *schema.Type, field *schema.Field, typeName string, pos, region int, path string, depth int) (*Node, int, error) {
	if size, ok := schema.ScalarSize(typeName); ok {
		bits, err := d.uintAt(pos, size, path)
		if err != nil {
			return nil, 0, err
		}
		return &Node{Kind: KindScalar, Type: typeName, Bits: bits}, pos + size, nil
	}

	switch typeName {
	case schema.Char:
		raw, err := d.bytesAt(pos, field.Size, path)
		if err != nil {
			return nil, 0, err
		}
		return decodeChar(field.Encoding, raw), pos + field.Size, nil

	case schema.CString:
		if pos > len(d.data) {
			return nil, 0, fieldErrorf(path, pos, ErrTruncatedInput, "cstring starts beyond %d bytes", len(d.data))
		}
		length := bytes.IndexByte(d.data[pos:], 0)
		if length < 0 {
			return nil, 0, fieldErrorf(path, pos, ErrTruncatedInput, "unterminated cstring")
		}
		d.claim(pos, pos+length+1)
		return decodeCString(field.Encoding, d.data[pos:pos+length]), pos + length + 1, nil

	case schema.Bytes:
		raw, err := d.bytesAt(pos, field.Size, path)
		if err != nil {
			return nil, 0, err
		}
		return &Node{Kind: KindOpaque, Type: schema.Bytes, Raw: bytes.Clone(raw)}, pos + field.Size, nil
	}

	nested, ok := d.registry.Lookup(typeName, owner.StructVersion(field))
	if !ok {
		return nil, 0, fieldErrorf(path, pos, ErrSchemaMismatch,
			"struct type %s@%d is not registered", typeName, owner.StructVersion(field))
	}
	return d.decodeStruct(nested, pos, region, path, depth+1)
}

func (d *decoder) decodeArray(owner *schema.Type, field *schema.Field, pos, region int, values map[string]*Node, path string, depth int) (*Node, int, error) {
	if field.Count == nil {
		return nil, 0, fieldErrorf(path, pos, ErrSchemaMismatch, "array has no count")
	}
	var count int
	switch {
	case field.Count.Fixed > 0:
		count = field.Count.Fixed

	case field.Count.Field != "":
		counter := values[field.Count.Field]
		if counter == nil {
			return nil, 0, fieldErrorf(path, pos, ErrSchemaMismatch, "count field %s is absent", field.Count.Field)
		}
		value := counter.Int()
		if value < 0 {
			return nil, 0, fieldErrorf(path, pos, ErrSchemaMismatch, "negative count %d in %s", value, field.Count.Field)
		}
		if value > int64(len(d.data)-min(pos, len(d.data))) {
			return nil, 0, fieldErrorf(path, pos, ErrTruncatedInput,
				"count %d exceeds the %d bytes left", value, len(d.data)-min(pos, len(d.data)))
		}
		count = int(value)

	case field.Count.Remaining:
		size, ok := d.registry.ElementSize(owner, field)
		if !ok || size == 0 {
			return nil, 0, fieldErrorf(path, pos, ErrSchemaMismatch, "remaining array needs fixed-size elements")
		}
		if limit := d.boundary(pos, region); limit > pos {
			count = (limit - pos) / size
		}
	}

	element := schema.Field{
		Name:     field.Name,
		Type:     field.Of,
		Size:     field.Size,
		Encoding: field.Encoding,
		Version:  field.Version,
	}
	list := &Node{Kind: KindList, Type: field.Of, Items: make([]*Node, 0, min(count, 1024))}
	for i := range count {
		item, next, err := d.decodeValue(owner, &element, field.Of, pos, region, fmt.Sprintf("%s[%d]", path, i), depth)
		if err != nil {
			return nil, 0, err
		}
		list.Items = append(list.Items, item)
		pos = next
	}
	return list, pos, nil
}
