// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/pakforge/pakforge/lib/schema"
)

const testSchemas = `
types:
  - name: ship
    version: 1
    fields:
      - {name: id, type: u32}
      - {name: name, type: char, size: 16}

  - name: crew
    version: 1
    fields:
      - {name: count, type: u16}
      - {name: members, type: array, of: member, count: count}
  - name: member
    version: 1
    fields:
      - {name: rank, type: i8}
      - {name: callsign, type: cstring}

  - name: cargo
    version: 1
    fields:
      - {name: kind, type: u8}
      - {name: mass, type: f32, when: {field: kind, equals: [1, 2]}}
      - {name: label, type: cstring, when: {field: kind, not_equals: [0]}}

  - name: station
    version: 1
    fields:
      - {name: label_at, type: u32, pointer: {target: label}}
      - {name: table_at, type: u16, pointer: {target: table, nullable: true}}
      - {name: flags, type: u8}
      - {name: label, type: cstring}
      - {name: table, type: array, of: u16, count: remaining}

  - name: grid
    version: 1
    fields:
      - {name: cells, type: array, of: u32, count: remaining}

  - name: tally
    version: 1
    fields:
      - {name: n, type: u32}
      - {name: items, type: array, of: u32, count: n}

  - name: alias
    version: 1
    fields:
      - {name: first_at, type: u16, pointer: {target: first}}
      - {name: second_at, type: u16, pointer: {target: second}}
      - {name: first, type: cstring}
      - {name: second, type: cstring}

  - name: blob
    version: 1
    fields:
      - {name: magic, type: bytes, size: 4}
      - {name: title, type: char, size: 8, encoding: latin1}
`

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	registry, err := schema.ParseYAML([]byte(testSchemas))
	if err != nil {
		t.Fatalf("ParseYAML failed: %v", err)
	}
	if err := registry.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return New(registry)
}

func shipBytes() []byte {
	data := binary.LittleEndian.AppendUint32(nil, 42)
	name := make([]byte, 16)
	copy(name, "Explorer")
	return append(data, name...)
}

func roundTrip(t *testing.T, codec *Codec, data []byte, typeName string) *Node {
	t.Helper()
	node, err := codec.Decode(data, typeName, 0)
	if err != nil {
		t.Fatalf("Decode(%s) failed: %v", typeName, err)
	}
	encoded, err := codec.Encode(node)
	if err != nil {
		t.Fatalf("Encode(%s) failed: %v", typeName, err)
	}
	if !bytes.Equal(encoded, data) {
		t.Fatalf("Encode(Decode(%s)) = %x, want %x", typeName, encoded, data)
	}
	return node
}

func TestDecodeShip(t *testing.T) {
	codec := newTestCodec(t)
	node := roundTrip(t, codec, shipBytes(), "ship")

	if node.Kind != KindComposite || node.Type != "ship" || node.Version != 1 {
		t.Fatalf("root = %s %s@%d, want composite ship@1", node.Kind, node.Type, node.Version)
	}
	if got := node.Field("id").Uint(); got != 42 {
		t.Errorf("id = %d, want 42", got)
	}
	name := node.Field("name")
	if name.Text != "Explorer" || name.Tail != nil || len(name.Raw) != 0 {
		t.Errorf("name = %q tail %x raw %x, want Explorer with no tail", name.Text, name.Tail, name.Raw)
	}
	if len(node.Spans) != 0 {
		t.Errorf("spans = %v, want none", node.Spans)
	}
}

func TestEditShipName(t *testing.T) {
	codec := newTestCodec(t)
	node, err := codec.Decode(shipBytes(), "ship", 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if err := node.Field("name").SetText("Pathfinder"); err != nil {
		t.Fatalf("SetText failed: %v", err)
	}
	encoded, err := codec.Encode(node)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(encoded) != 20 || !bytes.HasPrefix(encoded[4:], []byte("Pathfinder\x00")) {
		t.Errorf("encoded = %q", encoded)
	}

	if err := node.Field("name").SetText("a name far longer than sixteen"); err != nil {
		t.Fatalf("SetText failed: %v", err)
	}
	_, err = codec.Encode(node)
	if !errors.Is(err, ErrFieldTooLong) {
		t.Fatalf("Encode error = %v, want ErrFieldTooLong", err)
	}
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Path != "ship.name" {
		t.Errorf("Encode error = %v, want a FieldError at ship.name", err)
	}
}

func TestCharTailAndRawFallback(t *testing.T) {
	codec := newTestCodec(t)

	withTail := shipBytes()
	withTail[4+10] = 0x7F
	node := roundTrip(t, codec, withTail, "ship")
	if name := node.Field("name"); name.Text != "Explorer" || len(name.Tail) != 8 {
		t.Errorf("name = %q tail %x, want Explorer with an 8-byte tail", name.Text, name.Tail)
	}

	invalid := shipBytes()
	invalid[4] = 0xFF
	node = roundTrip(t, codec, invalid, "ship")
	if name := node.Field("name"); len(name.Raw) != 16 {
		t.Errorf("name raw = %x, want the 16 field bytes", name.Raw)
	}
}

func TestLatin1Encoding(t *testing.T) {
	codec := newTestCodec(t)
	data := []byte{'P', 'A', 'K', 0, 'C', 0xE9, 'z', 'a', 'n', 'n', 'e', 0}
	node := roundTrip(t, codec, data, "blob")
	if got := node.Field("title").Text; got != "Cézanne" {
		t.Errorf("title = %q, want Cézanne", got)
	}
	if magic := node.Field("magic"); magic.Kind != KindOpaque || !bytes.Equal(magic.Raw, []byte("PAK\x00")) {
		t.Errorf("magic = %s %x", magic.Kind, magic.Raw)
	}

	if err := node.Field("title").SetText("日本"); err != nil {
		t.Fatalf("SetText failed: %v", err)
	}
	if _, err := codec.Encode(node); !errors.Is(err, ErrUnencodable) {
		t.Errorf("Encode error = %v, want ErrUnencodable", err)
	}
}

func crewBytes() []byte {
	var data []byte
	data = binary.LittleEndian.AppendUint16(data, 2)
	data = append(data, 3)
	data = append(data, "Vega\x00"...)
	data = append(data, 0xFE)
	data = append(data, "Rigel\x00"...)
	return data
}

func TestCountedArray(t *testing.T) {
	codec := newTestCodec(t)
	node := roundTrip(t, codec, crewBytes(), "crew")

	member, err := node.Lookup("members[1]")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rank := member.Field("rank").Int(); rank != -2 {
		t.Errorf("members[1].rank = %d, want -2", rank)
	}
	callsign, err := node.Lookup("members[1].callsign")
	if err != nil || callsign.Text != "Rigel" {
		t.Errorf("members[1].callsign = %v, %v, want Rigel", callsign, err)
	}
	if _, err := node.Lookup("members[5]"); !errors.Is(err, ErrNoSuchField) {
		t.Errorf("Lookup(members[5]) error = %v, want ErrNoSuchField", err)
	}

	members := node.Field("members")
	members.Items = append(members.Items, NewComposite("member", 1,
		Member{Name: "rank", Value: NewInt(schema.I8, 1)},
		Member{Name: "callsign", Value: NewText(schema.CString, "Deneb")},
	))
	encoded, err := codec.Encode(node)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := append(crewBytes(), 1)
	want = append(want, "Deneb\x00"...)
	want[0] = 3
	if !bytes.Equal(encoded, want) {
		t.Errorf("encoded = %x, want %x", encoded, want)
	}
}

func TestGrowingRootKeepsTrailingSpan(t *testing.T) {
	codec := newTestCodec(t)
	data := []byte{1, 0, 0, 0, 5, 0, 0, 0, 0, 0, 0, 0}
	padding := []byte{0, 0, 0, 0}

	// The appended item's bytes may or may not match the padding it
	// would overwrite in place; the padding must survive either way.
	for _, appended := range []uint64{7, 0} {
		node := roundTrip(t, codec, data, "tally")
		if len(node.Spans) != 1 || node.Spans[0].Offset != 8 {
			t.Fatalf("spans = %+v, want padding at 8", node.Spans)
		}
		items := node.Field("items")
		items.Items = append(items.Items, NewUint(schema.U32, appended))

		encoded, err := codec.Encode(node)
		if err != nil {
			t.Fatalf("Encode(append %d) failed: %v", appended, err)
		}
		want := []byte{2, 0, 0, 0, 5, 0, 0, 0, byte(appended), 0, 0, 0}
		want = append(want, padding...)
		if !bytes.Equal(encoded, want) {
			t.Errorf("Encode(append %d) = %x, want %x", appended, encoded, want)
		}

		reread, err := codec.Decode(encoded, "tally", 1)
		if err != nil {
			t.Fatalf("Decode after append %d failed: %v", appended, err)
		}
		if len(reread.Spans) != 1 || reread.Spans[0].Offset != 12 || !bytes.Equal(reread.Spans[0].Data, padding) {
			t.Errorf("spans after append %d = %+v, want padding at 12", appended, reread.Spans)
		}
	}
}

func TestAliasedPointersRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	data := []byte{4, 0, 4, 0, 'H', 'i', 0}
	node := roundTrip(t, codec, data, "alias")
	if node.Field("first").Text != "Hi" || node.Field("second").Text != "Hi" {
		t.Errorf("first, second = %q, %q, want Hi twice", node.Field("first").Text, node.Field("second").Text)
	}

	// Once the shared bytes disagree, each value gets its own place.
	if err := node.Field("second").SetText("Yo"); err != nil {
		t.Fatalf("SetText failed: %v", err)
	}
	encoded, err := codec.Encode(node)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	reread, err := codec.Decode(encoded, "alias", 1)
	if err != nil {
		t.Fatalf("Decode after edit failed: %v", err)
	}
	if reread.Field("first").Text != "Hi" || reread.Field("second").Text != "Yo" {
		t.Errorf("first, second = %q, %q, want Hi and Yo", reread.Field("first").Text, reread.Field("second").Text)
	}
}

func TestConditionalFields(t *testing.T) {
	codec := newTestCodec(t)

	tests := []struct {
		name   string
		data   []byte
		fields []string
	}{
		{"none", []byte{0}, []string{"kind"}},
		{"label only", []byte{3, 'o', 'r', 'e', 0}, []string{"kind", "label"}},
		{"mass and label", append(append([]byte{1}, binary.LittleEndian.AppendUint32(nil, math.Float32bits(2.5))...), 'x', 0), []string{"kind", "mass", "label"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			node := roundTrip(t, codec, test.data, "cargo")
			if len(node.Fields) != len(test.fields) {
				t.Fatalf("fields = %d, want %v", len(node.Fields), test.fields)
			}
			for i, name := range test.fields {
				if node.Fields[i].Name != name {
					t.Errorf("field %d = %s, want %s", i, node.Fields[i].Name, name)
				}
			}
		})
	}

	node, err := codec.Decode([]byte{0}, "cargo", 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	node.SetField("label", NewText(schema.CString, "stray"))
	if _, err := codec.Encode(node); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Encode with a gated-off field error = %v, want ErrSchemaMismatch", err)
	}
}

// stationBytes lays out a header, a two-byte pad, a label and a table.
func stationBytes() []byte {
	var data []byte
	data = binary.LittleEndian.AppendUint32(data, 9)  // label at 9
	data = binary.LittleEndian.AppendUint16(data, 14) // table at 14
	data = append(data, 0x01)                         // flags
	data = append(data, 0xAA, 0xBB)                   // pad, offsets 7-8
	data = append(data, "Hub\x00"...)                 // 9-12
	data = append(data, 0xCC)                         // pad, offset 13
	data = binary.LittleEndian.AppendUint16(data, 100)
	data = binary.LittleEndian.AppendUint16(data, 200)
	return data
}

func TestPointerFields(t *testing.T) {
	codec := newTestCodec(t)
	node := roundTrip(t, codec, stationBytes(), "station")

	if label := node.Field("label"); label.Text != "Hub" {
		t.Errorf("label = %q, want Hub", label.Text)
	}
	table := node.Field("table")
	if len(table.Items) != 2 || table.Items[1].Uint() != 200 {
		t.Errorf("table = %+v, want [100 200]", table.Items)
	}
	if len(node.Spans) != 2 || node.Spans[0].Offset != 7 || node.Spans[1].Offset != 13 {
		t.Fatalf("spans = %+v, want gaps at 7 and 13", node.Spans)
	}

	// Growing the label moves everything after it.
	if err := node.Field("label").SetText("Hub Prime"); err != nil {
		t.Fatalf("SetText failed: %v", err)
	}
	encoded, err := codec.Encode(node)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	reread, err := codec.Decode(encoded, "station", 1)
	if err != nil {
		t.Fatalf("Decode after relayout failed: %v", err)
	}
	if got := reread.Field("label").Text; got != "Hub Prime" {
		t.Errorf("label after relayout = %q, want Hub Prime", got)
	}
	if items := reread.Field("table").Items; len(items) != 2 || items[0].Uint() != 100 {
		t.Errorf("table after relayout = %+v", items)
	}
	if got := reread.Field("label_at").Uint(); got != 9 {
		t.Errorf("label_at after relayout = %d, want 9", got)
	}
	if got := reread.Field("table_at").Uint(); got != 20 {
		t.Errorf("table_at after relayout = %d, want 20", got)
	}
}

func TestNullablePointer(t *testing.T) {
	codec := newTestCodec(t)
	var data []byte
	data = binary.LittleEndian.AppendUint32(data, 7)
	data = binary.LittleEndian.AppendUint16(data, 0)
	data = append(data, 0)
	data = append(data, "A\x00"...)
	node := roundTrip(t, codec, data, "station")
	if node.Field("table") != nil {
		t.Error("null pointer decoded a table")
	}
}

func TestRemainingArrayLeavesPartialElement(t *testing.T) {
	codec := newTestCodec(t)
	data := []byte{1, 0, 0, 0, 2, 0, 0, 0, 9, 9}
	node := roundTrip(t, codec, data, "grid")
	if got := len(node.Field("cells").Items); got != 2 {
		t.Errorf("cells = %d, want 2", got)
	}
	if len(node.Spans) != 1 || node.Spans[0].Offset != 8 {
		t.Errorf("spans = %+v, want the trailing two bytes", node.Spans)
	}
}

func TestTruncatedInput(t *testing.T) {
	codec := newTestCodec(t)
	tests := []struct {
		name     string
		data     []byte
		typeName string
	}{
		{"short ship", shipBytes()[:10], "ship"},
		{"empty", nil, "ship"},
		{"unterminated cstring", []byte{1, 0, 5, 'V', 'e'}, "crew"},
		{"count past end", []byte{0xFF, 0xFF, 1}, "crew"},
		{"pointer past end", []byte{200, 0, 0, 0, 0, 0, 0}, "station"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := codec.Decode(test.data, test.typeName, 0)
			if !errors.Is(err, ErrTruncatedInput) {
				t.Fatalf("Decode error = %v, want ErrTruncatedInput", err)
			}
			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Errorf("Decode error %v is not a *FieldError", err)
			}
		})
	}
}

func TestUnknownTypeIsOpaque(t *testing.T) {
	codec := newTestCodec(t)
	data := []byte("\x01\x02unknown payload\xFF")
	node, err := codec.Decode(data, "hull", 3)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if node.Kind != KindOpaque || !bytes.Equal(node.Raw, data) {
		t.Fatalf("node = %s %x, want opaque %x", node.Kind, node.Raw, data)
	}
	encoded, err := codec.Encode(node)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(encoded, data) {
		t.Errorf("Encode = %x, want %x", encoded, data)
	}
}

func TestEncodeMismatch(t *testing.T) {
	codec := newTestCodec(t)
	node, err := codec.Decode(shipBytes(), "ship", 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	wrongType := node.Clone()
	wrongType.SetField("id", NewFloat(schema.F32, 1))
	if _, err := codec.Encode(wrongType); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Encode(f32 id) error = %v, want ErrSchemaMismatch", err)
	}

	missing := node.Clone()
	missing.Fields = missing.Fields[:1]
	if _, err := codec.Encode(missing); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Encode(missing name) error = %v, want ErrSchemaMismatch", err)
	}

	wrongVersion := node.Clone()
	wrongVersion.Version = 7
	if _, err := codec.Encode(wrongVersion); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Encode(ship@7) error = %v, want ErrSchemaMismatch", err)
	}

	overflow := node.Clone()
	overflow.Field("id").Bits = 1 << 40
	if _, err := codec.Encode(overflow); !errors.Is(err, ErrOverflow) {
		t.Errorf("Encode(wide id) error = %v, want ErrOverflow", err)
	}
}

func TestCloneAndEqual(t *testing.T) {
	codec := newTestCodec(t)
	node, err := codec.Decode(stationBytes(), "station", 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	clone := node.Clone()
	if !Equal(node, clone) {
		t.Fatal("clone is not equal to its source")
	}
	clone.Spans[0].Data[0] = 0
	if Equal(node, clone) {
		t.Error("mutating the clone's span changed equality; spans are shared")
	}
	if node.Spans[0].Data[0] != 0xAA {
		t.Error("mutating the clone changed the source")
	}
	if node.Size() <= 0 {
		t.Errorf("Size() = %d, want positive", node.Size())
	}
}

func TestSetters(t *testing.T) {
	u8 := NewUint(schema.U8, 0)
	if err := u8.SetUint(256); !errors.Is(err, ErrOverflow) {
		t.Errorf("SetUint(256) on u8 error = %v, want ErrOverflow", err)
	}
	i16 := NewInt(schema.I16, 0)
	if err := i16.SetInt(-32768); err != nil {
		t.Errorf("SetInt(-32768) on i16 failed: %v", err)
	}
	if i16.Int() != -32768 || i16.Bits != 0x8000 {
		t.Errorf("i16 = %d bits %#x, want -32768 bits 0x8000", i16.Int(), i16.Bits)
	}
	if err := i16.SetInt(40000); !errors.Is(err, ErrOverflow) {
		t.Errorf("SetInt(40000) on i16 error = %v, want ErrOverflow", err)
	}
	f := NewFloat(schema.F32, 0)
	if err := f.SetFloat(0.5); err != nil || f.Float() != 0.5 {
		t.Errorf("f32 = %v, %v, want 0.5", f.Float(), err)
	}
	if err := f.SetText("x"); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("SetText on f32 error = %v, want ErrSchemaMismatch", err)
	}
}
