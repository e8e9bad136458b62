// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package diff

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/pakforge/pakforge/lib/record"
	"github.com/pakforge/pakforge/lib/schema"
)

// checkReconstructs verifies that regions describe a and b exactly.
func checkReconstructs(t *testing.T, a, b []byte, regions []Region) {
	t.Helper()
	rebuilt, err := Apply(a, b, regions)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !bytes.Equal(rebuilt, b) {
		t.Fatalf("Apply = %x, want %x", rebuilt, b)
	}
	reverted, err := Revert(a, b, regions)
	if err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if !bytes.Equal(reverted, a) {
		t.Fatalf("Revert = %x, want %x", reverted, a)
	}
	for i, region := range regions {
		if region.ALength == 0 && region.BLength == 0 {
			t.Errorf("region %d is empty: %s", i, region)
		}
		if i > 0 {
			previous := regions[i-1]
			if region.AOffset <= previous.AOffset+previous.ALength-1 && previous.ALength > 0 {
				t.Errorf("region %d overlaps region %d", i, i-1)
			}
		}
	}
}

func TestBytesEqualBuffers(t *testing.T) {
	for _, data := range [][]byte{nil, {}, []byte("same"), bytes.Repeat([]byte{0}, 1000)} {
		if regions := Bytes(data, append([]byte(nil), data...)); len(regions) != 0 {
			t.Errorf("Bytes(%q, same) = %v, want none", data, regions)
		}
	}
}

func TestBytesRegions(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want []Region
	}{
		{
			name: "single change",
			a:    "id=42 name=Explorer",
			b:    "id=43 name=Explorer",
			want: []Region{{Kind: Changed, AOffset: 4, ALength: 1, BOffset: 4, BLength: 1}},
		},
		{
			name: "insertion",
			a:    "abcdef",
			b:    "abcXYdef",
			want: []Region{{Kind: Inserted, AOffset: 3, ALength: 0, BOffset: 3, BLength: 2}},
		},
		{
			name: "deletion",
			a:    "abcXYdef",
			b:    "abcdef",
			want: []Region{{Kind: Deleted, AOffset: 3, ALength: 2, BOffset: 3, BLength: 0}},
		},
		{
			name: "from empty",
			a:    "",
			b:    "new",
			want: []Region{{Kind: Inserted, AOffset: 0, ALength: 0, BOffset: 0, BLength: 3}},
		},
		{
			name: "two separate edits",
			a:    "aaaa1bbbb2cccc",
			b:    "aaaa9bbbbcccc",
			want: []Region{
				{Kind: Changed, AOffset: 4, ALength: 1, BOffset: 4, BLength: 1},
				{Kind: Deleted, AOffset: 9, ALength: 1, BOffset: 9, BLength: 0},
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a, b := []byte(test.a), []byte(test.b)
			regions := Bytes(a, b)
			if len(regions) != len(test.want) {
				t.Fatalf("Bytes = %v, want %v", regions, test.want)
			}
			for i := range regions {
				if regions[i] != test.want[i] {
					t.Errorf("region %d = %s, want %s", i, regions[i], test.want[i])
				}
			}
			checkReconstructs(t, a, b, regions)
		})
	}
}

func TestBytesRandomPairsReconstruct(t *testing.T) {
	random := rand.New(rand.NewSource(7))
	for round := range 200 {
		a := make([]byte, random.Intn(64))
		random.Read(a)
		for i := range a {
			a[i] %= 4
		}
		b := append([]byte(nil), a...)
		for range random.Intn(6) {
			at := random.Intn(len(b) + 1)
			switch random.Intn(3) {
			case 0:
				b = append(b[:at], append([]byte{byte(random.Intn(4))}, b[at:]...)...)
			case 1:
				if at < len(b) {
					b = append(b[:at], b[at+1:]...)
				}
			case 2:
				if at < len(b) {
					b[at] = byte(random.Intn(4))
				}
			}
		}
		regions := Bytes(a, b)
		if bytes.Equal(a, b) != (len(regions) == 0) {
			t.Fatalf("round %d: equal=%v but %d regions", round, bytes.Equal(a, b), len(regions))
		}
		checkReconstructs(t, a, b, regions)

		again := Bytes(a, b)
		if len(again) != len(regions) {
			t.Fatalf("round %d: Bytes is not deterministic", round)
		}
		for i := range again {
			if again[i] != regions[i] {
				t.Fatalf("round %d: Bytes is not deterministic", round)
			}
		}
	}
}

func TestBytesCostFallback(t *testing.T) {
	a := []byte("HEADER-abcdefghij-FOOTER")
	b := []byte("HEADER-0123456789-FOOTER")

	regions := BytesWithCost(a, b, 3)
	want := Region{Kind: Changed, AOffset: 7, ALength: 10, BOffset: 7, BLength: 10}
	if len(regions) != 1 || regions[0] != want {
		t.Fatalf("BytesWithCost = %v, want [%s]", regions, want)
	}
	checkReconstructs(t, a, b, regions)

	if regions := BytesWithCost(a, a, 0); len(regions) != 0 {
		t.Errorf("BytesWithCost(a, a, 0) = %v, want none", regions)
	}
}

func TestApplyRejectsBadRegions(t *testing.T) {
	a, b := []byte("abc"), []byte("abd")
	bad := [][]Region{
		{{Kind: Changed, AOffset: 2, ALength: 5, BOffset: 2, BLength: 1}},
		{{Kind: Changed, AOffset: 1, ALength: 1, BOffset: 2, BLength: 1}},
		{},
	}
	for i, regions := range bad {
		if _, err := Apply(a, b, regions); !errors.Is(err, ErrRegionMismatch) {
			t.Errorf("case %d: Apply error = %v, want ErrRegionMismatch", i, err)
		}
	}
}

func ship(id uint64, name string, crew ...string) *record.Node {
	list := record.NewList("member")
	for _, callsign := range crew {
		list.Items = append(list.Items, record.NewComposite("member", 1,
			record.Member{Name: "callsign", Value: record.NewText(schema.CString, callsign)},
		))
	}
	return record.NewComposite("ship", 1,
		record.Member{Name: "id", Value: record.NewUint(schema.U32, id)},
		record.Member{Name: "name", Value: record.NewText(schema.Char, name)},
		record.Member{Name: "crew", Value: list},
	)
}

func TestTreesIdentical(t *testing.T) {
	a := ship(42, "Explorer", "Rigel")
	if changes := Trees(a, a.Clone()); len(changes) != 0 {
		t.Errorf("Trees(a, clone) = %v, want none", changes)
	}
}

func TestTreesReportsFieldChanges(t *testing.T) {
	a := ship(42, "Explorer", "Rigel", "Vega")
	b := ship(42, "Pathfinder", "Rigel", "Deneb", "Altair")
	b.Fields = append(b.Fields, record.Member{Name: "flags", Value: record.NewUint(schema.U8, 1)})

	changes := Trees(a, b)
	want := []struct {
		path string
		kind ChangeKind
	}{
		{"ship.name", Modified},
		{"ship.crew[1].callsign", Modified},
		{"ship.crew[2]", Added},
		{"ship.flags", Added},
	}
	if len(changes) != len(want) {
		t.Fatalf("Trees = %v, want %d changes", changes, len(want))
	}
	for i, change := range changes {
		if change.Path != want[i].path || change.Kind != want[i].kind {
			t.Errorf("change %d = %s %s, want %s %s", i, change.Kind, change.Path, want[i].kind, want[i].path)
		}
	}
	if got := changes[0].String(); got != `~ ship.name: "Explorer" -> "Pathfinder"` {
		t.Errorf("String = %q", got)
	}

	reverse := Trees(b, a)
	if reverse[len(reverse)-1].Kind != Removed || reverse[len(reverse)-1].Path != "ship.flags" {
		t.Errorf("reverse last change = %s %s, want removed ship.flags",
			reverse[len(reverse)-1].Kind, reverse[len(reverse)-1].Path)
	}
}

func TestTreesTypeChangeIsOneModification(t *testing.T) {
	a := ship(1, "x")
	b := ship(1, "x")
	b.Fields[0].Value = record.NewUint(schema.U16, 1)
	changes := Trees(a, b)
	if len(changes) != 1 || changes[0].Path != "ship.id" || changes[0].Kind != Modified {
		t.Errorf("Trees = %v, want one modification of ship.id", changes)
	}
}

func TestTreesSpans(t *testing.T) {
	a := ship(1, "x")
	a.Spans = []record.Span{{Offset: 4, Data: []byte{1}}, {Offset: 9, Data: []byte{2}}}
	b := a.Clone()
	b.Spans = []record.Span{{Offset: 4, Data: []byte{7}}, {Offset: 12, Data: []byte{3}}}

	changes := Trees(a, b)
	want := []string{"modified ship:span@4", "removed ship:span@9", "added ship:span@12"}
	if len(changes) != len(want) {
		t.Fatalf("Trees = %v, want %v", changes, want)
	}
	for i, change := range changes {
		if got := change.Kind.String() + " " + change.Path; got != want[i] {
			t.Errorf("change %d = %s, want %s", i, got, want[i])
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		node *record.Node
		want string
	}{
		{nil, "<none>"},
		{record.NewInt(schema.I8, -3), "-3"},
		{record.NewFloat(schema.F32, 1.5), "1.5"},
		{record.NewBool(true), "true"},
		{record.NewOpaque(schema.Bytes, []byte{0xca, 0xfe}), "0xcafe"},
		{record.NewList(schema.U8, record.NewUint(schema.U8, 1)), "[1 × u8]"},
	}
	for _, test := range tests {
		if got := Format(test.node); got != test.want {
			t.Errorf("Format = %q, want %q", got, test.want)
		}
	}
}
