// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package itempath

import (
	"errors"
	"testing"
)

func TestParseNormalizes(t *testing.T) {
	tests := []struct {
		raw     string
		display string
		key     string
	}{
		{"models/ship.rec", "models/ship.rec", "models/ship.rec"},
		{"Models\\Ship.REC", "Models/Ship.REC", "models/ship.rec"},
		{"//models///ship.rec/", "models/ship.rec", "models/ship.rec"},
		{"./models/./ship.rec", "models/ship.rec", "models/ship.rec"},
		{"a", "a", "a"},
	}
	for _, test := range tests {
		path, err := Parse(test.raw)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", test.raw, err)
			continue
		}
		if path.String() != test.display {
			t.Errorf("Parse(%q).String() = %q, want %q", test.raw, path.String(), test.display)
		}
		if path.Key() != test.key {
			t.Errorf("Parse(%q).Key() = %q, want %q", test.raw, path.Key(), test.key)
		}
	}
}

func TestParseRejects(t *testing.T) {
	if _, err := Parse(""); !errors.Is(err, ErrEmpty) {
		t.Errorf("Parse(\"\") error = %v, want ErrEmpty", err)
	}
	if _, err := Parse("/./"); !errors.Is(err, ErrEmpty) {
		t.Errorf("Parse(\"/./\") error = %v, want ErrEmpty", err)
	}
	if _, err := Parse("models/../etc/passwd"); !errors.Is(err, ErrTraversal) {
		t.Errorf("Parse with .. error = %v, want ErrTraversal", err)
	}
}

func TestEqualityIgnoresCase(t *testing.T) {
	a := MustParse("Items/Fuel.rec")
	b := MustParse("items\\fuel.REC")
	if !a.Equal(b) {
		t.Errorf("%q and %q should be equal", a, b)
	}
	if a.Compare(b) != 0 {
		t.Errorf("Compare = %d, want 0", a.Compare(b))
	}
	if a.String() == b.String() {
		t.Errorf("display forms should be preserved, both are %q", a)
	}
}

func TestHasPrefix(t *testing.T) {
	path := MustParse("models/ship.rec")
	root, err := ParsePrefix("")
	if err != nil {
		t.Fatalf("ParsePrefix failed: %v", err)
	}
	if !path.HasPrefix(root) {
		t.Error("root prefix should match every path")
	}
	if !path.HasPrefix(MustParse("MODELS")) {
		t.Error("models should match case-insensitively")
	}
	if path.HasPrefix(MustParse("items")) {
		t.Error("items should not match models/ship.rec")
	}
}

func TestDirBaseJoin(t *testing.T) {
	path := MustParse("models/hull/ship.rec")
	if path.Base() != "ship.rec" {
		t.Errorf("Base = %q, want ship.rec", path.Base())
	}
	if path.Dir().String() != "models/hull" {
		t.Errorf("Dir = %q, want models/hull", path.Dir())
	}
	if !MustParse("ship.rec").Dir().IsRoot() {
		t.Error("Dir of top-level item should be root")
	}
	joined, err := MustParse("models").Join("hull/ship.rec")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if !joined.Equal(path) {
		t.Errorf("Join = %q, want %q", joined, path)
	}
}

func TestTextMarshaling(t *testing.T) {
	path := MustParse("Models/Ship.rec")
	text, err := path.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	var decoded Path
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if decoded.String() != path.String() {
		t.Errorf("decoded = %q, want %q", decoded, path)
	}
}
