// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package itempath defines the canonical address of an item across
// archives and override directories.
//
// A [Path] carries two forms: the display form, which preserves the
// caller's casing, and the comparison key, which is the lower-cased
// display form. Two paths are equal iff their keys are byte-equal.
// Normalization converts backslashes to forward slashes, collapses
// repeated separators, drops "." segments and leading or trailing
// separators, and rejects ".." segments and empty paths.
package itempath

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmpty is returned when a path normalizes to nothing.
	ErrEmpty = errors.New("empty item path")

	// ErrTraversal is returned for paths containing "..".
	ErrTraversal = errors.New("item path escapes its root")
)

// Path is a normalized item path. The zero value is the root prefix
// and is only meaningful as a listing prefix.
type Path struct {
	display string
	key     string
}

// Parse normalizes raw into a Path.
func Parse(raw string) (Path, error) {
	path, err := ParsePrefix(raw)
	if err != nil {
		return Path{}, err
	}
	if path.IsRoot() {
		return Path{}, fmt.Errorf("%w: %q", ErrEmpty, raw)
	}
	return path, nil
}

// MustParse is Parse for literals. It panics on error.
func MustParse(raw string) Path {
	path, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("itempath.MustParse(%q): %v", raw, err))
	}
	return path
}

// ParsePrefix is Parse but accepts the empty string, which yields the
// root prefix matching every item.
func ParsePrefix(raw string) (Path, error) {
	raw = strings.ReplaceAll(raw, "\\", "/")
	segments := strings.Split(raw, "/")
	kept := segments[:0]
	for _, segment := range segments {
		switch segment {
		case "", ".":
			continue
		case "..":
			return Path{}, fmt.Errorf("%w: %q", ErrTraversal, raw)
		}
		kept = append(kept, segment)
	}
	display := strings.Join(kept, "/")
	return Path{display: display, key: strings.ToLower(display)}, nil
}

// String returns the display form.
func (p Path) String() string { return p.display }

// Key returns the comparison key.
func (p Path) Key() string { return p.key }

// IsRoot reports whether p is the empty root prefix.
func (p Path) IsRoot() bool { return p.key == "" }

// Equal reports whether p and other address the same item.
func (p Path) Equal(other Path) bool { return p.key == other.key }

// Compare orders paths by key.
func (p Path) Compare(other Path) int { return strings.Compare(p.key, other.key) }

// HasPrefix reports whether p lies under prefix. A prefix matches
// whole segments or a partial final segment: "models/sh" matches
// "models/ship.rec", and the root prefix matches everything.
func (p Path) HasPrefix(prefix Path) bool {
	return strings.HasPrefix(p.key, prefix.key)
}

// Base returns the final segment in display form.
func (p Path) Base() string {
	if index := strings.LastIndexByte(p.display, '/'); index >= 0 {
		return p.display[index+1:]
	}
	return p.display
}

// Dir returns the parent path, or the root prefix for top-level items.
func (p Path) Dir() Path {
	index := strings.LastIndexByte(p.display, '/')
	if index < 0 {
		return Path{}
	}
	display := p.display[:index]
	return Path{display: display, key: strings.ToLower(display)}
}

// Join appends a relative path to p.
func (p Path) Join(relative string) (Path, error) {
	if p.IsRoot() {
		return Parse(relative)
	}
	return Parse(p.display + "/" + relative)
}

// MarshalText implements encoding.TextMarshaler using the display form.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.display), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := ParsePrefix(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
