// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrDuplicateType is returned by Add when a type with the same
	// name and version is already registered.
	ErrDuplicateType = errors.New("duplicate schema type")

	// ErrInvalidType is returned when a definition breaks a layout
	// rule. Validation errors wrap it.
	ErrInvalidType = errors.New("invalid schema type")
)

// Registry is a catalogue of record types keyed by name and version.
// It is safe for concurrent use. Registered types must not be
// modified.
type Registry struct {
	mu    sync.RWMutex
	types map[string]map[int]*Type
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]map[int]*Type)}
}

// Add registers a copy of definition. It rejects duplicates and
// definitions without a name or a positive version; deeper checks are
// left to Validate so types may be added in any order.
func (r *Registry) Add(definition Type) error {
	if definition.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidType)
	}
	if definition.Version < 1 {
		return fmt.Errorf("%w: %s: version must be positive, got %d", ErrInvalidType, definition.Name, definition.Version)
	}
	if IsBuiltin(definition.Name) {
		return fmt.Errorf("%w: %s: name is reserved", ErrInvalidType, definition.Name)
	}

	stored := definition
	stored.Fields = slices.Clone(definition.Fields)

	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.types[stored.Name]
	if !ok {
		versions = make(map[int]*Type)
		r.types[stored.Name] = versions
	}
	if _, exists := versions[stored.Version]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, stored.Key())
	}
	versions[stored.Version] = &stored
	return nil
}

// Lookup returns the type with the given name and version. A version
// of zero selects the latest version. The second result is false when
// the registry does not know the type.
func (r *Registry) Lookup(name string, version int) (*Type, bool) {
	if version == 0 {
		return r.Latest(name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	definition, ok := r.types[name][version]
	return definition, ok
}

// Latest returns the highest registered version of name.
func (r *Registry) Latest(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *Type
	for _, definition := range r.types[name] {
		if latest == nil || definition.Version > latest.Version {
			latest = definition
		}
	}
	return latest, latest != nil
}

// Versions returns the registered versions of name in ascending order.
func (r *Registry) Versions(name string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := make([]int, 0, len(r.types[name]))
	for version := range r.types[name] {
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions
}

// Types returns every registered type ordered by name, then version.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*Type
	for _, versions := range r.types {
		for _, definition := range versions {
			all = append(all, definition)
		}
	}
	slices.SortFunc(all, func(a, b *Type) int {
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		return a.Version - b.Version
	})
	return all
}

// Len returns the number of registered type versions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, versions := range r.types {
		count += len(versions)
	}
	return count
}

// Resolve returns the struct type a field of owner refers to, either
// the field's own type or, for arrays, its element type.
func (r *Registry) Resolve(owner *Type, field *Field) (*Type, bool) {
	name := field.Type
	if name == Array {
		name = field.Of
	}
	if IsBuiltin(name) {
		return nil, false
	}
	return r.Lookup(name, owner.StructVersion(field))
}

// FixedSize returns the encoded size of definition when every value of
// it has the same size: no conditional or pointer-targeted fields, no
// cstrings, and only fixed-count arrays of fixed-size elements.
func (r *Registry) FixedSize(definition *Type) (int, bool) {
	return r.fixedSize(definition, make(map[string]bool))
}

func (r *Registry) fixedSize(definition *Type, visiting map[string]bool) (int, bool) {
	if visiting[definition.Key()] {
		return 0, false
	}
	visiting[definition.Key()] = true
	defer delete(visiting, definition.Key())

	total := 0
	for i := range definition.Fields {
		field := &definition.Fields[i]
		if field.When != nil || definition.Pointed(field.Name) {
			return 0, false
		}
		size, ok := r.fieldSize(definition, field, visiting)
		if !ok {
			return 0, false
		}
		total += size
	}
	return total, true
}

// ElementSize returns the fixed size of one element of an array field,
// or of the field itself for non-array fields.
func (r *Registry) ElementSize(owner *Type, field *Field) (int, bool) {
	if field.Type != Array {
		return r.fieldSize(owner, field, make(map[string]bool))
	}
	element := Field{Name: field.Name, Type: field.Of, Version: field.Version, Size: field.Size}
	return r.fieldSize(owner, &element, make(map[string]bool))
}

func (r *Registry) fieldSize(owner *Type, field *Field, visiting map[string]bool) (int, bool) {
	if size, ok := ScalarSize(field.Type); ok {
		return size, true
	}
	switch field.Type {
	case Char, Bytes:
		return field.Size, field.Size > 0
	case CString:
		return 0, false
	case Array:
		if field.Count == nil || field.Count.Fixed <= 0 {
			return 0, false
		}
		element, ok := r.ElementSize(owner, field)
		if !ok {
			return 0, false
		}
		return element * field.Count.Fixed, true
	}
	nested, ok := r.Lookup(field.Type, owner.StructVersion(field))
	if !ok {
		return 0, false
	}
	return r.fixedSize(nested, visiting)
}
