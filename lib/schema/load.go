// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/pakforge/pakforge/lib/codec"
	"github.com/pakforge/pakforge/lib/fingerprint"
)

// BundleFormat identifies a compiled CBOR schema bundle.
const BundleFormat = "pakforge.schema/1"

// ErrUnsupportedFile is returned by LoadFile for an extension it does
// not recognize.
var ErrUnsupportedFile = errors.New("unsupported schema file")

// File is the document shape of a definition file.
type File struct {
	Types []Type `yaml:"types" json:"types"`
}

type bundle struct {
	Format string `json:"format"`
	Types  []Type `json:"types"`
}

// LoadDir loads every definition file directly inside dir, in name
// order. Files with other extensions are ignored. Errors from
// individual files are joined; files that load cleanly stay
// registered.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading schema directory: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}
		if err := r.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json", ".jsonc", ".cbor":
		return true
	}
	return false
}

// LoadFile loads one definition file, choosing the decoder by
// extension.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading schema file: %w", err)
	}
	var types []Type
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		types, err = parseYAML(data)
	case ".json", ".jsonc":
		types, err = parseJSONC(data)
	case ".cbor":
		types, err = parseBundle(data)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, definition := range types {
		if err := r.Add(definition); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// ParseYAML decodes a YAML definition document into a new registry.
func ParseYAML(data []byte) (*Registry, error) {
	types, err := parseYAML(data)
	if err != nil {
		return nil, err
	}
	registry := NewRegistry()
	for _, definition := range types {
		if err := registry.Add(definition); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func parseYAML(data []byte) ([]Type, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var file File
	if err := decoder.Decode(&file); err != nil {
		return nil, err
	}
	return file.Types, nil
}

func parseJSONC(data []byte) ([]Type, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()
	var file File
	if err := decoder.Decode(&file); err != nil {
		return nil, err
	}
	return file.Types, nil
}

func parseBundle(data []byte) ([]Type, error) {
	var decoded bundle
	if err := codec.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	if decoded.Format != BundleFormat {
		return nil, fmt.Errorf("bundle format %q, want %q", decoded.Format, BundleFormat)
	}
	return decoded.Types, nil
}

// MarshalBundle encodes every registered type as a deterministic CBOR
// bundle. Equal registries produce identical bundles.
func (r *Registry) MarshalBundle() ([]byte, error) {
	types := r.Types()
	out := bundle{Format: BundleFormat, Types: make([]Type, len(types))}
	for i, definition := range types {
		out.Types[i] = *definition
	}
	return codec.Marshal(out)
}

// WriteBundle writes MarshalBundle's output to path atomically.
func (r *Registry) WriteBundle(path string) error {
	data, err := r.MarshalBundle()
	if err != nil {
		return fmt.Errorf("encoding schema bundle: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing schema bundle: %w", err)
	}
	return nil
}

// Fingerprint identifies the registry's full contents.
func (r *Registry) Fingerprint() (fingerprint.Hash, error) {
	types := r.Types()
	hashes := make([]fingerprint.Hash, 0, len(types))
	for _, definition := range types {
		hash, err := definition.Fingerprint()
		if err != nil {
			return fingerprint.Hash{}, err
		}
		hashes = append(hashes, hash)
	}
	return fingerprint.MerkleRoot(fingerprint.SchemaDomain, hashes), nil
}
