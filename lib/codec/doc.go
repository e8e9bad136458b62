// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides pakforge's standard CBOR encoding
// configuration.
//
// CBOR is the internal serialization format: compiled schema bundles
// (the registry snapshot written by "pakforge schema compile") and
// the canonical encoding hashed into schema fingerprints. Human-facing
// formats stay YAML and JSON.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes, which is what
// lets a schema fingerprint stand in for the schema itself as a cache
// key.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// fxamacker/cbor v2 reads `json` tags when `cbor` tags are absent, so
// types shared with JSON (schema definitions, CLI --json output) carry
// only `json` tags. Types that are only ever CBOR use `cbor` tags.
// Never use both on the same field.
package codec
