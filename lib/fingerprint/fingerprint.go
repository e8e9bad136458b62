// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes content identities used for container
// entry checksums, cache freshness checks, and schema versioning.
//
// Every hash is a BLAKE3 keyed hash. The key selects a domain so the
// same bytes hash differently as an entry checksum than as a cache
// fingerprint, and a stored value from one context can never be
// mistaken for one from another.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// Domain is a 32-byte BLAKE3 key. The byte values are the ASCII
// domain name, zero-padded, so keys are readable in hex dumps.
type Domain [32]byte

// Domains. Changing any of these invalidates every stored hash in
// that domain.
var (
	// ContentDomain fingerprints item bytes for the decode cache.
	ContentDomain = Domain{
		'p', 'a', 'k', 'f', 'o', 'r', 'g', 'e', '.', 'c', 'o', 'n', 't', 'e', 'n', 't',
	}

	// EntryDomain is the container entry checksum.
	EntryDomain = Domain{
		'p', 'a', 'k', 'f', 'o', 'r', 'g', 'e', '.', 'e', 'n', 't', 'r', 'y',
	}

	// ArchiveDomain is the Merkle root over an archive's entry
	// checksums.
	ArchiveDomain = Domain{
		'p', 'a', 'k', 'f', 'o', 'r', 'g', 'e', '.', 'a', 'r', 'c', 'h', 'i', 'v', 'e',
	}

	// SchemaDomain fingerprints a compiled schema type.
	SchemaDomain = Domain{
		'p', 'a', 'k', 'f', 'o', 'r', 'g', 'e', '.', 's', 'c', 'h', 'e', 'm', 'a',
	}
)

// Sum returns the keyed hash of data in the given domain.
func Sum(domain Domain, data []byte) Hash {
	hasher := newHasher(domain)
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// Content is Sum(ContentDomain, data).
func Content(data []byte) Hash { return Sum(ContentDomain, data) }

// Entry is Sum(EntryDomain, data).
func Entry(data []byte) Hash { return Sum(EntryDomain, data) }

// Reader hashes everything read from r in the given domain.
func Reader(domain Domain, r io.Reader) (Hash, error) {
	hasher := newHasher(domain)
	if _, err := io.Copy(hasher, r); err != nil {
		return Hash{}, fmt.Errorf("hashing stream: %w", err)
	}
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash, nil
}

// File hashes the file at path in ContentDomain without loading it
// into memory.
func File(path string) (Hash, error) {
	file, err := os.Open(path)
	if err != nil {
		return Hash{}, err
	}
	defer file.Close()
	hash, err := Reader(ContentDomain, file)
	if err != nil {
		return Hash{}, fmt.Errorf("%s: %w", path, err)
	}
	return hash, nil
}

// MerkleRoot computes a binary Merkle tree over hashes in the given
// domain. An odd node at the end of a level is promoted unchanged.
// An empty list yields the hash of no bytes.
func MerkleRoot(domain Domain, hashes []Hash) Hash {
	if len(hashes) == 0 {
		return Sum(domain, nil)
	}

	level := make([]Hash, len(hashes))
	copy(level, hashes)

	hasher := newHasher(domain)
	var combined [64]byte
	for len(level) > 1 {
		next := make([]Hash, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			copy(combined[:32], level[i][:])
			copy(combined[32:], level[i+1][:])
			hasher.Reset()
			hasher.Write(combined[:])
			copy(next[i/2][:], hasher.Sum(nil))
		}
		if len(level)%2 == 1 {
			next[len(next)-1] = level[len(level)-1]
		}
		level = next
	}
	return level[0]
}

// String returns the hex encoding.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Short returns the first 12 hex characters, for logs.
func (h Hash) Short() string { return hex.EncodeToString(h[:6]) }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// Parse parses a 64-character hex string.
func Parse(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing fingerprint: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("fingerprint is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func newHasher(domain Domain) *blake3.Hasher {
	// NewKeyed only fails for a key that is not 32 bytes, which the
	// Domain type rules out.
	hasher, err := blake3.NewKeyed(domain[:])
	if err != nil {
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}
