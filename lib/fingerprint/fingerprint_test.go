// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDomainSeparation(t *testing.T) {
	data := []byte("models/ship.rec")
	if Content(data) == Entry(data) {
		t.Error("content and entry domains produced the same hash")
	}
	if Content(data) != Content(data) {
		t.Error("Content is not deterministic")
	}
	if Content(data) == Content([]byte("models/ship.reC")) {
		t.Error("different inputs produced the same hash")
	}
}

func TestFileMatchesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.bin")
	data := []byte("some item bytes")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	hash, err := File(path)
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if hash != Content(data) {
		t.Errorf("File = %s, want %s", hash, Content(data))
	}
	if _, err := File(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("File on missing path should fail")
	}
}

func TestFormatParse(t *testing.T) {
	hash := Entry([]byte("x"))
	parsed, err := Parse(hash.String())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed != hash {
		t.Errorf("Parse(String()) = %s, want %s", parsed, hash)
	}
	if len(hash.Short()) != 12 {
		t.Errorf("Short length = %d, want 12", len(hash.Short()))
	}
	if _, err := Parse("abcd"); err == nil {
		t.Error("Parse of short hex should fail")
	}
	if _, err := Parse("zz"); err == nil {
		t.Error("Parse of non-hex should fail")
	}
}

func TestMerkleRoot(t *testing.T) {
	a, b, c := Entry([]byte("a")), Entry([]byte("b")), Entry([]byte("c"))

	if MerkleRoot(ArchiveDomain, []Hash{a}) != a {
		t.Error("single-leaf root should be the leaf")
	}
	ab := MerkleRoot(ArchiveDomain, []Hash{a, b})
	ba := MerkleRoot(ArchiveDomain, []Hash{b, a})
	if ab == ba {
		t.Error("root should depend on leaf order")
	}
	abc := MerkleRoot(ArchiveDomain, []Hash{a, b, c})
	if abc != MerkleRoot(ArchiveDomain, []Hash{ab, c}) {
		t.Error("odd leaf should be promoted unchanged")
	}
	if MerkleRoot(ArchiveDomain, nil).IsZero() {
		t.Error("empty root should not be the zero hash")
	}
}
