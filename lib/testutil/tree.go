// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree creates each file in files (relative slash-separated path
// to contents) under root, creating directories as needed.
//
//	testutil.WriteTree(t, overrideDir, map[string]string{
//	    "items/fuel.rec": "override bytes",
//	})
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for relative, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(relative))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating directory for %s: %v", relative, err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatalf("writing %s: %v", relative, err)
		}
	}
}
