// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/pakforge/pakforge/lib/container"
	"github.com/pakforge/pakforge/lib/itempath"
	"github.com/pakforge/pakforge/lib/namespace"
	"github.com/pakforge/pakforge/lib/testutil"
)

// fuseAvailable checks whether /dev/fuse is accessible and a
// fusermount helper is installed. Tests that need a real FUSE mount
// call this and skip when either is missing.
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
	for _, helper := range []string{"fusermount3", "fusermount"} {
		if _, err := exec.LookPath(helper); err == nil {
			return
		}
	}
	t.Skip("skipping: neither fusermount3 nor fusermount is on PATH")
}

func paths(raw ...string) []itempath.Path {
	var parsed []itempath.Path
	for _, value := range raw {
		parsed = append(parsed, itempath.MustParse(value))
	}
	return parsed
}

func TestChildren(t *testing.T) {
	items := paths("Models/Ship.rec", "models/crew/a.rec", "models/crew/b.rec", "modelsx/c.rec", "top.rec")

	tests := []struct {
		prefix string
		want   []entry
	}{
		{"", []entry{{"Models", true}, {"modelsx", true}, {"top.rec", false}}},
		{"models", []entry{{"Ship.rec", false}, {"crew", true}}},
		{"MODELS/crew", []entry{{"a.rec", false}, {"b.rec", false}}},
		{"models/crew/a.rec", nil},
	}
	for _, tt := range tests {
		prefix, err := itempath.ParsePrefix(tt.prefix)
		if err != nil {
			t.Fatalf("ParsePrefix(%q) failed: %v", tt.prefix, err)
		}
		got := children(prefix, items)
		if len(got) != len(tt.want) {
			t.Errorf("children(%q) = %v, want %v", tt.prefix, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("children(%q)[%d] = %v, want %v", tt.prefix, i, got[i], tt.want[i])
			}
		}
	}
}

func TestChildrenDirectoryWinsOverItem(t *testing.T) {
	got := children(itempath.Path{}, paths("data", "DATA/inner.rec"))
	if len(got) != 1 || !got[0].directory {
		t.Errorf("children = %v, want one directory", got)
	}
}

func TestFileHandleRead(t *testing.T) {
	handle := &fileHandle{data: []byte("0123456789")}
	tests := []struct {
		offset int64
		size   int
		want   string
	}{
		{0, 4, "0123"},
		{8, 4, "89"},
		{10, 4, ""},
		{20, 4, ""},
	}
	for _, tt := range tests {
		result := handle.read(make([]byte, tt.size), tt.offset)
		got, status := result.Bytes(nil)
		if status != 0 {
			t.Fatalf("Bytes status = %v", status)
		}
		if string(got) != tt.want {
			t.Errorf("read(%d, %d) = %q, want %q", tt.offset, tt.size, got, tt.want)
		}
	}
}

func TestMountRequiresOptions(t *testing.T) {
	if _, err := Mount(Options{}); err == nil {
		t.Error("Mount without mountpoint succeeded")
	}
	if _, err := Mount(Options{Mountpoint: t.TempDir()}); err == nil {
		t.Error("Mount without namespace succeeded")
	}
}

// testMount builds a namespace from an archive and an override
// directory and mounts it.
func testMount(t *testing.T) (mountpoint, overrideDir string) {
	t.Helper()
	fuseAvailable(t)

	root := t.TempDir()
	archivePath := filepath.Join(root, "base.pak")
	inputs := []container.Input{
		{Path: itempath.MustParse("Models/Ship.rec"), Data: []byte("archive ship")},
		{Path: itempath.MustParse("models/crew/a.rec"), Data: []byte("crew a")},
	}
	if err := container.WriteFile(archivePath, inputs, container.WriteOptions{}); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
	overrideDir = filepath.Join(root, "override")
	testutil.WriteTree(t, overrideDir, map[string]string{"models/crew/b.rec": "crew b"})

	items, err := namespace.New(namespace.Options{
		Archives:  []namespace.ArchiveSource{{Path: archivePath}},
		Overrides: []namespace.OverrideSource{{Root: overrideDir}},
	})
	if err != nil {
		t.Fatalf("namespace.New: %v", err)
	}
	t.Cleanup(func() { items.Close() })

	mountpoint = filepath.Join(root, "mount")
	server, err := Mount(Options{Mountpoint: mountpoint, Namespace: items})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})
	return mountpoint, overrideDir
}

func TestMountListsAndReads(t *testing.T) {
	mountpoint, _ := testMount(t)

	entries, err := os.ReadDir(filepath.Join(mountpoint, "Models", "crew"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 || entries[0].Name() != "a.rec" || entries[1].Name() != "b.rec" {
		t.Errorf("ReadDir(Models/crew) = %v, want [a.rec b.rec]", entries)
	}

	got, err := os.ReadFile(filepath.Join(mountpoint, "models", "SHIP.REC"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "archive ship" {
		t.Errorf("ReadFile = %q, want archive ship", got)
	}

	got, err = os.ReadFile(filepath.Join(mountpoint, "models", "crew", "b.rec"))
	if err != nil {
		t.Fatalf("ReadFile override: %v", err)
	}
	if string(got) != "crew b" {
		t.Errorf("ReadFile override = %q, want crew b", got)
	}
}

func TestMountIsReadOnly(t *testing.T) {
	mountpoint, _ := testMount(t)

	_, err := os.OpenFile(filepath.Join(mountpoint, "models", "ship.rec"), os.O_WRONLY, 0)
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("open for write error = %v, want EROFS", err)
	}
	err = os.WriteFile(filepath.Join(mountpoint, "new.rec"), []byte("x"), 0o644)
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("create error = %v, want EROFS", err)
	}
	if _, err := os.Stat(filepath.Join(mountpoint, "missing.rec")); !os.IsNotExist(err) {
		t.Errorf("Stat(missing) error = %v, want not exist", err)
	}
}
