// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pakforge/pakforge/lib/config"
	"github.com/pakforge/pakforge/lib/container"
	"github.com/pakforge/pakforge/lib/itempath"
	"github.com/pakforge/pakforge/lib/namespace"
	"github.com/pakforge/pakforge/lib/record"
	"github.com/pakforge/pakforge/lib/testutil"
)

const shipSchema = `
types:
  - name: ship
    version: 1
    fields:
      - {name: id, type: u32}
      - {name: name, type: char, size: 16}
`

const fuelSchema = `
types:
  - name: fuel
    version: 1
    fields:
      - {name: grade, type: u8}
      - {name: litres, type: u16}
`

func shipBytes(id uint32, name string) string {
	data := binary.LittleEndian.AppendUint32(nil, id)
	field := make([]byte, 16)
	copy(field, name)
	return string(append(data, field...))
}

func writeArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var inputs []container.Input
	for name, contents := range files {
		inputs = append(inputs, container.Input{Path: itempath.MustParse(name), Data: []byte(contents)})
	}
	if err := container.WriteFile(path, inputs, container.WriteOptions{}); err != nil {
		t.Fatalf("writing archive %s: %v", path, err)
	}
}

type fixture struct {
	root      string
	overrides string
	schemas   string
	config    *config.Config
}

// newFixture lays out an archive with files, an empty override
// directory and a schema directory holding shipSchema.
func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:      root,
		overrides: filepath.Join(root, "overrides"),
		schemas:   filepath.Join(root, "schemas"),
	}
	archive := filepath.Join(root, "base.pak")
	writeArchive(t, archive, files)
	testutil.WriteTree(t, f.schemas, map[string]string{"ship.yaml": shipSchema})
	if err := os.MkdirAll(f.overrides, 0o755); err != nil {
		t.Fatalf("creating override dir: %v", err)
	}

	cfg := config.Default()
	cfg.Paths.Root = root
	cfg.Archives = []config.ArchiveConfig{{Path: archive}}
	cfg.Overrides = []config.OverrideConfig{{Path: f.overrides, Priority: 10}}
	cfg.Schemas.Dirs = []string{f.schemas}
	cfg.Decode.Parallelism = 2
	f.config = cfg
	return f
}

func (f *fixture) open(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s, err := Open(context.Background(), f.config, nil, opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Cache().Check(); err != nil {
			t.Errorf("cache inconsistent: %v", err)
		}
		s.Close()
	})
	return s
}

func decode(t *testing.T, s *Session, path, typeName string) *record.Node {
	t.Helper()
	node, err := s.Decode(context.Background(), itempath.MustParse(path), typeName)
	if err != nil {
		t.Fatalf("Decode(%s) failed: %v", path, err)
	}
	return node
}

func TestDecodeFromArchive(t *testing.T) {
	f := newFixture(t, map[string]string{"models/ship.rec": shipBytes(42, "Explorer")})
	s := f.open(t)

	node := decode(t, s, "models/ship.rec", "ship")
	if got := node.Field("id").Uint(); got != 42 {
		t.Errorf("id = %d, want 42", got)
	}
	if got := node.Field("name").Text; got != "Explorer" {
		t.Errorf("name = %q, want Explorer", got)
	}
	if s.Cache().Len() != 1 {
		t.Errorf("cache Len = %d, want 1", s.Cache().Len())
	}

	// A caller editing its tree must not change what the next caller sees.
	node.Field("id").SetUint(7)
	again := decode(t, s, "MODELS/SHIP.REC", "ship")
	if got := again.Field("id").Uint(); got != 42 {
		t.Errorf("id after caller edit = %d, want 42", got)
	}
}

func TestOverrideBeatsArchive(t *testing.T) {
	f := newFixture(t, map[string]string{"items/fuel.rec": shipBytes(1, "Archive")})
	testutil.WriteTree(t, f.overrides, map[string]string{"items/fuel.rec": shipBytes(2, "Override")})
	s := f.open(t)

	node := decode(t, s, "items/fuel.rec", "ship")
	if got := node.Field("name").Text; got != "Override" {
		t.Errorf("name = %q, want Override", got)
	}
}

func TestTruncatedInputCachesNothing(t *testing.T) {
	f := newFixture(t, map[string]string{"models/short.rec": shipBytes(3, "Short")[:10]})
	s := f.open(t)

	_, err := s.Decode(context.Background(), itempath.MustParse("models/short.rec"), "ship")
	if !errors.Is(err, record.ErrTruncatedInput) {
		t.Fatalf("Decode error = %v, want ErrTruncatedInput", err)
	}
	var itemErr *ItemError
	if !errors.As(err, &itemErr) || itemErr.Path.String() != "models/short.rec" {
		t.Errorf("Decode error = %v, want an ItemError for models/short.rec", err)
	}
	if s.Cache().Len() != 0 {
		t.Errorf("cache Len = %d after failed decode, want 0", s.Cache().Len())
	}
}

func TestUnknownTypeIsOpaque(t *testing.T) {
	f := newFixture(t, map[string]string{"misc/blob.bin": "\x01\x02\x03"})
	s := f.open(t)

	node := decode(t, s, "misc/blob.bin", "mystery")
	if node.Kind != record.KindOpaque || node.Type != "mystery" {
		t.Fatalf("node = %s %s, want opaque mystery", node.Kind, node.Type)
	}
	if string(node.Raw) != "\x01\x02\x03" {
		t.Errorf("Raw = %x, want 010203", node.Raw)
	}
}

func TestMissingItem(t *testing.T) {
	f := newFixture(t, map[string]string{"models/ship.rec": shipBytes(1, "A")})
	s := f.open(t)

	_, err := s.Decode(context.Background(), itempath.MustParse("models/none.rec"), "ship")
	if !errors.Is(err, namespace.ErrNotFound) {
		t.Errorf("Decode error = %v, want ErrNotFound", err)
	}
}

func TestCommitThenDecode(t *testing.T) {
	f := newFixture(t, map[string]string{"models/ship.rec": shipBytes(42, "Explorer")})
	s := f.open(t)
	path := itempath.MustParse("models/ship.rec")

	node := decode(t, s, "models/ship.rec", "ship")
	if err := node.Field("name").SetText("Pathfinder"); err != nil {
		t.Fatalf("SetText failed: %v", err)
	}
	file, err := s.Commit(context.Background(), path, node)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if !strings.HasPrefix(file, f.overrides) {
		t.Errorf("Commit wrote %s, want a file under %s", file, f.overrides)
	}
	written, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("reading committed file: %v", err)
	}
	if string(written) != shipBytes(42, "Pathfinder") {
		t.Errorf("committed bytes = %x, want %x", written, shipBytes(42, "Pathfinder"))
	}

	again := decode(t, s, "models/ship.rec", "ship")
	if got := again.Field("name").Text; got != "Pathfinder" {
		t.Errorf("name after commit = %q, want Pathfinder", got)
	}
}

func TestCommitText(t *testing.T) {
	f := newFixture(t, map[string]string{"models/ship.rec": shipBytes(42, "Explorer")})
	s := f.open(t)
	path := itempath.MustParse("models/ship.rec")

	text, err := s.ToText(decode(t, s, "models/ship.rec", "ship"))
	if err != nil {
		t.Fatalf("ToText failed: %v", err)
	}
	edited := strings.Replace(string(text), "42", "43", 1)
	if _, err := s.CommitText(context.Background(), path, []byte(edited)); err != nil {
		t.Fatalf("CommitText failed: %v", err)
	}
	if got := decode(t, s, "models/ship.rec", "ship").Field("id").Uint(); got != 43 {
		t.Errorf("id after CommitText = %d, want 43", got)
	}

	if _, err := s.CommitText(context.Background(), path, []byte("record: [")); err == nil {
		t.Error("CommitText accepted malformed text")
	}
}

func TestCommitRejectsInvalidTree(t *testing.T) {
	f := newFixture(t, map[string]string{"models/ship.rec": shipBytes(42, "Explorer")})
	s := f.open(t)

	node := decode(t, s, "models/ship.rec", "ship")
	node.Field("name").Text = strings.Repeat("x", 40)
	_, err := s.Commit(context.Background(), itempath.MustParse("models/ship.rec"), node)
	if !errors.Is(err, record.ErrFieldTooLong) {
		t.Errorf("Commit error = %v, want ErrFieldTooLong", err)
	}
	entries, _ := os.ReadDir(f.overrides)
	if len(entries) != 0 {
		t.Errorf("override dir has %d entries after failed commit, want 0", len(entries))
	}
}

func TestCommitWithoutOverrideDir(t *testing.T) {
	f := newFixture(t, map[string]string{"models/ship.rec": shipBytes(42, "Explorer")})
	f.config.Overrides = nil
	s := f.open(t)

	node := decode(t, s, "models/ship.rec", "ship")
	_, err := s.Commit(context.Background(), itempath.MustParse("models/ship.rec"), node)
	if !errors.Is(err, namespace.ErrNoOverrideDir) {
		t.Errorf("Commit error = %v, want ErrNoOverrideDir", err)
	}
}

func TestDecodeBatch(t *testing.T) {
	f := newFixture(t, map[string]string{
		"fleet/a.rec":     shipBytes(1, "Alpha"),
		"fleet/b.rec":     shipBytes(2, "Beta"),
		"fleet/short.rec": "\x01\x02",
	})
	s := f.open(t)

	paths := []itempath.Path{
		itempath.MustParse("fleet/a.rec"),
		itempath.MustParse("fleet/short.rec"),
		itempath.MustParse("fleet/missing.rec"),
		itempath.MustParse("fleet/b.rec"),
	}
	results := s.DecodeBatch(context.Background(), paths, "ship")
	if len(results) != len(paths) {
		t.Fatalf("DecodeBatch returned %d results, want %d", len(results), len(paths))
	}
	for i, result := range results {
		if !result.Path.Equal(paths[i]) {
			t.Errorf("result %d path = %s, want %s", i, result.Path, paths[i])
		}
	}
	if results[0].Err != nil || results[0].Node.Field("id").Uint() != 1 {
		t.Errorf("result 0 = %v %v, want ship 1", results[0].Node, results[0].Err)
	}
	if !errors.Is(results[1].Err, record.ErrTruncatedInput) {
		t.Errorf("result 1 error = %v, want ErrTruncatedInput", results[1].Err)
	}
	if !errors.Is(results[2].Err, namespace.ErrNotFound) {
		t.Errorf("result 2 error = %v, want ErrNotFound", results[2].Err)
	}
	if results[3].Err != nil || results[3].Node.Field("id").Uint() != 2 {
		t.Errorf("result 3 = %v %v, want ship 2", results[3].Node, results[3].Err)
	}
}

func TestVerify(t *testing.T) {
	// Bytes after the name terminator are kept as the field's tail,
	// so a dirty record still reproduces exactly.
	dirty := []byte(shipBytes(5, "Dirty"))
	copy(dirty[4+8:], "junk")
	f := newFixture(t, map[string]string{
		"fleet/clean.rec": shipBytes(4, "Clean"),
		"fleet/dirty.rec": string(dirty),
		"fleet/long.rec":  shipBytes(6, "Long") + "trailing",
	})
	s := f.open(t)

	paths := s.Namespace().List(itempath.MustParse("fleet"))
	if len(paths) != 3 {
		t.Fatalf("List(fleet) = %v, want 3 items", paths)
	}
	for _, result := range s.VerifyBatch(context.Background(), paths, "ship") {
		if result.Err != nil {
			t.Errorf("Verify(%s) failed: %v", result.Path, result.Err)
		}
	}

	err := s.Verify(context.Background(), itempath.MustParse("fleet/none.rec"), "ship")
	if !errors.Is(err, namespace.ErrNotFound) {
		t.Errorf("Verify(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCheckBinary(t *testing.T) {
	f := newFixture(t, map[string]string{"models/ship.rec": shipBytes(1, "A")})
	s := f.open(t)
	_, codec, err := s.current()
	if err != nil {
		t.Fatalf("current failed: %v", err)
	}

	err = s.checkBinary(codec, []byte(shipBytes(1, "A")), "ship", 1)
	if err != nil {
		t.Fatalf("checkBinary(valid) = %v, want nil", err)
	}

	roundTrip := &RoundTripError{Stage: StageBinary}
	if !errors.Is(roundTrip, ErrRoundTrip) {
		t.Error("RoundTripError does not wrap ErrRoundTrip")
	}
	if !strings.Contains(roundTrip.Error(), "binary round trip") {
		t.Errorf("Error() = %q, want it to name the binary stage", roundTrip.Error())
	}
}

func TestReloadAppliesSchemaChanges(t *testing.T) {
	f := newFixture(t, map[string]string{"items/fuel.rec": "\x02\x10\x00"})
	s := f.open(t)

	if node := decode(t, s, "items/fuel.rec", "fuel"); node.Kind != record.KindOpaque {
		t.Fatalf("fuel before schema = %s, want opaque", node.Kind)
	}

	testutil.WriteTree(t, f.schemas, map[string]string{"fuel.yaml": fuelSchema})
	if err := s.Reload(context.Background(), false); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	node := decode(t, s, "items/fuel.rec", "fuel")
	if node.Kind != record.KindComposite {
		t.Fatalf("fuel after reload = %s, want composite", node.Kind)
	}
	if got := node.Field("litres").Uint(); got != 16 {
		t.Errorf("litres = %d, want 16", got)
	}

	// A broken definition keeps the previous registry active.
	testutil.WriteTree(t, f.schemas, map[string]string{"broken.yaml": "types: [{name: bad, version: 1, fields: [{name: x, type: nope}]}]"})
	if err := s.Reload(context.Background(), false); err == nil {
		t.Error("Reload accepted an invalid schema")
	}
	if _, ok := s.Registry().Latest("fuel"); !ok {
		t.Error("registry lost fuel after failed reload")
	}
}

func TestOpenRejectsInvalidSchemas(t *testing.T) {
	f := newFixture(t, map[string]string{"models/ship.rec": shipBytes(1, "A")})
	testutil.WriteTree(t, f.schemas, map[string]string{"broken.yaml": "types: [{name: bad, version: 1, fields: [{name: x, type: nope}]}]"})

	if _, err := Open(context.Background(), f.config, nil); err == nil {
		t.Fatal("Open accepted an invalid schema")
	}
}

func TestOpenReportsBadArchive(t *testing.T) {
	f := newFixture(t, map[string]string{"models/ship.rec": shipBytes(1, "A")})
	bad := filepath.Join(f.root, "bad.pak")
	if err := os.WriteFile(bad, []byte("not a container"), 0o644); err != nil {
		t.Fatalf("writing bad archive: %v", err)
	}
	f.config.Archives = append(f.config.Archives, config.ArchiveConfig{Path: bad, Priority: 5})
	s := f.open(t)

	if errs := s.SourceErrors(); len(errs) != 1 || !strings.Contains(errs[0].Error(), "bad.pak") {
		t.Errorf("SourceErrors = %v, want one error naming bad.pak", errs)
	}
	decode(t, s, "models/ship.rec", "ship")
}

func TestMetricsRegistered(t *testing.T) {
	f := newFixture(t, map[string]string{"models/ship.rec": shipBytes(1, "A")})
	registry := prometheus.NewRegistry()
	s := f.open(t, WithRegisterer(registry))

	decode(t, s, "models/ship.rec", "ship")
	decode(t, s, "models/ship.rec", "ship")

	count, err := promtest.GatherAndCount(registry, "pakforge_cache_hits_total", "pakforge_cache_misses_total")
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("GatherAndCount = %d, want 2 series", count)
	}
}

func TestClosedSession(t *testing.T) {
	f := newFixture(t, map[string]string{"models/ship.rec": shipBytes(1, "A")})
	s, err := Open(context.Background(), f.config, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.Decode(context.Background(), itempath.MustParse("models/ship.rec"), "ship"); err == nil {
		t.Error("Decode succeeded on a closed session")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}
