// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package namespace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio"

	"github.com/pakforge/pakforge/lib/compress"
	"github.com/pakforge/pakforge/lib/container"
	"github.com/pakforge/pakforge/lib/itempath"
)

// Options configures a Namespace.
type Options struct {
	Archives  []ArchiveSource
	Overrides []OverrideSource

	// Codecs is the compression set used to read archive entries.
	// Nil uses compress.Default.
	Codecs *compress.Set

	// Logger receives diagnostic messages. If nil, only errors are
	// logged to stderr.
	Logger *slog.Logger
}

type openedArchive struct {
	source  ArchiveSource
	archive *container.Archive
}

// Namespace is the union of archive and override sources. All
// methods are safe for concurrent use.
type Namespace struct {
	options Options
	logger  *slog.Logger

	mu        sync.RWMutex
	archives  []openedArchive
	overrides [][]ByteSource
	index     map[string][]ByteSource
	keys      []string
	failures  map[string]error
}

// New opens every archive and scans every override directory.
// Sources that fail are recorded in SourceErrors and skipped; New
// itself only fails on invalid options.
func New(options Options) (*Namespace, error) {
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}
	if options.Codecs == nil {
		options.Codecs = compress.Default
	}
	for i, source := range options.Archives {
		if source.Path == "" {
			return nil, fmt.Errorf("archive %d: path is required", i)
		}
	}
	for i, source := range options.Overrides {
		if source.Root == "" {
			return nil, fmt.Errorf("override %d: root is required", i)
		}
	}

	namespace := &Namespace{
		options:  options,
		logger:   options.Logger,
		failures: make(map[string]error),
	}
	namespace.openArchives()
	namespace.scanOverrides()
	namespace.rebuildIndex()
	return namespace, nil
}

// openArchives opens every declared archive. Caller holds mu or has
// exclusive access.
func (n *Namespace) openArchives() {
	n.archives = n.archives[:0]
	for _, source := range n.options.Archives {
		delete(n.failures, source.Path)
		archive, err := container.Open(source.Path)
		if err != nil {
			n.failures[source.Path] = err
			n.logger.Warn("archive unavailable", "archive", source.Path, "error", err)
			n.archives = append(n.archives, openedArchive{source: source})
			continue
		}
		archive.WithCodecs(n.options.Codecs)
		n.logger.Debug("archive opened",
			"archive", source.Path,
			"entries", len(archive.Entries()),
			"priority", source.Priority,
		)
		n.archives = append(n.archives, openedArchive{source: source, archive: archive})
	}
}

// scanOverrides walks every override root. Caller holds mu or has
// exclusive access.
func (n *Namespace) scanOverrides() {
	n.overrides = make([][]ByteSource, len(n.options.Overrides))
	for declared, source := range n.options.Overrides {
		delete(n.failures, source.Root)
		files, err := scanOverrideRoot(source, declared, n.logger)
		if err != nil {
			n.failures[source.Root] = err
			n.logger.Warn("override directory unavailable", "root", source.Root, "error", err)
			continue
		}
		n.overrides[declared] = files
	}
}

func scanOverrideRoot(source OverrideSource, declared int, logger *slog.Logger) ([]ByteSource, error) {
	seen := make(map[string]string)
	var files []ByteSource
	err := filepath.WalkDir(source.Root, func(file string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() || isTempName(entry.Name()) {
			return nil
		}
		relative, err := filepath.Rel(source.Root, file)
		if err != nil {
			return err
		}
		path, err := itempath.Parse(filepath.ToSlash(relative))
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		// Two files differing only in case map to one item. WalkDir
		// visits in lexical order, so keeping the first is stable.
		if previous, exists := seen[path.Key()]; exists {
			logger.Warn("override file ignored, item already provided",
				"item", path.String(), "kept", previous, "ignored", file)
			return nil
		}
		seen[path.Key()] = file
		info, err := entry.Info()
		if err != nil {
			return err
		}
		files = append(files, ByteSource{
			Path:     path,
			Kind:     KindOverride,
			Source:   source.Root,
			Priority: source.Priority,
			Declared: declared,
			File:     file,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// rebuildIndex recomputes the precedence-ordered provider list for
// every item. Caller holds mu or has exclusive access.
func (n *Namespace) rebuildIndex() {
	index := make(map[string][]ByteSource)
	for declared, opened := range n.archives {
		if opened.archive == nil {
			continue
		}
		for _, entry := range opened.archive.Entries() {
			key := entry.Path.Key()
			index[key] = append(index[key], ByteSource{
				Path:     entry.Path,
				Kind:     KindArchive,
				Source:   opened.source.Path,
				Priority: opened.source.Priority,
				Declared: declared,
				Size:     int64(entry.Size),
				entry:    entry,
				archive:  opened.archive,
			})
		}
	}
	for _, files := range n.overrides {
		for _, file := range files {
			key := file.Path.Key()
			index[key] = append(index[key], file)
		}
	}

	keys := make([]string, 0, len(index))
	for key, providers := range index {
		sort.SliceStable(providers, func(i, j int) bool {
			return providers[i].outranks(providers[j])
		})
		keys = append(keys, key)
	}
	slices.Sort(keys)

	n.index = index
	n.keys = keys
}

// Resolve returns the authoritative provider for path.
func (n *Namespace) Resolve(path itempath.Path) (ByteSource, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	providers, ok := n.index[path.Key()]
	if !ok {
		return ByteSource{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return providers[0], nil
}

// Shadowed returns every provider of path in precedence order, the
// authoritative one first.
func (n *Namespace) Shadowed(path itempath.Path) ([]ByteSource, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	providers, ok := n.index[path.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return slices.Clone(providers), nil
}

// List returns every item under prefix, sorted by key, each listed
// once in its authoritative provider's casing.
func (n *Namespace) List(prefix itempath.Path) []itempath.Path {
	n.mu.RLock()
	defer n.mu.RUnlock()

	start := sort.SearchStrings(n.keys, prefix.Key())
	var paths []itempath.Path
	for _, key := range n.keys[start:] {
		if !strings.HasPrefix(key, prefix.Key()) {
			break
		}
		paths = append(paths, n.index[key][0].Path)
	}
	return paths
}

// Read returns the bytes of the authoritative provider for path.
func (n *Namespace) Read(path itempath.Path) ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	providers, ok := n.index[path.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	data, err := providers[0].Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s from %s: %w", ErrReadFailure, path, providers[0], err)
	}
	return data, nil
}

// SourceErrors returns one *SourceError per source that failed to
// open or scan, ordered by source name.
func (n *Namespace) SourceErrors() []error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.failures))
	for name := range n.failures {
		names = append(names, name)
	}
	slices.Sort(names)
	errs := make([]error, len(names))
	for i, name := range names {
		errs[i] = &SourceError{Source: name, Err: n.failures[name]}
	}
	return errs
}

// RefreshOptions selects how much a Refresh redoes.
type RefreshOptions struct {
	// ReopenArchives closes and reopens every archive. Without it
	// only override directories are rescanned.
	ReopenArchives bool
}

// Refresh rescans override directories and, when asked, reopens
// archives. Providers returned by earlier Resolve calls may fail to
// read after their archive is reopened.
func (n *Namespace) Refresh(options RefreshOptions) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if options.ReopenArchives {
		old := n.archives
		n.archives = nil
		n.openArchives()
		for _, opened := range old {
			if opened.archive != nil {
				opened.archive.Close()
			}
		}
	}
	n.scanOverrides()
	n.rebuildIndex()
	n.logger.Debug("namespace refreshed",
		"items", len(n.keys),
		"reopened_archives", options.ReopenArchives,
	)
}

// WriteOverride atomically writes data as path in the
// highest-precedence override directory and rescans overrides. An
// existing file for the same item keeps its on-disk casing.
func (n *Namespace) WriteOverride(path itempath.Path, data []byte) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	target := -1
	for i, source := range n.options.Overrides {
		if target < 0 || source.Priority >= n.options.Overrides[target].Priority {
			target = i
		}
	}
	if target < 0 {
		return "", ErrNoOverrideDir
	}
	root := n.options.Overrides[target].Root

	file := filepath.Join(root, filepath.FromSlash(path.String()))
	for _, existing := range n.overrides[target] {
		if existing.Path.Equal(path) {
			file = existing.File
			break
		}
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", file, err)
	}
	if err := renameio.WriteFile(file, data, 0o644); err != nil {
		return "", fmt.Errorf("writing override %s: %w", file, err)
	}

	n.scanOverrides()
	n.rebuildIndex()
	n.logger.Info("override written", "item", path.String(), "file", file, "bytes", len(data))
	return file, nil
}

// Pack writes the authoritative bytes of every item under prefix into
// a new container at output. The container replaces output atomically
// and only once every item has been read.
func (n *Namespace) Pack(ctx context.Context, prefix itempath.Path, output string, options container.WriteOptions) (int, error) {
	paths := n.List(prefix)
	inputs := make([]container.Input, 0, len(paths))
	var failures []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		data, err := n.Read(path)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		inputs = append(inputs, container.Input{Path: path, Data: data})
	}
	if len(failures) > 0 {
		return 0, fmt.Errorf("packing %s: %w", output, errors.Join(failures...))
	}
	if err := container.WriteFile(output, inputs, options); err != nil {
		return 0, err
	}
	n.logger.Info("container packed", "output", output, "items", len(inputs))
	return len(inputs), nil
}

// Close closes every open archive.
func (n *Namespace) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var errs []error
	for _, opened := range n.archives {
		if opened.archive == nil {
			continue
		}
		if err := opened.archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	n.archives = nil
	n.index = nil
	n.keys = nil
	return errors.Join(errs...)
}
