// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package namespace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pakforge/pakforge/lib/itempath"
)

// watchSettle is how long the override trees must stay quiet before a
// burst of events is applied as one rescan.
const watchSettle = 100 * time.Millisecond

// Watch rescans override directories whenever a file under one of
// them changes, and calls notify with the item paths touched since the
// previous rescan. Events are coalesced until the trees have been
// quiet for watchSettle. notify may be nil. Watch blocks until ctx
// is done or the watcher fails.
func (n *Namespace) Watch(ctx context.Context, notify func([]itempath.Path)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating override watcher: %w", err)
	}
	defer watcher.Close()

	n.mu.RLock()
	roots := make([]string, len(n.options.Overrides))
	for i, source := range n.options.Overrides {
		roots[i] = source.Root
	}
	n.mu.RUnlock()

	for _, root := range roots {
		if err := addTree(watcher, root); err != nil {
			n.logger.Warn("override directory not watched", "root", root, "error", err)
		}
	}

	settle := time.NewTimer(watchSettle)
	settle.Stop()
	defer settle.Stop()
	pending := make(map[string]itempath.Path)
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching overrides: %w", watchErr)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// New subdirectories need their own watch; fsnotify is
			// not recursive.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						n.logger.Warn("new override directory not watched", "directory", event.Name, "error", err)
					}
				}
			}
			if isTempName(filepath.Base(event.Name)) {
				continue
			}
			n.logger.Debug("override change", "file", event.Name, "op", event.Op.String())
			for _, path := range pathsForEvent(roots, event) {
				pending[path.Key()] = path
			}
			dirty = true
			settle.Reset(watchSettle)

		case <-settle.C:
			if !dirty {
				continue
			}
			n.Refresh(RefreshOptions{})
			touched := make([]itempath.Path, 0, len(pending))
			for _, path := range pending {
				touched = append(touched, path)
			}
			slices.SortFunc(touched, func(a, b itempath.Path) int { return strings.Compare(a.Key(), b.Key()) })
			clear(pending)
			dirty = false
			if notify != nil && len(touched) > 0 {
				notify(touched)
			}
		}
	}
}

// isTempName reports whether a file name is hidden. Atomic writers
// (renameio among them) stage their output under a dot-prefixed name
// in the target directory before renaming it into place.
func isTempName(name string) bool {
	return strings.HasPrefix(name, ".")
}

func pathsForEvent(roots []string, event fsnotify.Event) []itempath.Path {
	if isTempName(filepath.Base(event.Name)) {
		return nil
	}
	for _, root := range roots {
		relative, err := filepath.Rel(root, event.Name)
		if err != nil {
			continue
		}
		// Parse rejects "." and anything climbing out of root.
		path, err := itempath.Parse(filepath.ToSlash(relative))
		if err != nil {
			continue
		}
		return []itempath.Path{path}
	}
	return nil
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
