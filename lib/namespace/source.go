// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package namespace

import (
	"errors"
	"fmt"
	"os"

	"github.com/pakforge/pakforge/lib/container"
	"github.com/pakforge/pakforge/lib/itempath"
)

var (
	// ErrNotFound is returned when no source provides a path.
	ErrNotFound = errors.New("item not found")

	// ErrReadFailure wraps errors from the source that owns a path.
	ErrReadFailure = errors.New("item read failed")

	// ErrNoOverrideDir is returned by WriteOverride when the
	// namespace has no override directory to write into.
	ErrNoOverrideDir = errors.New("no override directory configured")
)

// ArchiveSource declares one container file.
type ArchiveSource struct {
	Path     string
	Priority int
}

// OverrideSource declares one loose-file directory tree.
type OverrideSource struct {
	Root     string
	Priority int
}

// SourceError reports a source that could not be opened or scanned.
// The namespace keeps serving every other source.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Kind distinguishes archive entries from override files.
type Kind uint8

const (
	KindArchive Kind = iota
	KindOverride
)

func (k Kind) String() string {
	switch k {
	case KindArchive:
		return "archive"
	case KindOverride:
		return "override"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// ByteSource is one provider of an item. It records where the bytes
// live without reading them.
type ByteSource struct {
	// Path is the item path in the provider's own casing.
	Path itempath.Path

	// Kind is archive or override.
	Kind Kind

	// Source is the archive file path or override root.
	Source string

	// Priority and Declared are the provider's precedence inputs.
	// Declared is the index of the source within its kind.
	Priority int
	Declared int

	// File is the override file on disk. Empty for archive entries.
	File string

	// Size is the uncompressed size for archive entries and the
	// file size at scan time for overrides.
	Size int64

	entry   container.Entry
	archive *container.Archive
}

// Read loads the provider's bytes.
func (b ByteSource) Read() ([]byte, error) {
	switch b.Kind {
	case KindArchive:
		return b.archive.Read(b.entry)
	case KindOverride:
		return os.ReadFile(b.File)
	default:
		return nil, fmt.Errorf("unknown source kind %s", b.Kind)
	}
}

// String identifies the provider for logs and CLI output.
func (b ByteSource) String() string {
	if b.Kind == KindOverride {
		return fmt.Sprintf("override %s (priority %d)", b.File, b.Priority)
	}
	return fmt.Sprintf("archive %s:%s (priority %d)", b.Source, b.Path, b.Priority)
}

// outranks reports whether b takes precedence over other. Any
// override beats any archive; within a kind the higher priority
// wins and ties go to the source declared last.
func (b ByteSource) outranks(other ByteSource) bool {
	if b.Kind != other.Kind {
		return b.Kind == KindOverride
	}
	if b.Priority != other.Priority {
		return b.Priority > other.Priority
	}
	return b.Declared > other.Declared
}
