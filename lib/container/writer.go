// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/google/renameio"
	"golang.org/x/sync/errgroup"

	"github.com/pakforge/pakforge/lib/binio"
	"github.com/pakforge/pakforge/lib/compress"
	"github.com/pakforge/pakforge/lib/fingerprint"
	"github.com/pakforge/pakforge/lib/itempath"
)

// Input is one item to be written into a new container.
type Input struct {
	Path itempath.Path
	Data []byte
}

// WriteOptions controls container serialization.
type WriteOptions struct {
	// Compression is "auto" (or empty), "none", "lz4" or "zstd".
	// Auto probes each entry independently; a fixed algorithm
	// still stores an entry uncompressed when compression would
	// not shrink it.
	Compression string

	// Codecs overrides the compression set. Nil uses
	// compress.Default.
	Codecs *compress.Set
}

type stagedEntry struct {
	entry  Entry
	stored []byte
}

// Write serializes inputs into a complete container. Entries are
// ordered by item path key so rewriting an unmodified set of items
// is byte-reproducible. Nothing is returned unless every entry
// compressed successfully.
func Write(inputs []Input, options WriteOptions) ([]byte, error) {
	codecs := options.Codecs
	if codecs == nil {
		codecs = compress.Default
	}
	auto := options.Compression == "" || options.Compression == "auto"
	var fixed compress.Tag
	if !auto {
		tag, err := compress.ParseTag(options.Compression)
		if err != nil {
			return nil, err
		}
		fixed = tag
	}

	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	slices.SortStableFunc(sorted, func(a, b Input) int { return a.Path.Compare(b.Path) })
	for i := range sorted {
		if sorted[i].Path.IsRoot() {
			return nil, fmt.Errorf("input %d: %w", i, itempath.ErrEmpty)
		}
		if i > 0 && sorted[i].Path.Equal(sorted[i-1].Path) {
			return nil, fmt.Errorf("%w: %q and %q", ErrDuplicatePath, sorted[i-1].Path, sorted[i].Path)
		}
		if uint64(len(sorted[i].Data)) > math.MaxUint32 {
			return nil, fmt.Errorf("%s: %d bytes exceeds the 4 GiB entry limit", sorted[i].Path, len(sorted[i].Data))
		}
		if len(sorted[i].Path.String()) > maxPathLength {
			return nil, fmt.Errorf("%s: path exceeds %d bytes", sorted[i].Path, maxPathLength)
		}
	}

	// Compression is per entry and independent, so it parallelizes
	// without affecting the output order.
	staged := make([]stagedEntry, len(sorted))
	var group errgroup.Group
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i, input := range sorted {
		group.Go(func() error {
			stored, tag, err := compressEntry(codecs, input.Data, auto, fixed)
			if err != nil {
				return &EntryError{Path: input.Path, Err: err}
			}
			staged[i] = stagedEntry{
				entry: Entry{
					Path:        input.Path,
					Compression: tag,
					StoredSize:  uint32(len(stored)),
					Size:        uint32(len(input.Data)),
					Checksum:    fingerprint.Entry(input.Data),
				},
				stored: stored,
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var offset uint64
	toc := binio.NewWriter()
	for i := range staged {
		entry := &staged[i].entry
		entry.Offset = offset
		offset += uint64(entry.StoredSize)

		path := entry.Path.String()
		toc.PutU8(uint8(entry.Compression))
		toc.PutU8(0)
		toc.PutU16(uint16(len(path)))
		toc.PutU64(entry.Offset)
		toc.PutU32(entry.StoredSize)
		toc.PutU32(entry.Size)
		toc.PutBytes(entry.Checksum[:])
		toc.PutBytes([]byte(path))
	}
	if uint64(toc.Len()) > math.MaxUint32 {
		return nil, fmt.Errorf("table of contents is %d bytes, exceeds 4 GiB", toc.Len())
	}

	output := binio.NewWriter()
	output.PutBytes(magic[:])
	output.PutU16(formatVersion)
	output.PutU16(0)
	output.PutU32(uint32(len(staged)))
	output.PutU32(uint32(toc.Len()))
	output.PutU32(crc32.Checksum(toc.Bytes(), castagnoli))
	output.PutU64(uint64(headerSize + toc.Len()))
	output.PutU32(0)
	output.PutBytes(toc.Bytes())
	for _, entry := range staged {
		output.PutBytes(entry.stored)
	}
	return output.Bytes(), nil
}

func compressEntry(codecs *compress.Set, data []byte, auto bool, fixed compress.Tag) ([]byte, compress.Tag, error) {
	if auto {
		return codecs.CompressAuto(data)
	}
	stored, err := codecs.Compress(data, fixed)
	if errors.Is(err, compress.ErrIncompressible) {
		return data, compress.None, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return stored, fixed, nil
}

// WriteFile serializes inputs and atomically replaces path with the
// result. Readers of path see either the old container or the new
// one, never a partial write.
func WriteFile(path string, inputs []Input, options WriteOptions) error {
	data, err := Write(inputs, options)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing container %s: %w", path, err)
	}
	return nil
}

// InputsFromDir reads every regular file under dir as an Input whose
// path is the file's path relative to dir.
func InputsFromDir(dir string) ([]Input, error) {
	var inputs []Input
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relative, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		itemPath, err := itempath.Parse(filepath.ToSlash(relative))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		inputs = append(inputs, Input{Path: itemPath, Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inputs, nil
}
