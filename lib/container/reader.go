// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/pakforge/pakforge/lib/binio"
	"github.com/pakforge/pakforge/lib/compress"
	"github.com/pakforge/pakforge/lib/fingerprint"
	"github.com/pakforge/pakforge/lib/itempath"
)

// Archive is an opened, read-only container. Its table of contents
// is parsed once at open time; entry bytes are read on demand with
// ReadAt, so concurrent Read calls are safe.
type Archive struct {
	name       string
	reader     io.ReaderAt
	closer     io.Closer
	size       int64
	dataOffset int64
	entries    []Entry
	index      map[string]int
	codecs     *compress.Set
}

// Open opens the container file at path.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	archive, err := OpenReader(file, info.Size(), path)
	if err != nil {
		file.Close()
		return nil, err
	}
	archive.closer = file
	return archive, nil
}

// OpenReader parses the container held by reader. name is used in
// error messages and by [Archive.Name].
func OpenReader(reader io.ReaderAt, size int64, name string) (*Archive, error) {
	if size < headerSize {
		return nil, corruptf("%s: %d bytes is smaller than the %d-byte header", name, size, headerSize)
	}

	var header [headerSize]byte
	if err := readFullAt(reader, header[:], 0); err != nil {
		return nil, fmt.Errorf("%s: reading header: %w", name, err)
	}

	headerReader := binio.NewReader(header[:])
	gotMagic, _ := headerReader.Bytes(4)
	if !bytes.Equal(gotMagic, magic[:]) {
		return nil, corruptf("%s: bad magic %q", name, gotMagic)
	}
	version, _ := headerReader.U16()
	if version != formatVersion {
		return nil, corruptf("%s: unsupported version %d", name, version)
	}
	flags, _ := headerReader.U16()
	entryCount, _ := headerReader.U32()
	tocSize, _ := headerReader.U32()
	tocChecksum, _ := headerReader.U32()
	dataOffset, _ := headerReader.U64()
	reserved, _ := headerReader.U32()
	if flags != 0 || reserved != 0 {
		return nil, corruptf("%s: non-zero reserved header fields", name)
	}
	if dataOffset != headerSize+uint64(tocSize) {
		return nil, corruptf("%s: data offset %d does not follow %d-byte TOC", name, dataOffset, tocSize)
	}
	if dataOffset > uint64(size) {
		return nil, corruptf("%s: TOC of %d bytes truncated (file is %d bytes)", name, tocSize, size)
	}
	if uint64(entryCount)*tocEntryFixedSize > uint64(tocSize) {
		return nil, corruptf("%s: %d entries cannot fit in %d-byte TOC", name, entryCount, tocSize)
	}

	toc := make([]byte, tocSize)
	if err := readFullAt(reader, toc, headerSize); err != nil {
		return nil, fmt.Errorf("%s: reading TOC: %w", name, err)
	}
	if crc32.Checksum(toc, castagnoli) != tocChecksum {
		return nil, corruptf("%s: TOC checksum mismatch", name)
	}

	archive := &Archive{
		name:       name,
		reader:     reader,
		size:       size,
		dataOffset: int64(dataOffset),
		entries:    make([]Entry, 0, entryCount),
		index:      make(map[string]int, entryCount),
		codecs:     compress.Default,
	}

	dataSize := uint64(size) - dataOffset
	tocReader := binio.NewReader(toc)
	for i := range entryCount {
		entry, err := readTOCEntry(tocReader)
		if err != nil {
			return nil, corruptf("%s: TOC entry %d: %v", name, i, err)
		}
		if entry.Offset > dataSize || uint64(entry.StoredSize) > dataSize-entry.Offset {
			return nil, corruptf("%s: entry %q range %d+%d exceeds %d-byte data region",
				name, entry.Path, entry.Offset, entry.StoredSize, dataSize)
		}
		if limit, ok := archive.codecs.MaxSize(entry.Compression, int(entry.StoredSize)); ok && int64(entry.Size) > limit {
			return nil, corruptf("%s: entry %q claims %d bytes from %d stored %s bytes",
				name, entry.Path, entry.Size, entry.StoredSize, entry.Compression)
		}
		if _, exists := archive.index[entry.Path.Key()]; exists {
			return nil, corruptf("%s: duplicate entry %q", name, entry.Path)
		}
		archive.index[entry.Path.Key()] = len(archive.entries)
		archive.entries = append(archive.entries, entry)
	}
	if tocReader.Remaining() != 0 {
		return nil, corruptf("%s: %d trailing bytes in TOC", name, tocReader.Remaining())
	}

	return archive, nil
}

// readFullAt fills buffer from offset. io.ReaderAt may return io.EOF
// alongside a full read at the end of the input; that is not an
// error here.
func readFullAt(reader io.ReaderAt, buffer []byte, offset int64) error {
	if len(buffer) == 0 {
		return nil
	}
	n, err := reader.ReadAt(buffer, offset)
	if n == len(buffer) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func readTOCEntry(reader *binio.Reader) (Entry, error) {
	var entry Entry

	tag, err := reader.U8()
	if err != nil {
		return entry, err
	}
	reserved, err := reader.U8()
	if err != nil {
		return entry, err
	}
	if reserved != 0 {
		return entry, fmt.Errorf("non-zero reserved byte")
	}
	pathLength, err := reader.U16()
	if err != nil {
		return entry, err
	}
	if entry.Offset, err = reader.U64(); err != nil {
		return entry, err
	}
	if entry.StoredSize, err = reader.U32(); err != nil {
		return entry, err
	}
	if entry.Size, err = reader.U32(); err != nil {
		return entry, err
	}
	checksum, err := reader.Bytes(len(entry.Checksum))
	if err != nil {
		return entry, err
	}
	copy(entry.Checksum[:], checksum)
	rawPath, err := reader.Bytes(int(pathLength))
	if err != nil {
		return entry, err
	}
	if entry.Path, err = itempath.Parse(string(rawPath)); err != nil {
		return entry, err
	}
	entry.Compression = compress.Tag(tag)
	return entry, nil
}

// WithCodecs replaces the compression set used by Read. The default
// is [compress.Default].
func (a *Archive) WithCodecs(codecs *compress.Set) *Archive {
	a.codecs = codecs
	return a
}

// Name returns the name the archive was opened with.
func (a *Archive) Name() string { return a.name }

// Entries returns the table of contents in stored order. The slice
// must not be modified.
func (a *Archive) Entries() []Entry { return a.entries }

// Lookup finds the entry for path.
func (a *Archive) Lookup(path itempath.Path) (Entry, bool) {
	index, ok := a.index[path.Key()]
	if !ok {
		return Entry{}, false
	}
	return a.entries[index], true
}

// Read returns the uncompressed bytes of entry. Size or checksum
// disagreement is reported as an [*EntryError] wrapping
// [ErrDecompression].
func (a *Archive) Read(entry Entry) ([]byte, error) {
	stored := make([]byte, entry.StoredSize)
	if err := readFullAt(a.reader, stored, a.dataOffset+int64(entry.Offset)); err != nil {
		return nil, &EntryError{Path: entry.Path, Err: fmt.Errorf("reading stored bytes: %w", err)}
	}

	data, err := a.codecs.Decompress(stored, entry.Compression, int(entry.Size))
	if err != nil {
		return nil, &EntryError{Path: entry.Path, Err: fmt.Errorf("%w: %v", ErrDecompression, err)}
	}
	if fingerprint.Entry(data) != entry.Checksum {
		return nil, &EntryError{Path: entry.Path, Err: fmt.Errorf("%w: checksum mismatch", ErrDecompression)}
	}
	return data, nil
}

// ReadPath is Lookup followed by Read. A missing path returns
// [os.ErrNotExist].
func (a *Archive) ReadPath(path itempath.Path) ([]byte, error) {
	entry, ok := a.Lookup(path)
	if !ok {
		return nil, &EntryError{Path: path, Err: os.ErrNotExist}
	}
	return a.Read(entry)
}

// Verify reads every entry and returns the per-entry failures joined
// with errors.Join, or nil when every entry is intact.
func (a *Archive) Verify() error {
	var failures []error
	for _, entry := range a.entries {
		if _, err := a.Read(entry); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

// Digest is the Merkle root over entry checksums in stored order.
// Two containers with the same entries in the same order share a
// digest regardless of compression choices.
func (a *Archive) Digest() fingerprint.Hash {
	checksums := make([]fingerprint.Hash, len(a.entries))
	for i, entry := range a.entries {
		checksums[i] = entry.Checksum
	}
	return fingerprint.MerkleRoot(fingerprint.ArchiveDomain, checksums)
}

// Close releases the underlying file when the archive was opened by
// path. Archives from OpenReader leave the reader to the caller.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
