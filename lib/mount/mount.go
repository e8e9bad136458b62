// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/pakforge/pakforge/lib/itempath"
	"github.com/pakforge/pakforge/lib/namespace"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// Namespace provides the items.
	Namespace *namespace.Namespace

	// AllowOther permits other users (including root) to access
	// the mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, only errors are
	// logged to stderr.
	Logger *slog.Logger
}

// Mount mounts the namespace at the configured mountpoint. The caller
// must call Unmount on the returned Server when done. The mountpoint
// directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Namespace == nil {
		return nil, fmt.Errorf("namespace is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &dirNode{options: &options}

	// Overrides can change while mounted, so kernel caching is kept
	// short.
	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "pakforge",
			Name:       "pakforge",
			AllowOther: options.AllowOther,
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("namespace mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

// entry is one immediate child of a directory.
type entry struct {
	name      string
	directory bool
}

// children returns the immediate children of prefix among paths,
// sorted by name. A name that is both an item and a directory is
// reported as a directory.
func children(prefix itempath.Path, paths []itempath.Path) []entry {
	depth := 0
	if !prefix.IsRoot() {
		depth = strings.Count(prefix.String(), "/") + 1
	}

	byKey := make(map[string]int)
	var entries []entry
	for _, path := range paths {
		if !path.IsRoot() && !prefix.IsRoot() && !strings.HasPrefix(path.Key(), prefix.Key()+"/") {
			continue
		}
		segments := strings.Split(path.String(), "/")
		if len(segments) <= depth {
			continue
		}
		name, directory := segments[depth], true
		if path.Dir().Equal(prefix) {
			name, directory = path.Base(), false
		}
		key := strings.ToLower(name)
		if index, ok := byKey[key]; ok {
			entries[index].directory = entries[index].directory || directory
			continue
		}
		byKey[key] = len(entries)
		entries = append(entries, entry{name: name, directory: directory})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries
}

// dirNode is a directory synthesized from item path segments. The
// root has an empty prefix.
type dirNode struct {
	gofuse.Inode
	options *Options
	prefix  itempath.Path
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)
var _ gofuse.NodeGetattrer = (*dirNode)(nil)

func (d *dirNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | 0o555
	return 0
}

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	child, err := d.prefix.Join(name)
	if err != nil {
		return nil, syscall.ENOENT
	}

	// Directory takes precedence over a same-named item.
	for _, candidate := range children(d.prefix, d.options.Namespace.List(child)) {
		if !strings.EqualFold(candidate.name, name) || !candidate.directory {
			continue
		}
		node := d.NewInode(ctx, &dirNode{options: d.options, prefix: child}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
		out.Mode = syscall.S_IFDIR | 0o555
		return node, 0
	}

	source, err := d.options.Namespace.Resolve(child)
	if err != nil {
		if !errors.Is(err, namespace.ErrNotFound) {
			d.options.Logger.Error("resolve failed", "item", child.String(), "error", err)
			return nil, syscall.EIO
		}
		return nil, syscall.ENOENT
	}
	node := d.NewInode(ctx, &fileNode{options: d.options, path: source.Path, size: source.Size}, gofuse.StableAttr{Mode: syscall.S_IFREG})
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(source.Size)
	return node, 0
}

func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	for _, child := range children(d.prefix, d.options.Namespace.List(d.prefix)) {
		mode := uint32(syscall.S_IFREG)
		if child.directory {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: child.name, Mode: mode})
	}
	return gofuse.NewListDirStream(entries), 0
}

// fileNode is one item as a regular file.
type fileNode struct {
	gofuse.Inode
	options *Options
	path    itempath.Path
	size    int64
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, handle gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	size := f.size
	if open, ok := handle.(*fileHandle); ok {
		size = int64(len(open.data))
	} else if source, err := f.options.Namespace.Resolve(f.path); err == nil {
		size = source.Size
	}
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(size)
	out.Blocks = (out.Size + 511) / 512
	return 0
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	data, err := f.options.Namespace.Read(f.path)
	if err != nil {
		if errors.Is(err, namespace.ErrNotFound) {
			return nil, 0, syscall.ENOENT
		}
		f.options.Logger.Error("read failed", "item", f.path.String(), "error", err)
		return nil, 0, syscall.EIO
	}
	// The size known at lookup can be stale after an override edit.
	return &fileHandle{data: data}, fuse.FOPEN_DIRECT_IO, 0
}

func (f *fileNode) Read(ctx context.Context, handle gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	open, ok := handle.(*fileHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	return open.read(dest, off), 0
}

// fileHandle holds the bytes read at open.
type fileHandle struct {
	data []byte
}

func (h *fileHandle) read(dest []byte, off int64) fuse.ReadResult {
	if off >= int64(len(h.data)) {
		return fuse.ReadResultData(nil)
	}
	end := off + int64(len(dest))
	if end > int64(len(h.data)) {
		end = int64(len(h.data))
	}
	return fuse.ReadResultData(h.data[off:end])
}
