// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package regionfs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/bureau-foundation/regionfs/lib/clock"
	"github.com/bureau-foundation/regionfs/lib/inode"
	"github.com/bureau-foundation/regionfs/lib/provider"
	"github.com/bureau-foundation/regionfs/lib/region"
	"github.com/bureau-foundation/regionfs/lib/vfile"
)

// filesystem is the state shared by every node of one mount.
type filesystem struct {
	mapper    *inode.Mapper
	provider  *provider.Provider
	policy    vfile.Policy
	clock     clock.Clock
	timestamp uint32
	started   time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	generic map[string]*genericFile
}

func (fs *filesystem) regionAttr(handle inode.Handle, out *fuse.Attr) {
	out.Ino = uint64(handle)
	out.Mode = syscall.S_IFREG | 0o644
	out.Size = uint64(fs.policy.FileSize())
	out.Blocks = (out.Size + 511) / 512
	out.Blksize = region.SectorSize
	out.SetTimes(nil, &fs.started, &fs.started)
}

// rootNode is the mount's only directory.
type rootNode struct {
	gofuse.Inode
	fs *filesystem
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeLookuper = (*rootNode)(nil)
var _ gofuse.NodeReaddirer = (*rootNode)(nil)
var _ gofuse.NodeCreater = (*rootNode)(nil)
var _ gofuse.NodeUnlinker = (*rootNode)(nil)

// Lookup succeeds for every region name. Other names exist only once
// created.
func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	identity := r.fs.mapper.Resolve(name)
	if identity.Kind == inode.Region {
		return r.regionInode(ctx, identity, out), 0
	}

	r.fs.mu.Lock()
	file, ok := r.fs.generic[name]
	r.fs.mu.Unlock()
	if !ok {
		return nil, syscall.ENOENT
	}
	return r.genericInode(ctx, name, file, out), 0
}

func (r *rootNode) regionInode(ctx context.Context, identity inode.Identity, out *fuse.EntryOut) *gofuse.Inode {
	handle := r.fs.mapper.HandleOf(identity)
	r.fs.regionAttr(handle, &out.Attr)
	node := &regionNode{fs: r.fs, pos: identity.Region, handle: handle}
	return r.NewInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG, Ino: uint64(handle)})
}

func (r *rootNode) genericInode(ctx context.Context, name string, file *genericFile, out *fuse.EntryOut) *gofuse.Inode {
	handle := r.fs.mapper.HandleOf(inode.Identity{Kind: inode.Generic, Path: name})
	file.attr(handle, &out.Attr)
	node := &genericNode{fs: r.fs, file: file, handle: handle}
	return r.NewInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG, Ino: uint64(handle)})
}

// Readdir lists the generic files. Region files are not listed: there
// is one for every coordinate.
func (r *rootNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	r.fs.mu.Lock()
	names := make([]string, 0, len(r.fs.generic))
	for name := range r.fs.generic {
		names = append(names, name)
	}
	r.fs.mu.Unlock()
	sort.Strings(names)

	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		handle := r.fs.mapper.HandleOf(inode.Identity{Kind: inode.Generic, Path: name})
		entries = append(entries, fuse.DirEntry{Name: name, Mode: syscall.S_IFREG, Ino: uint64(handle)})
	}
	return gofuse.NewListDirStream(entries), 0
}

// Create opens a region file, which already exists, or makes an empty
// generic file.
func (r *rootNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	identity := r.fs.mapper.Resolve(name)
	if identity.Kind == inode.Region {
		child := r.regionInode(ctx, identity, out)
		handle, fuseFlags, status := child.Operations().(*regionNode).Open(ctx, flags)
		if status != 0 {
			return nil, nil, 0, status
		}
		return child, handle, fuseFlags, 0
	}

	r.fs.mu.Lock()
	file, ok := r.fs.generic[name]
	if !ok {
		file = newGenericFile(r.fs.clock.Now())
		r.fs.generic[name] = file
	}
	r.fs.mu.Unlock()

	return r.genericInode(ctx, name, file, out), nil, 0, 0
}

// Unlink removes a generic file. Region files cannot be removed.
func (r *rootNode) Unlink(ctx context.Context, name string) syscall.Errno {
	if r.fs.mapper.Resolve(name).Kind == inode.Region {
		return syscall.EPERM
	}
	r.fs.mu.Lock()
	defer r.fs.mu.Unlock()
	if _, ok := r.fs.generic[name]; !ok {
		return syscall.ENOENT
	}
	delete(r.fs.generic, name)
	r.fs.mapper.Forget(name)
	return 0
}

// regionNode is one r.<X>.<Z>.mca file.
type regionNode struct {
	gofuse.Inode
	fs     *filesystem
	pos    region.RegionPos
	handle inode.Handle
}

var _ gofuse.InodeEmbedder = (*regionNode)(nil)
var _ gofuse.NodeGetattrer = (*regionNode)(nil)
var _ gofuse.NodeSetattrer = (*regionNode)(nil)
var _ gofuse.NodeOpener = (*regionNode)(nil)

func (n *regionNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.fs.regionAttr(n.handle, &out.Attr)
	return 0
}

// Setattr accepts and ignores every change. Region files have a fixed
// size and the server truncates on open in some code paths.
func (n *regionNode) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	n.fs.regionAttr(n.handle, &out.Attr)
	return 0
}

func (n *regionNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	logger := n.fs.logger.With("region", n.pos.Filename())
	file, err := vfile.Open(ctx, n.pos, n.fs.provider, n.fs.policy, vfile.Options{
		Timestamp: n.fs.timestamp,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("opening region file failed", "error", err)
		return nil, 0, errno(err)
	}
	// FOPEN_KEEP_CACHE is not set, so the kernel drops cached pages on
	// each open and a stateful write is visible to the next reader.
	return &regionHandle{file: file, logger: logger}, 0, 0
}

// regionHandle serves one open of a region file.
type regionHandle struct {
	file   *vfile.File
	logger *slog.Logger
}

var _ gofuse.FileReader = (*regionHandle)(nil)
var _ gofuse.FileWriter = (*regionHandle)(nil)
var _ gofuse.FileFlusher = (*regionHandle)(nil)
var _ gofuse.FileFsyncer = (*regionHandle)(nil)
var _ gofuse.FileReleaser = (*regionHandle)(nil)

func (h *regionHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.file.ReadAt(ctx, dest, off)
	if err != nil && !errors.Is(err, io.EOF) {
		h.logger.Error("read failed", "offset", off, "length", len(dest), "error", err)
		return nil, errno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *regionHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := h.file.WriteAt(ctx, data, off)
	if err != nil {
		h.logger.Error("write failed", "offset", off, "length", len(data), "error", err)
		return 0, errno(err)
	}
	return uint32(n), 0
}

func (h *regionHandle) Flush(ctx context.Context) syscall.Errno { return 0 }

func (h *regionHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno { return 0 }

func (h *regionHandle) Release(ctx context.Context) syscall.Errno {
	if err := h.file.Close(); err != nil {
		h.logger.Error("closing region file failed", "error", err)
		return errno(err)
	}
	return 0
}

// genericFile is the content of a non-region file.
type genericFile struct {
	mu       sync.Mutex
	data     []byte
	modified time.Time
}

func newGenericFile(now time.Time) *genericFile {
	return &genericFile{modified: now}
}

func (g *genericFile) attr(handle inode.Handle, out *fuse.Attr) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out.Ino = uint64(handle)
	out.Mode = syscall.S_IFREG | 0o644
	out.Size = uint64(len(g.data))
	out.Blocks = (out.Size + 511) / 512
	out.SetTimes(nil, &g.modified, &g.modified)
}

// genericNode serves a genericFile without file handles.
type genericNode struct {
	gofuse.Inode
	fs     *filesystem
	file   *genericFile
	handle inode.Handle
}

var _ gofuse.InodeEmbedder = (*genericNode)(nil)
var _ gofuse.NodeGetattrer = (*genericNode)(nil)
var _ gofuse.NodeSetattrer = (*genericNode)(nil)
var _ gofuse.NodeOpener = (*genericNode)(nil)
var _ gofuse.NodeReader = (*genericNode)(nil)
var _ gofuse.NodeWriter = (*genericNode)(nil)
var _ gofuse.NodeFsyncer = (*genericNode)(nil)

func (n *genericNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.file.attr(n.handle, &out.Attr)
	return 0
}

// Setattr supports truncation. Other attribute changes are accepted
// and ignored.
func (n *genericNode) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		n.file.mu.Lock()
		n.file.data = resize(n.file.data, int(size))
		n.file.modified = n.fs.clock.Now()
		n.file.mu.Unlock()
	}
	n.file.attr(n.handle, &out.Attr)
	return 0
}

func (n *genericNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&syscall.O_TRUNC != 0 {
		n.file.mu.Lock()
		n.file.data = n.file.data[:0]
		n.file.modified = n.fs.clock.Now()
		n.file.mu.Unlock()
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *genericNode) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n.file.mu.Lock()
	defer n.file.mu.Unlock()
	if off >= int64(len(n.file.data)) {
		return fuse.ReadResultData(nil), 0
	}
	copied := copy(dest, n.file.data[off:])
	return fuse.ReadResultData(dest[:copied]), 0
}

func (n *genericNode) Write(ctx context.Context, f gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	if off < 0 {
		return 0, syscall.EINVAL
	}
	n.file.mu.Lock()
	defer n.file.mu.Unlock()
	end := int(off) + len(data)
	if end > len(n.file.data) {
		n.file.data = resize(n.file.data, end)
	}
	copy(n.file.data[off:], data)
	n.file.modified = n.fs.clock.Now()
	return uint32(len(data)), 0
}

func (n *genericNode) Fsync(ctx context.Context, f gofuse.FileHandle, flags uint32) syscall.Errno {
	return 0
}

// resize returns data grown with zeros or cut to size.
func resize(data []byte, size int) []byte {
	if size <= len(data) {
		return data[:size]
	}
	grown := make([]byte, size)
	copy(grown, data)
	return grown
}
