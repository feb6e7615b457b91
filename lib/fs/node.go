// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"
	"os"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/audiofs/audiofs/lib/catalog"
	"github.com/audiofs/audiofs/lib/enginerr"
	"github.com/audiofs/audiofs/lib/source"
)

// node is one directory or regular file in the projected tree. Nodes
// are built on demand from Lookup/Readdir results rather than
// precomputed, since the catalog's projection can change shape as the
// source tree changes (spec §4.1).
type node struct {
	gofuse.Inode
	options  *Options
	relPath  string
	registry *inodeRegistry
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeReaddirer = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeOpener = (*node)(nil)
var _ gofuse.NodeSetattrer = (*node)(nil)
var _ gofuse.NodeUnlinker = (*node)(nil)
var _ gofuse.NodeMkdirer = (*node)(nil)
var _ gofuse.NodeCreater = (*node)(nil)

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	childRel := joinRel(n.relPath, name)
	entry, err := n.options.Catalog.Lookup(childRel)
	if err != nil {
		return nil, errnoFor(err)
	}

	attr, err := n.options.Catalog.Getattr(ctx, childRel)
	if err != nil {
		return nil, errnoFor(err)
	}
	fillEntryOut(out, attr)

	var inode *gofuse.Inode
	if entry.Type == catalog.TypeDir {
		child := &node{options: n.options, relPath: childRel, registry: n.registry}
		inode = n.NewInode(ctx, child, gofuse.StableAttr{Mode: syscall.S_IFDIR})
	} else {
		child := &node{options: n.options, relPath: childRel, registry: n.registry}
		inode = n.NewInode(ctx, child, gofuse.StableAttr{Mode: syscall.S_IFREG})
	}
	n.registry.register(childRel, inode)
	return inode, 0
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := n.options.Catalog.Readdir(n.relPath)
	if err != nil {
		return nil, errnoFor(err)
	}

	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(syscall.S_IFREG)
		if e.Type == catalog.TypeDir {
			mode = syscall.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return &sliceDirStream{entries: out}, 0
}

func (n *node) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.options.Catalog.Getattr(ctx, n.relPath)
	if err != nil {
		return errnoFor(err)
	}
	fillAttrOut(out, attr)
	return 0
}

// Open rejects any write intent outright (spec §4.6: the mount is
// read-only) and otherwise resolves the backing bytes: a passthrough
// entry opens the source file directly; a driven entry goes through
// the build coordinator, pinning the resulting cache handle for the
// lifetime of the file descriptor.
func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}

	entry, err := n.options.Catalog.Lookup(n.relPath)
	if err != nil {
		return nil, 0, errnoFor(err)
	}
	if entry.Type == catalog.TypeDir {
		return nil, 0, syscall.EISDIR
	}

	if entry.Passthrough {
		file, err := os.Open(entry.SourcePath)
		if err != nil {
			return nil, 0, errnoFor(enginerr.Wrap(enginerr.SourceUnavailable, "fs: opening %s: %w", entry.SourcePath, err))
		}
		return &readHandle{file: file}, fuse.FOPEN_KEEP_CACHE, 0
	}

	job := entry.Job
	identity, _, statErr := source.Stat(job.SourcePath)
	if statErr != nil {
		return nil, 0, errnoFor(enginerr.Wrap(enginerr.SourceUnavailable, "fs: stat %s: %w", job.SourcePath, statErr))
	}
	job.SourceIdentity = identity

	handle, buildErr := n.options.Coordinator.GetOrBuild(ctx, n.options.Driver, job)
	if buildErr != nil {
		return nil, 0, errnoFor(buildErr)
	}

	file, err := os.Open(handle.Path)
	if err != nil {
		n.options.Store.Release(handle)
		return nil, 0, errnoFor(enginerr.Wrap(enginerr.CacheIoFailure, "fs: opening cache entry %s: %w", handle.Path, err))
	}
	return &readHandle{file: file, store: n.options.Store, handle: handle}, fuse.FOPEN_KEEP_CACHE, 0
}

// Setattr rejects every attribute change (truncate, chmod, chown,
// utimes) unconditionally: the mount is read-only (spec §4.6, P7).
func (n *node) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

// Unlink rejects every delete unconditionally: the mount is read-only
// (spec §4.6, P7).
func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	return syscall.EROFS
}

// Mkdir rejects every directory creation unconditionally: the mount is
// read-only (spec §4.6, P7).
func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

// Create rejects every new-file-for-write request unconditionally: the
// mount is read-only (spec §4.6, P7).
func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EROFS
}

// errnoFor is the single centralized translation from an enginerr Kind
// to the syscall.Errno the kernel sees (spec §10.2).
func errnoFor(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	kind, ok := enginerr.KindOf(err)
	if !ok {
		if errors.Is(err, os.ErrNotExist) {
			return syscall.ENOENT
		}
		return syscall.EIO
	}
	switch kind {
	case enginerr.NotFound:
		return syscall.ENOENT
	case enginerr.NotPermitted:
		return syscall.EROFS
	case enginerr.Cancelled:
		return syscall.EINTR
	case enginerr.Budget:
		return syscall.ENOSPC
	case enginerr.SourceUnavailable, enginerr.DriverFailure, enginerr.CacheIoFailure:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}

func fillEntryOut(out *fuse.EntryOut, attr catalog.Attr) {
	mode := uint32(syscall.S_IFREG | 0o444)
	if attr.Dir {
		mode = syscall.S_IFDIR | 0o555
	}
	out.Mode = mode
	out.Size = uint64(attr.Size)
	out.SetTimes(&attr.Atime, &attr.ModTime, &attr.Ctime)
}

func fillAttrOut(out *fuse.AttrOut, attr catalog.Attr) {
	mode := uint32(syscall.S_IFREG | 0o444)
	if attr.Dir {
		mode = syscall.S_IFDIR | 0o555
	}
	out.Mode = mode
	out.Size = uint64(attr.Size)
	out.SetTimes(&attr.Atime, &attr.ModTime, &attr.Ctime)
}

// sliceDirStream implements gofuse.DirStream from a precomputed slice
// of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool { return s.index < len(s.entries) }

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	e := s.entries[s.index]
	s.index++
	return e, 0
}

func (s *sliceDirStream) Close() {}
