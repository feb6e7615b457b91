// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/audiofs/audiofs/lib/cache"
)

// readHandle is the per-open file handle for a read, kept separate
// from node because a node is shared across every concurrent open of
// the same path while a handle is not. When handle and store are both
// set, the handle pins a build coordinator result for the lifetime of
// the file descriptor and unpins it on Release.
type readHandle struct {
	file   *os.File
	store  *cache.Store
	handle *cache.Handle
}

var _ gofuse.FileReader = (*readHandle)(nil)
var _ gofuse.FileReleaser = (*readHandle)(nil)

func (h *readHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.file.ReadAt(dest, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *readHandle) Release(ctx context.Context) syscall.Errno {
	closeErr := h.file.Close()
	if h.store != nil && h.handle != nil {
		h.store.Release(h.handle)
	}
	if closeErr != nil {
		return syscall.EIO
	}
	return 0
}
