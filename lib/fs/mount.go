// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package fs implements the Filesystem Adapter (spec §4.6): the
// go-fuse binding that exposes a catalog.Catalog's projected namespace
// as a read-only FUSE mount, routing open through the build
// coordinator and translating enginerr values to syscall.Errno at this
// single boundary.
package fs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/audiofs/audiofs/lib/build"
	"github.com/audiofs/audiofs/lib/cache"
	"github.com/audiofs/audiofs/lib/catalog"
	"github.com/audiofs/audiofs/lib/driver"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// Catalog answers lookup/readdir/getattr for the projection being
	// served.
	Catalog *catalog.Catalog

	// Coordinator implements get-or-build for non-passthrough entries.
	Coordinator *build.Coordinator

	// Store is the cache store backing Coordinator, needed so opened
	// handles can be released on file close.
	Store *cache.Store

	// Driver is the single encoder driver this mount projects
	// through (one of SplitTrack, Mp3Encode, OggEncode — a mount
	// serves exactly one projection, per spec.md §1).
	Driver driver.Driver

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Mount mounts the projected filesystem at the configured mountpoint.
// The caller must call Unmount on the returned Server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if options.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if options.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if options.Driver == nil {
		return nil, fmt.Errorf("driver is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	registry := newInodeRegistry()
	root := &node{options: &options, relPath: "", registry: registry}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "audiofs",
			Name:       options.Driver.ID(),
			AllowOther: options.AllowOther,
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	registry.register("", root.EmbeddedInode())
	options.Catalog.OnInvalidate(func(relPath string) {
		registry.invalidate(relPath)
	})

	options.Logger.Info("audiofs mounted", "driver", options.Driver.ID(), "mountpoint", options.Mountpoint)
	return server, nil
}

// inodeRegistry tracks the live *gofuse.Inode for every projected path
// the kernel currently holds a reference to, so the catalog's
// size-change signal (spec §4.1) can trigger a kernel-visible
// attribute invalidation.
type inodeRegistry struct {
	mu    sync.Mutex
	byRel map[string]*gofuse.Inode
}

func newInodeRegistry() *inodeRegistry {
	return &inodeRegistry{byRel: make(map[string]*gofuse.Inode)}
}

func (r *inodeRegistry) register(relPath string, inode *gofuse.Inode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRel[relPath] = inode
}

func (r *inodeRegistry) invalidate(relPath string) {
	r.mu.Lock()
	inode := r.byRel[relPath]
	r.mu.Unlock()
	if inode != nil {
		inode.NotifyContent(0, 0)
	}
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return path.Join(parent, name)
}
