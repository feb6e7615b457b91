// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package source models identity and metadata for files in the source
// tree that the engine projects from. Source files are immutable to
// the engine: it only ever reads them.
package source

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"
)

// Identity is a source file's stable identity: (device, inode,
// modification time, size). Two stats of the same unmodified file
// always yield the same Identity; a change to any field means the
// file has effectively become a different source as far as the cache
// is concerned, and any fingerprint computed from the old Identity is
// abandoned rather than invalidated in place.
type Identity struct {
	Device  uint64
	Inode   uint64
	ModTime time.Time
	Size    int64
}

// Stat derives an Identity from a regular file at path.
func Stat(path string) (Identity, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Identity{}, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Identity{}, nil, fmt.Errorf("stat %s: unsupported platform stat_t", path)
	}
	return Identity{
		Device:  uint64(stat.Dev),
		Inode:   stat.Ino,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, info, nil
}

// CanonicalString renders the Identity as a stable string suitable for
// hashing into a fingerprint. Not meant for display.
func (id Identity) CanonicalString() string {
	return strconv.FormatUint(id.Device, 16) + ":" +
		strconv.FormatUint(id.Inode, 16) + ":" +
		strconv.FormatInt(id.ModTime.UnixNano(), 10) + ":" +
		strconv.FormatInt(id.Size, 10)
}

// Changed reports whether other describes a different file state than
// id — any field differing counts as changed.
func (id Identity) Changed(other Identity) bool {
	return id != other
}
