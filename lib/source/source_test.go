// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStatDerivesIdentityFromRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.flac")
	if err := os.WriteFile(path, []byte("flac-bytes"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	id, info, err := Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if id.Size != int64(len("flac-bytes")) {
		t.Errorf("size = %d, want %d", id.Size, len("flac-bytes"))
	}
	if info.Size() != id.Size {
		t.Errorf("info.Size() = %d, identity.Size = %d", info.Size(), id.Size)
	}
}

func TestChangedDetectsSizeDifference(t *testing.T) {
	a := Identity{Device: 1, Inode: 2, Size: 10}
	b := a
	b.Size = 11
	if !a.Changed(b) {
		t.Error("expected Changed to report a difference in Size")
	}
	if a.Changed(a) {
		t.Error("expected Changed to report no difference for identical identities")
	}
}

func TestCanonicalStringIsStableAndDistinguishing(t *testing.T) {
	a := Identity{Device: 1, Inode: 2, Size: 10}
	b := Identity{Device: 1, Inode: 3, Size: 10}
	if a.CanonicalString() == b.CanonicalString() {
		t.Error("different inodes should produce different canonical strings")
	}
	if a.CanonicalString() != a.CanonicalString() {
		t.Error("CanonicalString should be stable across calls")
	}
}

func TestStatMissingFileFails(t *testing.T) {
	_, _, err := Stat(filepath.Join(t.TempDir(), "missing.flac"))
	if err == nil {
		t.Fatal("expected an error statting a missing file")
	}
}
