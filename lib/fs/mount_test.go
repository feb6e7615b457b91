// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/audiofs/audiofs/lib/build"
	"github.com/audiofs/audiofs/lib/cache"
	"github.com/audiofs/audiofs/lib/catalog"
	"github.com/audiofs/audiofs/lib/driver"
	"github.com/audiofs/audiofs/lib/fingerprint"
)

// fuseAvailable checks whether /dev/fuse is accessible. Tests that
// need a real FUSE mount call this and skip if the device is absent.
func fuseAvailable(t *testing.T) {
	t.Helper()
	_, err := os.Stat("/dev/fuse")
	if err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

// upperDriver is a minimal driver.Driver stub that "transcodes" by
// uppercasing the source file's bytes, so tests can assert on the
// build coordinator round trip without shelling out to a real encoder.
type upperDriver struct {
	runs int
}

func (d *upperDriver) ID() string         { return "upperdriver" }
func (d *upperDriver) VersionTag() string { return "v1" }
func (d *upperDriver) FingerprintInputs(job driver.Job) fingerprint.Inputs {
	return fingerprint.Inputs{DriverID: d.ID(), VersionTag: d.VersionTag(), Source: job.SourceIdentity, Params: paramsSlice(job.Params)}
}
func (d *upperDriver) EstimateSize(ctx context.Context, job driver.Job) (int64, error) {
	info, err := os.Stat(job.SourcePath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
func (d *upperDriver) Run(ctx context.Context, job driver.Job, sinkPath string) error {
	d.runs++
	data, err := os.ReadFile(job.SourcePath)
	if err != nil {
		return err
	}
	return os.WriteFile(sinkPath, bytes.ToUpper(data), 0o644)
}

func paramsSlice(params map[string]string) []string {
	var out []string
	for k, v := range params {
		out = append(out, k+"="+v)
	}
	return out
}

func testMount(t *testing.T, sourceDir string, d driver.Driver) (mountpoint string) {
	t.Helper()
	fuseAvailable(t)

	root := t.TempDir()
	store, err := cache.New(cache.Options{Dir: filepath.Join(root, "cache")})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cat := catalog.New(store, catalog.Options{SourceDir: sourceDir, Kind: catalog.KindTranscode, Driver: d})
	coord := build.New(store, nil)

	mountpoint = filepath.Join(root, "mount")
	server, err := Mount(Options{
		Mountpoint:  mountpoint,
		Catalog:     cat,
		Coordinator: coord,
		Store:       store,
		Driver:      d,
	})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})
	return mountpoint
}

func TestMountReadDrivenFile(t *testing.T) {
	sourceDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(sourceDir, "song.flac"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}

	d := &upperDriver{}
	mountpoint := testMount(t, sourceDir, d)

	got, err := os.ReadFile(filepath.Join(mountpoint, "song.out"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "HELLO" {
		t.Errorf("got %q, want %q", got, "HELLO")
	}
	if d.runs != 1 {
		t.Errorf("driver ran %d times, want 1", d.runs)
	}
}

func TestMountSecondReadDoesNotRebuild(t *testing.T) {
	sourceDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(sourceDir, "song.flac"), []byte("abc"), 0o644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}

	d := &upperDriver{}
	mountpoint := testMount(t, sourceDir, d)

	for i := 0; i < 2; i++ {
		if _, err := os.ReadFile(filepath.Join(mountpoint, "song.out")); err != nil {
			t.Fatalf("ReadFile #%d: %v", i, err)
		}
	}
	if d.runs != 1 {
		t.Errorf("driver ran %d times, want 1 (second read should hit cache)", d.runs)
	}
}

func TestMountPassthroughFile(t *testing.T) {
	sourceDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(sourceDir, "cover.jpg"), []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}

	mountpoint := testMount(t, sourceDir, &upperDriver{})

	got, err := os.ReadFile(filepath.Join(mountpoint, "cover.jpg"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "jpeg-bytes" {
		t.Errorf("got %q, want passthrough bytes", got)
	}
}

func TestMountReadOnlyRejectsWrite(t *testing.T) {
	sourceDir := t.TempDir()
	mountpoint := testMount(t, sourceDir, &upperDriver{})

	err := os.WriteFile(filepath.Join(mountpoint, "new-file.txt"), []byte("x"), 0o644)
	if err == nil {
		t.Fatal("expected error writing to read-only mount")
	}
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("expected EROFS, got: %v", err)
	}
}

func TestMountReadOnlyRejectsTruncate(t *testing.T) {
	sourceDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(sourceDir, "cover.jpg"), []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}
	mountpoint := testMount(t, sourceDir, &upperDriver{})

	err := os.Truncate(filepath.Join(mountpoint, "cover.jpg"), 0)
	if err == nil {
		t.Fatal("expected error truncating file on read-only mount")
	}
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("expected EROFS, got: %v", err)
	}
}

func TestMountReadOnlyRejectsUnlink(t *testing.T) {
	sourceDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(sourceDir, "cover.jpg"), []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}
	mountpoint := testMount(t, sourceDir, &upperDriver{})

	err := os.Remove(filepath.Join(mountpoint, "cover.jpg"))
	if err == nil {
		t.Fatal("expected error removing file on read-only mount")
	}
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("expected EROFS, got: %v", err)
	}
}

func TestMountReadOnlyRejectsMkdir(t *testing.T) {
	sourceDir := t.TempDir()
	mountpoint := testMount(t, sourceDir, &upperDriver{})

	err := os.Mkdir(filepath.Join(mountpoint, "newdir"), 0o755)
	if err == nil {
		t.Fatal("expected error creating directory on read-only mount")
	}
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("expected EROFS, got: %v", err)
	}
}

func TestMountLookupMissingIsNotFound(t *testing.T) {
	sourceDir := t.TempDir()
	mountpoint := testMount(t, sourceDir, &upperDriver{})

	_, err := os.ReadFile(filepath.Join(mountpoint, "nonexistent.out"))
	if err == nil {
		t.Fatal("expected error reading nonexistent file")
	}
	if !os.IsNotExist(err) {
		t.Errorf("expected ENOENT, got: %v", err)
	}
}
