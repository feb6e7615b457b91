// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/audiofs/audiofs/lib/driver"
	"github.com/audiofs/audiofs/lib/fingerprint"
)

// fakeDriver is a minimal driver.Driver stub so catalog tests can
// exercise the projection logic without shelling out to real encoder
// binaries.
type fakeDriver struct {
	id        string
	estimated int64
}

func (d fakeDriver) ID() string         { return d.id }
func (d fakeDriver) VersionTag() string { return "v1" }
func (d fakeDriver) FingerprintInputs(job driver.Job) fingerprint.Inputs {
	return fingerprint.Inputs{DriverID: d.id, VersionTag: "v1", Source: job.SourceIdentity}
}
func (d fakeDriver) EstimateSize(ctx context.Context, job driver.Job) (int64, error) {
	return d.estimated, nil
}
func (d fakeDriver) Run(ctx context.Context, job driver.Job, sinkPath string) error {
	return nil
}

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestTranscodeReaddirMapsFlacToTargetExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "song.flac"), "flac-bytes")
	writeFile(t, filepath.Join(dir, "cover.jpg"), "jpeg-bytes")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cat := New(nil, Options{SourceDir: dir, Kind: KindTranscode, Driver: fakeDriver{id: "mp3encode"}, Bitrate: "192"})

	entries, err := cat.Readdir("")
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}

	names := map[string]Entry{}
	for _, e := range entries {
		names[e.Name] = e
	}

	if e, ok := names["song.mp3"]; !ok {
		t.Error("expected song.mp3 in projected directory")
	} else if e.Job.SourcePath != filepath.Join(dir, "song.flac") {
		t.Errorf("song.mp3 Job.SourcePath = %q", e.Job.SourcePath)
	}
	if e, ok := names["cover.jpg"]; !ok || !e.Passthrough {
		t.Error("expected cover.jpg to pass through unchanged")
	}
	if e, ok := names["sub"]; !ok || e.Type != TypeDir {
		t.Error("expected sub/ to mirror as a directory")
	}
}

func TestSplitTrackExpandsAlbumDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "album.flac"), "flac-bytes")
	writeFile(t, filepath.Join(dir, "album.cue"), `
PERFORMER "Band Name"
TITLE "Album Title"
FILE "album.flac" WAVE
  TRACK 01 AUDIO
    TITLE "First Song"
    PERFORMER "Band Name"
    INDEX 01 00:00:00
  TRACK 02 AUDIO
    TITLE "Second Song"
    INDEX 01 03:30:00
`)
	writeFile(t, filepath.Join(dir, "standalone.flac"), "no cue here")

	cat := New(nil, Options{SourceDir: dir, Kind: KindSplitTrack})

	root, err := cat.Readdir("")
	if err != nil {
		t.Fatalf("Readdir root: %v", err)
	}

	var albumEntry, standaloneEntry *Entry
	for i := range root {
		switch root[i].Name {
		case "album":
			albumEntry = &root[i]
		case "standalone.flac":
			standaloneEntry = &root[i]
		}
	}
	if albumEntry == nil {
		t.Fatal("expected an 'album' virtual directory")
	}
	if albumEntry.Type != TypeDir {
		t.Error("album entry should be a directory")
	}
	if standaloneEntry == nil || !standaloneEntry.Passthrough {
		t.Error("flac file without a cue sheet should pass through")
	}

	tracks, err := cat.Readdir("album")
	if err != nil {
		t.Fatalf("Readdir album: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(tracks))
	}
	if tracks[0].Name != "01 - First Song.flac" {
		t.Errorf("track 1 name = %q", tracks[0].Name)
	}
	if tracks[0].Job.Params["track"] != "1" {
		t.Errorf("track 1 params = %v", tracks[0].Job.Params)
	}
	if tracks[1].Name != "02 - Second Song.flac" {
		t.Errorf("track 2 name = %q", tracks[1].Name)
	}
}

func TestLookupNotFoundReturnsNotFoundKind(t *testing.T) {
	dir := t.TempDir()
	cat := New(nil, Options{SourceDir: dir, Kind: KindTranscode, Driver: fakeDriver{id: "mp3encode"}})

	if _, err := cat.Lookup("nonexistent.mp3"); err == nil {
		t.Fatal("expected lookup of a missing path to fail")
	}
}

func TestGetattrUsesEstimatorWhenNoCacheStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "song.flac"), "flac-bytes")

	cat := New(nil, Options{SourceDir: dir, Kind: KindTranscode, Driver: fakeDriver{id: "mp3encode", estimated: 12345}, Bitrate: "192"})

	attr, err := cat.Getattr(context.Background(), "song.mp3")
	if err != nil {
		t.Fatalf("Getattr: %v", err)
	}
	if attr.Size != 12345 {
		t.Errorf("size = %d, want 12345 (estimator value)", attr.Size)
	}
}
