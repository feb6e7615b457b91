// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/audiofs/audiofs/lib/codec"
	"github.com/audiofs/audiofs/lib/fingerprint"
)

// Manifest is the optional sidecar record written alongside a ready
// cache entry, capturing the fingerprint inputs that produced it. It
// is never consulted on the read hot path — the cache is a
// performance device, not a system of record (spec §1 Non-goals) — it
// exists purely so a human (or a test asserting property P6) can
// inspect why a given fingerprint produced the bytes it did.
type Manifest struct {
	DriverID   string   `cbor:"driver_id"`
	VersionTag string   `cbor:"version_tag"`
	Params     []string `cbor:"params,omitempty"`
	SourcePath string   `cbor:"source_path"`
}

func manifestPath(dir string, fp fingerprint.Fingerprint) string {
	return filepath.Join(dir, fingerprint.Format(fp)+".manifest")
}

// WriteManifest persists the provenance manifest for fp. Written with
// the same atomic temp-file-then-rename idiom as the entry itself, so
// a manifest is never observed half-written.
func (s *Store) WriteManifest(fp fingerprint.Fingerprint, in fingerprint.Inputs) error {
	manifest := Manifest{
		DriverID:   in.DriverID,
		VersionTag: in.VersionTag,
		Params:     in.Params,
		SourcePath: in.Source.CanonicalString(),
	}

	data, err := codec.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("cache: encoding manifest for %s: %w", fingerprint.Format(fp), err)
	}

	tmp, err := os.CreateTemp(s.dir, fingerprint.Format(fp)+".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: creating manifest temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: writing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: closing manifest temp file: %w", err)
	}
	if err := os.Rename(tmpPath, manifestPath(s.dir, fp)); err != nil {
		return fmt.Errorf("cache: renaming manifest: %w", err)
	}

	success = true
	return nil
}

// ReadManifest reads back the provenance manifest for fp, if present.
func (s *Store) ReadManifest(fp fingerprint.Fingerprint) (Manifest, error) {
	data, err := os.ReadFile(manifestPath(s.dir, fp))
	if err != nil {
		return Manifest{}, fmt.Errorf("cache: reading manifest for %s: %w", fingerprint.Format(fp), err)
	}
	var manifest Manifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("cache: decoding manifest for %s: %w", fingerprint.Format(fp), err)
	}
	return manifest, nil
}
