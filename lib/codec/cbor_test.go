// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// sampleManifest mirrors the shape of a cache-entry provenance
// manifest: the fingerprint inputs recorded alongside a ready entry.
type sampleManifest struct {
	DriverID   string   `cbor:"driver_id"`
	VersionTag string   `cbor:"version_tag"`
	Params     []string `cbor:"params,omitempty"`
	SourcePath string   `cbor:"source_path"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleManifest{
		DriverID:   "mp3encode",
		VersionTag: "v1",
		Params:     []string{"bitrate=192"},
		SourcePath: "/music/alpha.flac",
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleManifest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.DriverID != original.DriverID ||
		decoded.VersionTag != original.VersionTag ||
		decoded.SourcePath != original.SourcePath ||
		len(decoded.Params) != len(original.Params) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	manifest := sampleManifest{
		DriverID:   "oggencode",
		VersionTag: "v1",
		SourcePath: "/music/beta.flac",
	}

	first, err := Marshal(manifest)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(manifest)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestOmitemptyRespected(t *testing.T) {
	withParams := sampleManifest{DriverID: "a", VersionTag: "1", Params: []string{"x"}, SourcePath: "p"}
	withoutParams := sampleManifest{DriverID: "a", VersionTag: "1", SourcePath: "p"}

	dataWith, err := Marshal(withParams)
	if err != nil {
		t.Fatal(err)
	}
	dataWithout, err := Marshal(withoutParams)
	if err != nil {
		t.Fatal(err)
	}

	if len(dataWithout) >= len(dataWith) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes",
			len(dataWithout), len(dataWith))
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var manifest sampleManifest
	err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &manifest)
	if err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]any{"driver_id": "mp3encode"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}

	if !strings.Contains(notation, `"driver_id"`) {
		t.Errorf("notation %q does not contain \"driver_id\"", notation)
	}
	if !strings.Contains(notation, `"mp3encode"`) {
		t.Errorf("notation %q does not contain \"mp3encode\"", notation)
	}
}

func BenchmarkMarshal(b *testing.B) {
	manifest := sampleManifest{
		DriverID:   "mp3encode",
		VersionTag: "v1",
		Params:     []string{"bitrate=192"},
		SourcePath: "/music/alpha.flac",
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Marshal(manifest)
	}
}
