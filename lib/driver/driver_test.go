// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"os/exec"
	"testing"

	"github.com/audiofs/audiofs/lib/source"
)

// toolAvailable skips the test if name is not on PATH. Several tests
// in this package exercise the real external encoder tools the
// drivers shell out to; on a machine without them installed, those
// tests skip rather than fail.
func toolAvailable(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("skipping: %s not found on PATH", name)
	}
}

func TestBitrateParamValid(t *testing.T) {
	job := Job{Params: map[string]string{"bitrate": "192"}}
	bitrate, err := bitrateParam(job)
	if err != nil {
		t.Fatalf("bitrateParam: %v", err)
	}
	if bitrate != 192 {
		t.Errorf("bitrate = %d, want 192", bitrate)
	}
}

func TestBitrateParamMissing(t *testing.T) {
	job := Job{Params: map[string]string{}}
	if _, err := bitrateParam(job); err == nil {
		t.Error("expected error for missing bitrate param")
	}
}

func TestBitrateParamInvalid(t *testing.T) {
	for _, raw := range []string{"", "abc", "0", "-5"} {
		job := Job{Params: map[string]string{"bitrate": raw}}
		if _, err := bitrateParam(job); err == nil {
			t.Errorf("bitrate %q: expected error", raw)
		}
	}
}

func TestMp3EncodeFingerprintInputsDeterministic(t *testing.T) {
	job := Job{
		SourcePath:     "/music/alpha.flac",
		SourceIdentity: source.Identity{Device: 1, Inode: 2, Size: 100},
		Params:         map[string]string{"bitrate": "192"},
	}

	d := Mp3Encode{}
	first := d.FingerprintInputs(job)
	second := d.FingerprintInputs(job)

	if first.DriverID != second.DriverID || first.VersionTag != second.VersionTag {
		t.Error("FingerprintInputs not stable across calls")
	}
	if first.DriverID != "mp3encode" {
		t.Errorf("DriverID = %q, want mp3encode", first.DriverID)
	}
}

func TestOggEncodeAndMp3EncodeHaveDistinctDriverIDs(t *testing.T) {
	job := Job{
		SourcePath:     "/music/alpha.flac",
		SourceIdentity: source.Identity{Device: 1, Inode: 2, Size: 100},
		Params:         map[string]string{"bitrate": "192"},
	}

	mp3Inputs := Mp3Encode{}.FingerprintInputs(job)
	oggInputs := OggEncode{}.FingerprintInputs(job)

	if mp3Inputs.DriverID == oggInputs.DriverID {
		t.Error("Mp3Encode and OggEncode must have distinct driver IDs")
	}
}

func TestSplitTrackFingerprintInputsIncludesTrackParam(t *testing.T) {
	job1 := Job{
		SourcePath:     "/music/opus.flac",
		SourceIdentity: source.Identity{Device: 1, Inode: 2, Size: 100},
		Params:         map[string]string{"cue": "/music/opus.cue", "track": "1"},
	}
	job2 := job1
	job2.Params = map[string]string{"cue": "/music/opus.cue", "track": "2"}

	d := SplitTrack{}
	in1 := d.FingerprintInputs(job1)
	in2 := d.FingerprintInputs(job2)

	if equalParams(in1.Params, in2.Params) {
		t.Error("different track numbers must produce different fingerprint params")
	}
}

func equalParams(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
