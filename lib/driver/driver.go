// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package driver implements the three encoder drivers: SplitTrack,
// Mp3Encode, and OggEncode. Each driver is pure over its inputs (no
// hidden state) and invokes one or more external processes, piping
// between them, to produce the derived byte stream without ever
// holding a partial result in memory.
package driver

import (
	"context"
	"sort"

	"github.com/audiofs/audiofs/lib/fingerprint"
	"github.com/audiofs/audiofs/lib/source"
)

// Job names one derived file a driver is asked to produce.
type Job struct {
	// SourcePath is the absolute path to the source file the driver
	// reads from (the album FLAC for all three drivers).
	SourcePath string

	// SourceIdentity is the source file's identity at the time the
	// job was created, used as a fingerprint input. The engine does
	// not re-stat mid-build (see spec open question (a)): an open
	// continues against the originally fingerprinted bytes.
	SourceIdentity source.Identity

	// Params carries driver-specific parameters as plain key=value
	// strings (e.g. "bitrate=192" for the lossy encoders, "track=3"
	// and "cue=<path>" for SplitTrack). Order is not significant;
	// FingerprintInputs sorts them.
	Params map[string]string
}

// Driver is the common contract every encoder driver satisfies. The
// three capabilities mirror the engine's design notes: fingerprint
// inputs, size estimation, and streaming execution.
type Driver interface {
	// ID is the driver's stable identifier, e.g. "splittrack".
	ID() string

	// VersionTag is a short string embedded in the driver. Changing it
	// invalidates every cache entry this driver previously produced.
	VersionTag() string

	// FingerprintInputs derives the fingerprint.Inputs for a job. Pure
	// function of job — no I/O.
	FingerprintInputs(job Job) fingerprint.Inputs

	// EstimateSize returns an upper-bounded, monotone estimate of the
	// derived byte stream's length without producing any bytes. May
	// perform lightweight I/O against the source (e.g. reading FLAC
	// stream metadata) but never invokes the full encoder pipeline.
	EstimateSize(ctx context.Context, job Job) (int64, error)

	// Run executes the driver, writing the complete derived byte
	// stream to the file at sinkPath. sinkPath is the build
	// coordinator's reserved partial-file path; Run must write the
	// entire stream or return a non-nil error — partial output is
	// never an acceptable success.
	Run(ctx context.Context, job Job, sinkPath string) error
}

// paramsToSlice renders a Job's Params map as a deterministic
// "key=value" slice for fingerprinting (fingerprint.Compute sorts
// again internally, but building the slice here keeps drivers from
// depending on map iteration order anywhere in their own logic).
func paramsToSlice(params map[string]string) []string {
	slice := make([]string, 0, len(params))
	for k, v := range params {
		slice = append(slice, k+"="+v)
	}
	sort.Strings(slice)
	return slice
}
