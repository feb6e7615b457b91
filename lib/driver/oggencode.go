// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/audiofs/audiofs/lib/fingerprint"
	"github.com/audiofs/audiofs/lib/tags"
)

// OggEncode transcodes a lossless source file to Ogg Vorbis at the
// average bitrate given by Params["bitrate"] (kbit/s). Vorbis comments
// are written from the source's canonical FLAC tags (album, artist,
// title, track number, date, genre, comment) as read by tags.ReadFlac;
// other fields in the source's tag block are not copied.
type OggEncode struct{}

const oggEncodeVersionTag = "v1"

func (OggEncode) ID() string         { return "oggencode" }
func (OggEncode) VersionTag() string { return oggEncodeVersionTag }

func (d OggEncode) FingerprintInputs(job Job) fingerprint.Inputs {
	return fingerprint.Inputs{
		DriverID:   d.ID(),
		VersionTag: d.VersionTag(),
		Params:     paramsToSlice(job.Params),
		Source:     job.SourceIdentity,
	}
}

func (d OggEncode) EstimateSize(ctx context.Context, job Job) (int64, error) {
	bitrate, err := bitrateParam(job)
	if err != nil {
		return 0, err
	}
	duration, err := flacDuration(ctx, job.SourcePath)
	if err != nil {
		return 0, err
	}

	// Vorbis is VBR even when asked for an average bitrate target, so
	// the estimator applies a larger safety margin than the CBR MP3
	// estimator (spec §4.1: "duration × target-average-bitrate with a
	// small safety margin").
	bytesPerSecond := float64(bitrate) * 1000 / 8
	const safetyMargin = 1.10
	estimate := int64(duration.Seconds()*bytesPerSecond*safetyMargin) + 1

	return estimate + 4096, nil
}

func (d OggEncode) Run(ctx context.Context, job Job, sinkPath string) error {
	bitrate, err := bitrateParam(job)
	if err != nil {
		return err
	}

	sourceTags, err := tags.ReadFlac(ctx, job.SourcePath)
	if err != nil {
		return fmt.Errorf("oggencode: reading source tags: %w", err)
	}

	decode := exec.CommandContext(ctx, "flac", "-d", "-c", "--silent", job.SourcePath)
	encodeArgs := append([]string{"--quiet", "--bitrate", strconv.Itoa(bitrate)}, sourceTags.VorbisCommentArgs()...)
	encodeArgs = append(encodeArgs, "-o", sinkPath, "-")
	encode := exec.CommandContext(ctx, "oggenc", encodeArgs...)

	pipe, err := decode.StdoutPipe()
	if err != nil {
		return fmt.Errorf("oggencode: creating pipe: %w", err)
	}
	encode.Stdin = pipe

	if err := encode.Start(); err != nil {
		return fmt.Errorf("oggencode: starting oggenc: %w", err)
	}
	if err := decode.Run(); err != nil {
		_ = encode.Process.Kill()
		return fmt.Errorf("oggencode: running flac decode: %w", err)
	}
	if err := encode.Wait(); err != nil {
		return fmt.Errorf("oggencode: waiting for oggenc: %w", err)
	}
	return nil
}
