// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/audiofs/audiofs/lib/cuesheet"
	"github.com/audiofs/audiofs/lib/fingerprint"
	"github.com/audiofs/audiofs/lib/tags"
)

// SplitTrack turns a lossless album file plus its external cue sheet
// into one lossless file per cue track index, with per-track tags
// stamped in. Params carries "cue" (the cue sheet path) and "track"
// (the 1-based cue track number as a decimal string).
type SplitTrack struct{}

const splitTrackVersionTag = "v1"

func (SplitTrack) ID() string         { return "splittrack" }
func (SplitTrack) VersionTag() string { return splitTrackVersionTag }

func (d SplitTrack) FingerprintInputs(job Job) fingerprint.Inputs {
	return fingerprint.Inputs{
		DriverID:   d.ID(),
		VersionTag: d.VersionTag(),
		Params:     paramsToSlice(job.Params),
		Source:     job.SourceIdentity,
	}
}

func (d SplitTrack) EstimateSize(ctx context.Context, job Job) (int64, error) {
	boundary, sourceSize, err := d.resolveBoundary(ctx, job)
	if err != nil {
		return 0, err
	}

	albumDuration, err := flacDuration(ctx, job.SourcePath)
	if err != nil {
		return 0, err
	}
	if albumDuration <= 0 {
		return 0, fmt.Errorf("splittrack: %s: zero album duration", job.SourcePath)
	}

	bytesPerSecond := float64(sourceSize) / albumDuration.Seconds()
	estimate := bytesPerSecond * boundary.Duration().Seconds()

	// Upper-bound the estimate per spec §4.1: round up and add a
	// small safety margin, since FLAC's variable compression ratio
	// means per-track size is not exactly proportional to duration.
	const safetyMargin = 1.02
	return int64(estimate*safetyMargin) + 1, nil
}

func (d SplitTrack) Run(ctx context.Context, job Job, sinkPath string) error {
	boundary, _, err := d.resolveBoundary(ctx, job)
	if err != nil {
		return err
	}
	sheet, err := d.loadSheet(job)
	if err != nil {
		return err
	}

	start := formatMSF(boundary.Start)
	until := ""
	if boundary.End > 0 {
		until = formatMSF(boundary.End)
	}

	decodeArgs := []string{"-d", "-c", "--silent", "--skip=" + start}
	if until != "" {
		decodeArgs = append(decodeArgs, "--until="+until)
	}
	decodeArgs = append(decodeArgs, job.SourcePath)

	decode := exec.CommandContext(ctx, "flac", decodeArgs...)
	encode := exec.CommandContext(ctx, "flac", "--best", "--force", "--silent", "-o", sinkPath, "-")

	pipe, err := decode.StdoutPipe()
	if err != nil {
		return fmt.Errorf("splittrack: creating pipe: %w", err)
	}
	encode.Stdin = pipe

	if err := encode.Start(); err != nil {
		return fmt.Errorf("splittrack: starting flac encode: %w", err)
	}
	if err := decode.Run(); err != nil {
		_ = encode.Process.Kill()
		return fmt.Errorf("splittrack: running flac decode: %w", err)
	}
	if err := encode.Wait(); err != nil {
		return fmt.Errorf("splittrack: waiting for flac encode: %w", err)
	}

	albumTags, err := tags.ReadFlac(ctx, job.SourcePath)
	if err != nil {
		return fmt.Errorf("splittrack: reading album tags: %w", err)
	}

	artist := sheet.TrackArtist(boundary.Track)
	if boundary.Track.Performer == "" && sheet.MultiArtist() {
		// Tracks disagree on PERFORMER and this track has none of its
		// own: leave artist unset rather than guessing at the album
		// performer.
		artist = ""
	}

	trackSet := tags.Set{
		Album:  sheet.Title,
		Artist: artist,
		Title:  boundary.Track.Title,
		Track:  fmt.Sprintf("%02d", boundary.Track.Number),
		Date:   albumTags.Date,
		Genre:  albumTags.Genre,
	}
	if trackSet.Album == "" {
		trackSet.Album = albumTags.Album
	}

	args := trackSet.FlacExportArgs()
	if len(args) > 0 {
		retag := exec.CommandContext(ctx, "metaflac", append(args, sinkPath)...)
		if output, err := retag.CombinedOutput(); err != nil {
			return fmt.Errorf("splittrack: tagging %s: %w (output: %s)", sinkPath, err, strings.TrimSpace(string(output)))
		}
	}

	return nil
}

// resolveBoundary locates the cue sheet and track named by job.Params,
// returning the track's boundary and the source album file's byte
// size (needed by EstimateSize for the bytes-per-second computation).
func (d SplitTrack) resolveBoundary(ctx context.Context, job Job) (cuesheet.TrackBoundary, int64, error) {
	sheet, err := d.loadSheet(job)
	if err != nil {
		return cuesheet.TrackBoundary{}, 0, err
	}

	trackNumberStr := job.Params["track"]
	trackNumber, err := strconv.Atoi(trackNumberStr)
	if err != nil {
		return cuesheet.TrackBoundary{}, 0, fmt.Errorf("splittrack: invalid track param %q: %w", trackNumberStr, err)
	}

	albumDuration, err := flacDuration(ctx, job.SourcePath)
	if err != nil {
		return cuesheet.TrackBoundary{}, 0, err
	}

	info, err := os.Stat(job.SourcePath)
	if err != nil {
		return cuesheet.TrackBoundary{}, 0, fmt.Errorf("splittrack: stat %s: %w", job.SourcePath, err)
	}

	for _, boundary := range sheet.Boundaries(albumDuration) {
		if boundary.Track.Number == trackNumber {
			return boundary, info.Size(), nil
		}
	}
	return cuesheet.TrackBoundary{}, 0, fmt.Errorf("splittrack: no track %d in cue sheet %s", trackNumber, job.Params["cue"])
}

func (SplitTrack) loadSheet(job Job) (*cuesheet.Sheet, error) {
	cuePath := job.Params["cue"]
	file, err := os.Open(cuePath)
	if err != nil {
		return nil, fmt.Errorf("splittrack: opening cue sheet %s: %w", cuePath, err)
	}
	defer file.Close()
	sheet, err := cuesheet.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("splittrack: parsing cue sheet %s: %w", cuePath, err)
	}
	return sheet, nil
}

// formatMSF renders a duration as the MM:SS.sss form flac(1) accepts
// for --skip/--until.
func formatMSF(d time.Duration) string {
	total := d.Seconds()
	minutes := int(total) / 60
	seconds := total - float64(minutes*60)
	return fmt.Sprintf("%d:%06.3f", minutes, seconds)
}
