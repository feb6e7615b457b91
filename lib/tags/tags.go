// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package tags reads source FLAC tags and maps them onto the target
// formats' tag conventions (ID3v2 for MP3, Vorbis comments for Ogg,
// copied FLAC tags for SplitTrack). The field-name correspondence
// table is grounded on the original AudioFS implementation's
// mu_convertMp3ToFlacTagNameMap / mu_convertOggToFlacTagNameMap.
package tags

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Set is the canonical tag fields the engine carries between formats.
// Fields are all optional; an empty string means absent.
type Set struct {
	Album   string
	Artist  string
	Title   string
	Track   string // zero-padded track number, e.g. "03"
	Date    string
	Genre   string
	Comment string
}

// flacFieldOrder lists the canonical Vorbis comment field names in the
// order drivers emit them, for stable, reviewable command lines.
var flacFieldOrder = []string{"ALBUM", "ARTIST", "TITLE", "TRACKNUMBER", "DATE", "GENRE", "COMMENT"}

// fieldValue returns the Set's value for a canonical Vorbis comment
// field name.
func (s Set) fieldValue(field string) string {
	switch field {
	case "ALBUM":
		return s.Album
	case "ARTIST":
		return s.Artist
	case "TITLE":
		return s.Title
	case "TRACKNUMBER":
		return s.Track
	case "DATE":
		return s.Date
	case "GENRE":
		return s.Genre
	case "COMMENT":
		return s.Comment
	default:
		return ""
	}
}

// ReadFlac reads the Vorbis comment block from a FLAC file via
// metaflac --export-tags-to=-. Unknown fields are ignored; only the
// canonical fields in flacFieldOrder are retained.
func ReadFlac(ctx context.Context, path string) (Set, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "metaflac", "--export-tags-to=-", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Set{}, fmt.Errorf("metaflac --export-tags-to=- %s: %w (stderr: %s)",
			path, err, strings.TrimSpace(stderr.String()))
	}

	var set Set
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := scanner.Text()
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		field := strings.ToUpper(strings.TrimSpace(line[:eq]))
		value := line[eq+1:]
		switch field {
		case "ALBUM":
			set.Album = value
		case "ARTIST":
			set.Artist = value
		case "TITLE":
			set.Title = value
		case "TRACKNUMBER":
			set.Track = value
		case "DATE":
			set.Date = value
		case "GENRE":
			set.Genre = value
		case "COMMENT", "DESCRIPTION":
			set.Comment = value
		}
	}
	if err := scanner.Err(); err != nil {
		return Set{}, fmt.Errorf("parsing metaflac output for %s: %w", path, err)
	}
	return set, nil
}

// FlacExportArgs builds the --set-tag arguments for metaflac to write
// this Set onto a new FLAC file (used by SplitTrack to stamp per-track
// tags onto each extracted track).
func (s Set) FlacExportArgs() []string {
	var args []string
	for _, field := range flacFieldOrder {
		value := s.fieldValue(field)
		if value == "" {
			continue
		}
		args = append(args, "--set-tag="+field+"="+value)
	}
	return args
}

// LameArgs builds the ID3v2 tag arguments for the lame command line,
// using LAME's --tt/--ta/--tl/--ty/--tn/--tg/--tc flags. Arguments are
// passed as discrete argv entries (never through a shell), so no
// quoting or escaping is needed.
func (s Set) LameArgs() []string {
	var args []string
	if s.Title != "" {
		args = append(args, "--tt", s.Title)
	}
	if s.Artist != "" {
		args = append(args, "--ta", s.Artist)
	}
	if s.Album != "" {
		args = append(args, "--tl", s.Album)
	}
	if s.Date != "" {
		args = append(args, "--ty", s.Date)
	}
	if s.Track != "" {
		args = append(args, "--tn", s.Track)
	}
	if s.Genre != "" {
		args = append(args, "--tg", s.Genre)
	}
	if s.Comment != "" {
		args = append(args, "--tc", s.Comment)
	}
	return args
}

// VorbisCommentArgs builds the --tag arguments for oggenc/vorbiscomment
// to carry the tag set onto an Ogg Vorbis file verbatim (Vorbis
// comments use the same field names as FLAC).
func (s Set) VorbisCommentArgs() []string {
	var args []string
	for _, field := range flacFieldOrder {
		value := s.fieldValue(field)
		if value == "" {
			continue
		}
		args = append(args, "--tag", field+"="+value)
	}
	return args
}
