// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog implements the Virtual Catalog (spec §4.1): a
// read-only directory tree derived from scanning the source tree and
// applying one of the three projection rules, without ever invoking an
// encoder. lookup/readdir/getattr are pure functions of the source
// tree's current contents plus, for getattr, the cache store's current
// knowledge of a derived file's true size.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/audiofs/audiofs/lib/cache"
	"github.com/audiofs/audiofs/lib/cuesheet"
	"github.com/audiofs/audiofs/lib/driver"
	"github.com/audiofs/audiofs/lib/enginerr"
	"github.com/audiofs/audiofs/lib/fingerprint"
	"github.com/audiofs/audiofs/lib/source"
)

// Kind selects which projection rule a Catalog applies. The two lossy
// projections share KindTranscode; the output extension follows the
// driver.
type Kind int

const (
	// KindSplitTrack expands each .flac+.cue pair into a directory of
	// per-track files.
	KindSplitTrack Kind = iota
	// KindTranscode maps each .flac file one-to-one onto a lossy
	// encoder's output extension.
	KindTranscode
)

// EntryType distinguishes a directory from a regular file in the
// projected view.
type EntryType int

const (
	TypeDir EntryType = iota
	TypeRegular
)

// Entry is one resolved node in the projected tree.
type Entry struct {
	// Name is the entry's base name within its parent directory.
	Name string
	Type EntryType

	// SourcePath is the absolute backing path: the real directory for
	// TypeDir, the album FLAC file for a SplitTrack album directory, or
	// the source file for a passthrough TypeRegular entry. It is empty
	// for a driven TypeRegular entry, whose source is Job.SourcePath.
	SourcePath string

	// Passthrough is true when the entry's bytes equal SourcePath's
	// bytes verbatim — no driver, no cache entry, no fingerprint.
	Passthrough bool

	// Job is populated for a non-passthrough TypeRegular entry: the
	// driver.Job to hand to the build coordinator on open.
	Job driver.Job

	// Album marks a TypeDir entry as a synthesized SplitTrack virtual
	// album directory (SourcePath names the backing album FLAC file)
	// rather than a real source subdirectory.
	Album bool
}

// Options configures a Catalog.
type Options struct {
	SourceDir string
	Kind      Kind
	Driver    driver.Driver

	// Bitrate is passed as Job.Params["bitrate"] for KindTranscode.
	// Unused for KindSplitTrack.
	Bitrate string

	// TrackSeparator joins the zero-padded track number and sanitized
	// title in a SplitTrack filename. Defaults to " - ".
	TrackSeparator string

	// HiddenExtensions names file extensions (including the leading
	// dot) excluded from the projected view entirely — neither
	// transcoded nor passed through. Defaults to {".cue": true} for
	// KindSplitTrack (cue sheets are consumed, not displayed) and is
	// empty otherwise.
	HiddenExtensions map[string]bool

	// HiddenDirs names subdirectory basenames excluded from the
	// projected view (e.g. artwork or playlist folders carried over
	// from a source tree AudioFS does not need to project).
	HiddenDirs map[string]bool
}

// Catalog answers lookup/readdir/getattr for one projection over one
// source tree.
type Catalog struct {
	options Options
	store   *cache.Store // may be nil; Getattr then always estimates

	mu           sync.Mutex
	sizeMemo     map[string]int64
	onInvalidate func(relPath string)
}

// New constructs a Catalog. store may be nil, in which case Getattr
// always falls back to the driver's estimator (useful for tests that
// only exercise the namespace projection).
func New(store *cache.Store, options Options) *Catalog {
	if options.TrackSeparator == "" {
		options.TrackSeparator = " - "
	}
	if options.HiddenExtensions == nil {
		options.HiddenExtensions = map[string]bool{}
		if options.Kind == KindSplitTrack {
			options.HiddenExtensions[".cue"] = true
		}
	}
	if options.HiddenDirs == nil {
		options.HiddenDirs = map[string]bool{}
	}
	return &Catalog{
		options:  options,
		store:    store,
		sizeMemo: make(map[string]int64),
	}
}

// OnInvalidate registers fn to be called when Getattr observes a
// path's size changing from a previously reported value — the signal
// the filesystem adapter uses to invalidate the kernel's cached
// attributes (spec §4.1 "signals a metadata change").
func (c *Catalog) OnInvalidate(fn func(relPath string)) {
	c.onInvalidate = fn
}

// dirKind distinguishes a real source directory from a synthesized
// SplitTrack album directory while walking a relative path.
type dirKind int

const (
	dirReal dirKind = iota
	dirAlbum
)

type resolvedDir struct {
	kind         dirKind
	absSourceDir string // valid when kind == dirReal
	albumFlac    string // valid when kind == dirAlbum
	albumCue     string
}

// Lookup resolves relPath to its Entry, or returns an
// enginerr(NotFound) error if no such path exists in the projection.
func (c *Catalog) Lookup(relPath string) (Entry, error) {
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	if relPath == "" {
		return Entry{Name: "", Type: TypeDir, SourcePath: c.options.SourceDir}, nil
	}

	parent, name := splitLast(relPath)
	entries, err := c.readDirEntries(parent)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, enginerr.Wrap(enginerr.NotFound, "catalog: %q: no such entry", relPath)
}

// Readdir lists the entries of the directory at relPath.
func (c *Catalog) Readdir(relPath string) ([]Entry, error) {
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	return c.readDirEntries(relPath)
}

func (c *Catalog) readDirEntries(relDir string) ([]Entry, error) {
	resolved, err := c.resolveDir(relDir)
	if err != nil {
		return nil, err
	}
	if resolved.kind == dirAlbum {
		return c.listAlbumTracks(resolved.albumFlac, resolved.albumCue)
	}
	return c.listSourceDir(resolved.absSourceDir)
}

// resolveDir walks relDir one path segment at a time from the source
// root, switching into "album" mode the moment a segment names a
// SplitTrack virtual album directory. A path cannot continue past an
// album directory (tracks are leaves).
func (c *Catalog) resolveDir(relDir string) (resolvedDir, error) {
	current := resolvedDir{kind: dirReal, absSourceDir: c.options.SourceDir}
	if relDir == "" {
		return current, nil
	}

	for _, seg := range strings.Split(relDir, "/") {
		if current.kind == dirAlbum {
			return resolvedDir{}, enginerr.Wrap(enginerr.NotFound, "catalog: %q: path continues past a track directory", relDir)
		}

		entries, err := c.listSourceDir(current.absSourceDir)
		if err != nil {
			return resolvedDir{}, err
		}

		found := false
		for _, e := range entries {
			if e.Name != seg {
				continue
			}
			found = true
			if e.Type != TypeDir {
				return resolvedDir{}, enginerr.Wrap(enginerr.NotFound, "catalog: %q: not a directory", relDir)
			}
			if e.Album {
				current = resolvedDir{kind: dirAlbum, albumFlac: e.SourcePath, albumCue: albumCuePath(e.SourcePath)}
			} else {
				current = resolvedDir{kind: dirReal, absSourceDir: e.SourcePath}
			}
			break
		}
		if !found {
			return resolvedDir{}, enginerr.Wrap(enginerr.NotFound, "catalog: %q: not found", relDir)
		}
	}
	return current, nil
}

func albumCuePath(flacPath string) string {
	return strings.TrimSuffix(flacPath, filepath.Ext(flacPath)) + ".cue"
}

// listSourceDir lists one real directory in the source tree, applying
// this Catalog's projection rule to each child.
func (c *Catalog) listSourceDir(absDir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, enginerr.Wrap(enginerr.NotFound, "catalog: %s: %w", absDir, err)
		}
		return nil, enginerr.Wrap(enginerr.SourceUnavailable, "catalog: reading %s: %w", absDir, err)
	}

	var result []Entry
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()

		if dirEntry.IsDir() {
			if c.options.HiddenDirs[name] {
				continue
			}
			result = append(result, Entry{Name: name, Type: TypeDir, SourcePath: filepath.Join(absDir, name)})
			continue
		}

		ext := filepath.Ext(name)
		absPath := filepath.Join(absDir, name)

		if c.options.Kind == KindSplitTrack && ext == ".flac" {
			cuePath := albumCuePath(absPath)
			if _, err := os.Stat(cuePath); err == nil {
				stem := strings.TrimSuffix(name, ext)
				result = append(result, Entry{Name: stem, Type: TypeDir, SourcePath: absPath, Album: true})
				continue
			}
			// No sibling cue sheet: pass through unchanged.
			result = append(result, Entry{Name: name, Type: TypeRegular, SourcePath: absPath, Passthrough: true})
			continue
		}

		if c.options.Kind == KindTranscode && ext == ".flac" {
			derivedName := stripExt(name) + c.targetExtension()
			result = append(result, Entry{
				Name: derivedName,
				Type: TypeRegular,
				Job: driver.Job{
					SourcePath: absPath,
					Params:     map[string]string{"bitrate": c.options.Bitrate},
				},
			})
			continue
		}

		if c.options.HiddenExtensions[ext] {
			continue
		}
		result = append(result, Entry{Name: name, Type: TypeRegular, SourcePath: absPath, Passthrough: true})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// listAlbumTracks synthesizes the per-track entries of a SplitTrack
// virtual album directory from its cue sheet.
func (c *Catalog) listAlbumTracks(flacPath, cuePath string) ([]Entry, error) {
	file, err := os.Open(cuePath)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.SourceUnavailable, "catalog: opening cue sheet %s: %w", cuePath, err)
	}
	defer file.Close()

	sheet, err := cuesheet.Parse(file)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.SourceUnavailable, "catalog: parsing cue sheet %s: %w", cuePath, err)
	}

	var result []Entry
	for _, track := range sheet.Tracks {
		name := trackFileName(track.Number, track.Title, c.options.TrackSeparator)
		result = append(result, Entry{
			Name: name,
			Type: TypeRegular,
			Job: driver.Job{
				SourcePath: flacPath,
				Params: map[string]string{
					"cue":   cuePath,
					"track": strconv.Itoa(track.Number),
				},
			},
		})
	}
	return result, nil
}

func trackFileName(number int, title, separator string) string {
	base := fmt.Sprintf("%02d", number)
	if title != "" {
		base += separator + sanitizeTitle(title)
	}
	return base + ".flac"
}

// sanitizeTitle strips characters that cannot appear in a filename on
// common filesystems.
func sanitizeTitle(title string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", "\x00", "")
	return strings.TrimSpace(replacer.Replace(title))
}

func (c *Catalog) targetExtension() string {
	switch c.options.Driver.ID() {
	case "mp3encode":
		return ".mp3"
	case "oggencode":
		return ".ogg"
	default:
		return ".out"
	}
}

func stripExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func splitLast(relPath string) (parent, name string) {
	idx := strings.LastIndex(relPath, "/")
	if idx < 0 {
		return "", relPath
	}
	return relPath[:idx], relPath[idx+1:]
}

// Attr is the projected stat(2)-like metadata for one Entry.
type Attr struct {
	Dir     bool
	Size    int64
	ModTime time.Time
	Ctime   time.Time
	Atime   time.Time
}

// Getattr resolves relPath and computes its projected attributes. For
// a driven (non-passthrough) regular entry, the cache store is
// consulted first for a ready entry's true size; otherwise the
// driver's estimator supplies an upper-bounded size. A size that
// differs from the last value reported for this path triggers the
// registered invalidation hook.
func (c *Catalog) Getattr(ctx context.Context, relPath string) (Attr, error) {
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	entry, err := c.Lookup(relPath)
	if err != nil {
		return Attr{}, err
	}

	if entry.Type == TypeDir {
		info, _, err := source.Stat(entry.SourcePath)
		if err != nil {
			return Attr{}, enginerr.Wrap(enginerr.SourceUnavailable, "catalog: stat %s: %w", entry.SourcePath, err)
		}
		return Attr{Dir: true, ModTime: info.ModTime, Ctime: info.ModTime, Atime: info.ModTime}, nil
	}

	if entry.Passthrough {
		info, _, err := source.Stat(entry.SourcePath)
		if err != nil {
			return Attr{}, enginerr.Wrap(enginerr.SourceUnavailable, "catalog: stat %s: %w", entry.SourcePath, err)
		}
		return Attr{Size: info.Size, ModTime: info.ModTime, Ctime: info.ModTime, Atime: info.ModTime}, nil
	}

	size, atime, err := c.driverSize(ctx, entry)
	if err != nil {
		return Attr{}, err
	}
	sourceInfo, _, err := source.Stat(entry.Job.SourcePath)
	if err != nil {
		return Attr{}, enginerr.Wrap(enginerr.SourceUnavailable, "catalog: stat %s: %w", entry.Job.SourcePath, err)
	}

	c.noteSize(relPath, size)
	if atime.IsZero() {
		atime = sourceInfo.ModTime
	}
	return Attr{Size: size, ModTime: sourceInfo.ModTime, Ctime: sourceInfo.ModTime, Atime: atime}, nil
}

func (c *Catalog) driverSize(ctx context.Context, entry Entry) (size int64, atime time.Time, err error) {
	job := entry.Job
	identity, _, err := source.Stat(job.SourcePath)
	if err != nil {
		return 0, time.Time{}, enginerr.Wrap(enginerr.SourceUnavailable, "catalog: stat %s: %w", job.SourcePath, err)
	}
	job.SourceIdentity = identity

	if c.store != nil {
		fp := fingerprint.Compute(c.options.Driver.FingerprintInputs(job))
		result := c.store.Probe(fp)
		if result.State == cache.Ready {
			return result.Size, result.LastAccess, nil
		}
	}

	estimate, err := c.options.Driver.EstimateSize(ctx, job)
	if err != nil {
		return 0, time.Time{}, enginerr.Wrap(enginerr.DriverFailure, "catalog: estimating size: %w", err)
	}
	return estimate, time.Time{}, nil
}

// noteSize records size as the last-reported size for relPath, firing
// the invalidation hook if it differs from the previous value.
func (c *Catalog) noteSize(relPath string, size int64) {
	c.mu.Lock()
	previous, had := c.sizeMemo[relPath]
	c.sizeMemo[relPath] = size
	c.mu.Unlock()

	if had && previous != size && c.onInvalidate != nil {
		c.onInvalidate(relPath)
	}
}
