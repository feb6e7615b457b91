// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the Cache Store (spec §4.3): a flat
// directory of regular files named by hexadecimal fingerprint, with
// in-memory accounting for byte length, last-access time, pin count,
// and state. Publication is a single rename within the cache
// directory, following the same atomic temp-file-then-rename publication
// idiom common to content-addressed stores.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/audiofs/audiofs/lib/clock"
	"github.com/audiofs/audiofs/lib/enginerr"
	"github.com/audiofs/audiofs/lib/fingerprint"
)

// State is a cache entry's lifecycle state (spec §3 data model).
type State int

const (
	Absent State = iota
	Building
	Ready
	Evicting
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Building:
		return "building"
	case Ready:
		return "ready"
	case Evicting:
		return "evicting"
	default:
		return "unknown"
	}
}

// entry is the in-memory record for one fingerprint. Protected by
// Store.mu.
type entry struct {
	state      State
	finalPath  string
	partialPath string
	size       int64
	lastAccess time.Time
	pinCount   int
}

// Store is the cache store. Safe for concurrent use.
type Store struct {
	dir   string
	mu    sync.Mutex
	entries map[fingerprint.Fingerprint]*entry
	clock clock.Clock
	lock  *flock.Flock
}

// Options configures a new Store.
type Options struct {
	// Dir is the cache directory. Created if it does not exist.
	Dir string
	// Clock is injected for testability. Defaults to clock.Real().
	Clock clock.Clock
}

// New opens the cache store at options.Dir, acquiring an exclusive
// advisory lock on a lockfile in that directory. The lock enforces
// spec §5's "concurrent mounts against the same cache directory are
// unsupported": a second process opening the same directory fails
// fast instead of silently racing with the first.
func New(options Options) (*Store, error) {
	if options.Dir == "" {
		return nil, fmt.Errorf("cache: directory is required")
	}
	if err := os.MkdirAll(options.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating directory: %w", err)
	}

	lock := flock.New(filepath.Join(options.Dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cache: acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("cache: directory %s is already locked by another process", options.Dir)
	}

	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Store{
		dir:     options.Dir,
		entries: make(map[fingerprint.Fingerprint]*entry),
		clock:   clk,
		lock:    lock,
	}, nil
}

// Close releases the store's exclusive lock. It does not touch any
// cache files.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// finalPath returns the canonical on-disk path for a ready entry.
func (s *Store) finalPath(fp fingerprint.Fingerprint) string {
	return filepath.Join(s.dir, fingerprint.Format(fp))
}

// ProbeResult is the outcome of Probe.
type ProbeResult struct {
	State State
	Path  string
	Size  int64

	// LastAccess is the entry's last-access timestamp, valid only
	// when State is Ready. The virtual catalog uses it as a ready
	// entry's atime (spec §6).
	LastAccess time.Time
}

// Probe reports the current state of fp. If fp is not yet tracked
// in-memory, Probe lazily seeds it by stat-ing the expected on-disk
// filename — this is how a process picks up entries left ready by a
// previous run of the engine without needing a directory scan at
// startup.
func (s *Store) Probe(fp fingerprint.Fingerprint) ProbeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeLocked(fp)
}

func (s *Store) probeLocked(fp fingerprint.Fingerprint) ProbeResult {
	if e, ok := s.entries[fp]; ok {
		return ProbeResult{State: e.state, Path: e.finalPath, Size: e.size, LastAccess: e.lastAccess}
	}

	path := s.finalPath(fp)
	info, err := os.Stat(path)
	if err != nil {
		return ProbeResult{State: Absent}
	}

	s.entries[fp] = &entry{
		state:      Ready,
		finalPath:  path,
		size:       info.Size(),
		lastAccess: info.ModTime(),
	}
	return ProbeResult{State: Ready, Path: path, Size: info.Size(), LastAccess: info.ModTime()}
}

// Slot is an exclusive build slot returned by Reserve. Exactly one
// slot exists per fingerprint at a time — Reserve fails if one is
// already outstanding.
type Slot struct {
	fp   fingerprint.Fingerprint
	Path string
}

// Reserve atomically transitions a fingerprint from absent to
// building and returns an exclusive writer path: a temp file in the
// cache directory with a `.partial-<nonce>` suffix. The nonce is a
// UUID so that concurrent processes (which Store.New's lock already
// rules out) or concurrent abandon/re-reserve cycles within one
// process never collide on a filename.
func (s *Store) Reserve(fp fingerprint.Fingerprint) (*Slot, error) {
	s.mu.Lock()
	result := s.probeLocked(fp)
	if result.State != Absent {
		s.mu.Unlock()
		return nil, fmt.Errorf("cache: reserve %s: not absent (state=%s)", fingerprint.Format(fp), result.State)
	}

	partialPath := filepath.Join(s.dir, fingerprint.Format(fp)+".partial-"+uuid.New().String())
	s.entries[fp] = &entry{
		state:       Building,
		partialPath: partialPath,
		finalPath:   s.finalPath(fp),
	}
	s.mu.Unlock()

	return &Slot{fp: fp, Path: partialPath}, nil
}

// Promote atomically renames the slot's temp file to its final name
// and transitions the entry to ready. Readers never observe a
// half-written file because they only ever open entries reported
// ready, and the rename is the only way an entry becomes ready.
func (s *Store) Promote(slot *Slot) (ProbeResult, error) {
	info, err := os.Stat(slot.Path)
	if err != nil {
		return ProbeResult{}, enginerr.Wrap(ioFailureKind(err), "cache: stat partial file: %w", err)
	}

	finalPath := s.finalPath(slot.fp)
	if err := os.Rename(slot.Path, finalPath); err != nil {
		return ProbeResult{}, enginerr.Wrap(ioFailureKind(err), "cache: promoting %s: %w", fingerprint.Format(slot.fp), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lastAccess := s.clock.Now()
	s.entries[slot.fp] = &entry{
		state:      Ready,
		finalPath:  finalPath,
		size:       info.Size(),
		lastAccess: lastAccess,
	}
	return ProbeResult{State: Ready, Path: finalPath, Size: info.Size(), LastAccess: lastAccess}, nil
}

// Abandon unlinks the slot's temp file and returns the entry to
// absent, so a subsequent Reserve for the same fingerprint succeeds.
func (s *Store) Abandon(slot *Slot) error {
	removeErr := os.Remove(slot.Path)

	s.mu.Lock()
	delete(s.entries, slot.fp)
	s.mu.Unlock()

	if removeErr != nil && !os.IsNotExist(removeErr) {
		return enginerr.Wrap(ioFailureKind(removeErr), "cache: abandoning %s: %w", fingerprint.Format(slot.fp), removeErr)
	}
	return nil
}

// Handle is a pinned read-only reference to a ready cache entry.
// Release must be called exactly once to drop the pin.
type Handle struct {
	fp   fingerprint.Fingerprint
	Path string
	Size int64
}

// Acquire pins fp's entry and returns a read handle, failing with
// ErrNotFound if the entry is not ready. The pin count increment
// happens here (on acquire), and the last-access timestamp is bumped
// here too — not on every read — bounding the update rate per the
// engine's design notes.
func (s *Store) Acquire(fp fingerprint.Fingerprint) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.probeLocked(fp)
	if result.State != Ready {
		return nil, enginerr.Wrap(enginerr.NotFound, "cache: acquire %s: not ready (state=%s)", fingerprint.Format(fp), result.State)
	}

	e := s.entries[fp]
	e.pinCount++
	e.lastAccess = s.clock.Now()

	return &Handle{fp: fp, Path: e.finalPath, Size: e.size}, nil
}

// Release decrements the pin count on the handle's entry.
func (s *Store) Release(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[h.fp]
	if !ok {
		return
	}
	if e.pinCount > 0 {
		e.pinCount--
	}
}

// Evict unlinks a ready, unpinned entry. Returns an error if the
// entry is pinned or not ready — invariant I3/I4 callers (the size
// maintainer) must check eligibility before calling Evict, but Evict
// re-validates under the lock to close the race between selection and
// eviction.
func (s *Store) Evict(fp fingerprint.Fingerprint) error {
	s.mu.Lock()
	e, ok := s.entries[fp]
	if !ok || e.state != Ready {
		s.mu.Unlock()
		return fmt.Errorf("cache: evict %s: not ready", fingerprint.Format(fp))
	}
	if e.pinCount > 0 {
		s.mu.Unlock()
		return fmt.Errorf("cache: evict %s: pinned", fingerprint.Format(fp))
	}
	e.state = Evicting
	path := e.finalPath
	s.mu.Unlock()

	err := os.Remove(path)

	s.mu.Lock()
	delete(s.entries, fp)
	s.mu.Unlock()

	if err != nil && !os.IsNotExist(err) {
		return enginerr.Wrap(ioFailureKind(err), "cache: unlinking %s: %w", fingerprint.Format(fp), err)
	}
	return nil
}

// ioFailureKind classifies a failed cache-directory I/O operation:
// disk-full conditions surface as Budget (spec §7), everything else as
// a generic CacheIoFailure.
func ioFailureKind(err error) enginerr.Kind {
	if enginerr.IsENOSPC(err) {
		return enginerr.Budget
	}
	return enginerr.CacheIoFailure
}

// CandidateInfo describes one ready entry for the size maintainer's
// eviction scan.
type CandidateInfo struct {
	Fingerprint fingerprint.Fingerprint
	Name        string
	Size        int64
	LastAccess  time.Time
	Pinned      bool
}

// ReadyEntries returns a snapshot of every tracked ready entry. Only
// entries the store has already seeded (via Probe, Promote, or
// Rebuild) are included — an entry that exists on disk but has never
// been probed or rebuilt is invisible until one of those happens.
func (s *Store) ReadyEntries() []CandidateInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]CandidateInfo, 0, len(s.entries))
	for fp, e := range s.entries {
		if e.state != Ready {
			continue
		}
		candidates = append(candidates, CandidateInfo{
			Fingerprint: fp,
			Name:        fingerprint.Format(fp),
			Size:        e.size,
			LastAccess:  e.lastAccess,
			Pinned:      e.pinCount > 0,
		})
	}
	return candidates
}

// TotalReadySize returns the sum of ready entries' byte lengths
// currently tracked in memory.
func (s *Store) TotalReadySize() int64 {
	var total int64
	for _, c := range s.ReadyEntries() {
		total += c.Size
	}
	return total
}

// Rebuild scans the cache directory and seeds the in-memory index
// from every regular, non-partial file found. This mirrors the
// original implementation's directory-walk reconstruction at mount
// time (cachefs.py's _fs_reconstructFromCacheContents): it lets the
// size maintainer account for entries left ready by a prior process
// run without waiting for each one to be individually probed first.
// Rebuild does not mark files as freshly accessed — it seeds
// last-access from each file's on-disk modification time, exactly as
// the original does, so a long-idle entry found at startup is
// immediately eligible for eviction rather than being treated as just
// accessed.
func (s *Store) Rebuild() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("cache: rebuild: reading directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dirEntry := range entries {
		if dirEntry.IsDir() {
			continue
		}
		// Only a bare 64-hex-character fingerprint filename is a ready
		// entry; manifests use a .manifest suffix and partials a
		// .partial-<nonce> suffix, both longer than 64 characters.
		name := dirEntry.Name()
		if len(name) != 64 {
			continue
		}
		fp, err := fingerprint.Parse(name)
		if err != nil {
			continue
		}
		if _, tracked := s.entries[fp]; tracked {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			continue
		}
		s.entries[fp] = &entry{
			state:      Ready,
			finalPath:  filepath.Join(s.dir, name),
			size:       info.Size(),
			lastAccess: info.ModTime(),
		}
	}
	return nil
}
