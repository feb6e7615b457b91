// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package maintainer implements the Size Maintainer (spec §4.5): a
// background sweep that keeps the cache under a configured byte
// budget by evicting the least-recently-used, unpinned ready entries.
package maintainer

import (
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/audiofs/audiofs/lib/cache"
	"github.com/audiofs/audiofs/lib/clock"
)

// Options configures a Maintainer.
type Options struct {
	// Budget is the target maximum total size, in bytes, of ready
	// cache entries. Pinned entries over budget are tolerated (I4).
	Budget int64

	// MinEvictableSize excludes entries smaller than this from
	// eviction consideration, so the sweep does not spend its effort
	// reclaiming a handful of bytes from many small entries.
	MinEvictableSize int64

	// Exclusions names cache entries (by filename, i.e. hex
	// fingerprint) the maintainer must never evict, e.g. long-lived
	// metadata artifacts.
	Exclusions map[string]bool

	// Interval is the period between sweeps.
	Interval time.Duration

	// Clock supplies the ticker. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives one Info record per eviction. Defaults to a
	// discarding logger.
	Logger *slog.Logger
}

// Maintainer periodically evicts entries from a cache.Store to keep
// it under budget.
type Maintainer struct {
	store   *cache.Store
	options Options
	clock   clock.Clock
	logger  *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// DefaultInterval is the sweep period used when Options.Interval is
// not set.
const DefaultInterval = 5 * time.Minute

// New constructs a Maintainer. Call Run to start the sweep loop.
func New(store *cache.Store, options Options) *Maintainer {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Interval <= 0 {
		options.Interval = DefaultInterval
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if options.Exclusions == nil {
		options.Exclusions = map[string]bool{}
	}
	return &Maintainer{
		store:   store,
		options: options,
		clock:   options.Clock,
		logger:  options.Logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run blocks, sweeping on every tick of the configured interval until
// Stop is called. Intended to run in its own goroutine.
func (m *Maintainer) Run() {
	defer close(m.done)

	ticker := m.clock.NewTicker(m.options.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stop:
			return
		}
	}
}

// Stop signals Run to exit and waits for it to return.
func (m *Maintainer) Stop() {
	close(m.stop)
	<-m.done
}

// Sweep performs one eviction pass: while the total ready size exceeds
// the budget, it evicts the eligible entry with the oldest last-access
// time (ties broken by ascending name) until either the budget is met
// or no eligible entry remains.
func (m *Maintainer) Sweep() {
	for {
		total := m.store.TotalReadySize()
		if total <= m.options.Budget {
			return
		}

		candidate, ok := m.selectCandidate()
		if !ok {
			// Every ready entry is pinned, excluded, or too small.
			// Budget is exceeded transiently, per I4.
			return
		}

		age := m.clock.Now().Sub(candidate.LastAccess)
		if err := m.store.Evict(candidate.Fingerprint); err != nil {
			m.logger.Error("maintainer: eviction failed", "name", candidate.Name, "error", err)
			continue
		}
		m.logger.Info("maintainer: evicted", "name", candidate.Name, "size", candidate.Size, "age", age)
	}
}

func (m *Maintainer) selectCandidate() (cache.CandidateInfo, bool) {
	entries := m.store.ReadyEntries()

	eligible := entries[:0]
	for _, e := range entries {
		if e.Pinned {
			continue
		}
		if e.Size < m.options.MinEvictableSize {
			continue
		}
		if m.options.Exclusions[e.Name] {
			continue
		}
		eligible = append(eligible, e)
	}
	if len(eligible) == 0 {
		return cache.CandidateInfo{}, false
	}

	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].LastAccess.Equal(eligible[j].LastAccess) {
			return eligible[i].LastAccess.Before(eligible[j].LastAccess)
		}
		return eligible[i].Name < eligible[j].Name
	})
	return eligible[0], true
}
