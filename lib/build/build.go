// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package build implements the Build Coordinator (spec §4.4):
// get-or-build with at-most-one concurrent build per fingerprint. A
// hand-rolled ticket registry is used rather than
// golang.org/x/sync/singleflight because singleflight offers no way
// to distinguish "the caller that started the work was cancelled" from
// "the work itself failed," and provides no hook for re-electing a new
// builder from the remaining waiters when the original builder is
// cancelled mid-run — both of which the coordinator's cancellation
// semantics require (spec §4.4, §8).
package build

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/audiofs/audiofs/lib/cache"
	"github.com/audiofs/audiofs/lib/driver"
	"github.com/audiofs/audiofs/lib/enginerr"
	"github.com/audiofs/audiofs/lib/fingerprint"
)

// ticket is the rendezvous object joined by every caller that misses
// the cache for the same fingerprint while a build is in flight. done
// is closed exactly once, by whichever goroutine resolves the build
// (success or failure); every waiter races a select on done against
// its own context so a cancelled waiter never blocks the others.
type ticket struct {
	done chan struct{}
}

// Coordinator implements get-or-build over a cache.Store. One
// Coordinator per cache directory, shared by every caller (the
// filesystem adapter's open handlers, all racing concurrently).
type Coordinator struct {
	store  *cache.Store
	logger *slog.Logger

	mu      sync.Mutex
	tickets map[fingerprint.Fingerprint]*ticket
}

// New constructs a Coordinator over store. A nil logger discards all
// log output.
func New(store *cache.Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		store:   store,
		logger:  logger,
		tickets: make(map[fingerprint.Fingerprint]*ticket),
	}
}

// GetOrBuild implements the five-step algorithm from spec §4.4: probe,
// join-or-build, run, resolve. It loops because a waiter that wakes
// from a resolved ticket must re-probe rather than assume readiness —
// the build it waited on may have failed, in which case it competes to
// become the next builder.
func (c *Coordinator) GetOrBuild(ctx context.Context, d driver.Driver, job driver.Job) (*cache.Handle, error) {
	fp := fingerprint.Compute(d.FingerprintInputs(job))

	for {
		result := c.store.Probe(fp)

		switch result.State {
		case cache.Ready:
			return c.store.Acquire(fp)

		case cache.Building:
			if err := c.join(ctx, fp); err != nil {
				return nil, err
			}
			// Ticket resolved (success or failure); restart from the
			// top regardless of which, per spec §4.4 step 2.
			continue

		default: // Absent (or a transient Evicting we lost a race against).
			handle, err, retry := c.build(ctx, d, job, fp)
			if retry {
				continue
			}
			return handle, err
		}
	}
}

// join waits for the in-flight build for fp to resolve, or for ctx to
// be cancelled first. A cancelled waiter leaves the ticket and the
// build it names entirely untouched (spec §4.4 Cancellation).
func (c *Coordinator) join(ctx context.Context, fp fingerprint.Fingerprint) error {
	c.mu.Lock()
	t, ok := c.tickets[fp]
	c.mu.Unlock()

	if !ok {
		// The builder reserved the slot but has not yet registered its
		// ticket. The window is a few instructions wide; spin back to
		// the caller's probe loop rather than blocking on nothing.
		return nil
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return enginerr.Wrap(enginerr.Cancelled, "build: waiting for %s: %w", fingerprint.Format(fp), ctx.Err())
	}
}

// build reserves fp, runs the driver, and resolves the ticket. The
// retry return value is true when this goroutine lost the reserve
// race and should fall back to joining the winner's ticket instead
// (spec §4.4 Tie-breaks).
func (c *Coordinator) build(ctx context.Context, d driver.Driver, job driver.Job, fp fingerprint.Fingerprint) (handle *cache.Handle, err error, retry bool) {
	slot, reserveErr := c.store.Reserve(fp)
	if reserveErr != nil {
		// Lost the race: someone else's Reserve already landed.
		// Behave as if this goroutine observed building at step 2.
		return nil, nil, true
	}

	t := &ticket{done: make(chan struct{})}
	c.mu.Lock()
	c.tickets[fp] = t
	c.mu.Unlock()

	resolve := func() {
		c.mu.Lock()
		delete(c.tickets, fp)
		c.mu.Unlock()
		close(t.done)
	}

	runErr := d.Run(ctx, job, slot.Path)
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	if runErr != nil {
		if abandonErr := c.store.Abandon(slot); abandonErr != nil {
			c.logger.Error("build: abandoning failed build",
				"driver", d.ID(), "fingerprint", fingerprint.Format(fp), "error", abandonErr)
		}
		resolve()

		if ctx.Err() != nil {
			return nil, enginerr.Wrap(enginerr.Cancelled, "build: %s: %w", d.ID(), ctx.Err()), false
		}
		kind := enginerr.DriverFailure
		if enginerr.IsENOSPC(runErr) {
			kind = enginerr.Budget
		}
		return nil, enginerr.Wrap(kind, "build: driver %s failed: %w", d.ID(), runErr), false
	}

	if _, promoteErr := c.store.Promote(slot); promoteErr != nil {
		resolve()
		return nil, promoteErr, false
	}
	if manifestErr := c.store.WriteManifest(fp, d.FingerprintInputs(job)); manifestErr != nil {
		c.logger.Warn("build: writing provenance manifest failed",
			"driver", d.ID(), "fingerprint", fingerprint.Format(fp), "error", manifestErr)
	}
	resolve()

	handle, acquireErr := c.store.Acquire(fp)
	if acquireErr != nil {
		return nil, acquireErr, false
	}
	c.logger.Info("build: completed", "driver", d.ID(), "fingerprint", fingerprint.Format(fp), "size", handle.Size)
	return handle, nil, false
}
