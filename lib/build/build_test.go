// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package build

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/audiofs/audiofs/lib/cache"
	"github.com/audiofs/audiofs/lib/clock"
	"github.com/audiofs/audiofs/lib/driver"
	"github.com/audiofs/audiofs/lib/enginerr"
	"github.com/audiofs/audiofs/lib/fingerprint"
	"github.com/audiofs/audiofs/lib/source"
)

// fakeDriver lets tests control exactly when and how a build finishes.
type fakeDriver struct {
	id      string
	started chan struct{}
	release chan error // send nil for success, an error to fail the run
	calls   int
	mu      sync.Mutex
}

func newFakeDriver(id string) *fakeDriver {
	return &fakeDriver{id: id, started: make(chan struct{}, 16), release: make(chan error)}
}

func (d *fakeDriver) ID() string         { return d.id }
func (d *fakeDriver) VersionTag() string { return "v1" }

func (d *fakeDriver) FingerprintInputs(job driver.Job) fingerprint.Inputs {
	return fingerprint.Inputs{DriverID: d.id, VersionTag: "v1", Source: job.SourceIdentity}
}

func (d *fakeDriver) EstimateSize(ctx context.Context, job driver.Job) (int64, error) {
	return 1024, nil
}

func (d *fakeDriver) Run(ctx context.Context, job driver.Job, sinkPath string) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	d.started <- struct{}{}

	select {
	case err := <-d.release:
		if err != nil {
			return err
		}
		return os.WriteFile(sinkPath, []byte("built"), 0o644)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *cache.Store) {
	t.Helper()
	store, err := cache.New(cache.Options{Dir: t.TempDir(), Clock: clock.Fake(time.Unix(1735689600, 0))})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, nil), store
}

func testJob() driver.Job {
	return driver.Job{SourcePath: "/music/a.flac", SourceIdentity: source.Identity{Device: 1, Inode: 1, Size: 10}}
}

func TestGetOrBuildSingleCallerSucceeds(t *testing.T) {
	coord, store := newTestCoordinator(t)
	d := newFakeDriver("test")

	go func() {
		<-d.started
		d.release <- nil
	}()

	handle, err := coord.GetOrBuild(context.Background(), d, testJob())
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	defer store.Release(handle)

	if handle.Size != 5 {
		t.Errorf("size = %d, want 5", handle.Size)
	}
}

func TestGetOrBuildConcurrentCallersShareOneBuild(t *testing.T) {
	coord, store := newTestCoordinator(t)
	d := newFakeDriver("test")
	job := testJob()

	const n = 8
	results := make(chan *cache.Handle, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := coord.GetOrBuild(context.Background(), d, job)
			results <- h
			errs <- err
		}()
	}

	<-d.started
	d.release <- nil
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("GetOrBuild: %v", err)
		}
	}
	for h := range results {
		if h != nil {
			store.Release(h)
		}
	}

	d.mu.Lock()
	calls := d.calls
	d.mu.Unlock()
	if calls != 1 {
		t.Errorf("driver Run called %d times, want exactly 1", calls)
	}
}

func TestGetOrBuildDriverFailurePropagatesAndAllowsRetry(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	d := newFakeDriver("test")
	job := testJob()

	failure := errors.New("encoder exploded")
	go func() {
		<-d.started
		d.release <- failure
	}()

	_, err := coord.GetOrBuild(context.Background(), d, job)
	if err == nil {
		t.Fatal("expected failure from GetOrBuild")
	}
	kind, ok := enginerr.KindOf(err)
	if !ok || kind != enginerr.DriverFailure {
		t.Errorf("error kind = %v, want DriverFailure", kind)
	}

	// The state must have returned to absent, so a second attempt
	// gets a fresh chance to build successfully.
	go func() {
		<-d.started
		d.release <- nil
	}()
	handle, err := coord.GetOrBuild(context.Background(), d, job)
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if handle == nil {
		t.Fatal("expected a handle on retry")
	}
}

func TestGetOrBuildCancelledWaiterDoesNotDisturbBuilder(t *testing.T) {
	coord, store := newTestCoordinator(t)
	d := newFakeDriver("test")
	job := testJob()

	builderDone := make(chan struct{})
	var builderHandle *cache.Handle
	var builderErr error
	go func() {
		builderHandle, builderErr = coord.GetOrBuild(context.Background(), d, job)
		close(builderDone)
	}()
	<-d.started

	waiterCtx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan struct{})
	var waiterErr error
	go func() {
		_, waiterErr = coord.GetOrBuild(waiterCtx, d, job)
		close(waiterDone)
	}()

	cancel()
	<-waiterDone
	if waiterErr == nil {
		t.Error("expected cancelled waiter to receive an error")
	}
	kind, ok := enginerr.KindOf(waiterErr)
	if !ok || kind != enginerr.Cancelled {
		t.Errorf("waiter error kind = %v, want Cancelled", kind)
	}

	d.release <- nil
	<-builderDone
	if builderErr != nil {
		t.Fatalf("builder GetOrBuild: %v", builderErr)
	}
	store.Release(builderHandle)
}
