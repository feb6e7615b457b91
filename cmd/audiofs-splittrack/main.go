// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Command audiofs-splittrack mounts a read-only FUSE view that expands
// each album FLAC file with a sibling cue sheet into a directory of
// per-track lossless files on first access, caching the result.
package main

import (
	"fmt"
	"os"

	"github.com/audiofs/audiofs/lib/catalog"
	"github.com/audiofs/audiofs/lib/driver"
	"github.com/audiofs/audiofs/lib/engine"
	"github.com/audiofs/audiofs/lib/fs"
	"github.com/audiofs/audiofs/lib/mountcli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := mountcli.ParseFlags("")
	if err != nil {
		return err
	}
	logger := mountcli.NewLogger()

	evictionLogger, evictionCloser, err := mountcli.EvictionLogger(cfg.EvictionLogPath, logger)
	if err != nil {
		return fmt.Errorf("opening eviction log: %w", err)
	}
	defer evictionCloser.Close()

	ctx, stop := mountcli.ShutdownContext()
	defer stop()

	eng, err := engine.New(engine.Options{
		SourceDir:        cfg.SourceDir,
		CacheDir:         cfg.CacheDir,
		Driver:           driver.SplitTrack{},
		Kind:             catalog.KindSplitTrack,
		CacheBudget:      cfg.CacheBudget,
		MinEvictableSize: cfg.MinEvictableSize,
		Logger:           logger,
		MaintainerLogger: evictionLogger,
	})
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer eng.Close()

	server, err := fs.Mount(fs.Options{
		Mountpoint:  cfg.Mountpoint,
		Catalog:     eng.Catalog,
		Coordinator: eng.Coordinator,
		Store:       eng.Store,
		Driver:      driver.SplitTrack{},
		AllowOther:  cfg.AllowOther,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("mounting FUSE filesystem: %w", err)
	}
	defer func() {
		if err := server.Unmount(); err != nil {
			logger.Error("failed to unmount FUSE filesystem", "error", err)
		}
	}()

	logger.Info("audiofs-splittrack running", "source_dir", cfg.SourceDir, "mountpoint", cfg.Mountpoint)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
