// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine wires the Cache Store, Build Coordinator, Size
// Maintainer, and Virtual Catalog into one mountable unit, so a mount
// binary only has to construct an Engine and hand it to lib/fs.
package engine

import (
	"io"
	"log/slog"

	"github.com/audiofs/audiofs/lib/build"
	"github.com/audiofs/audiofs/lib/cache"
	"github.com/audiofs/audiofs/lib/catalog"
	"github.com/audiofs/audiofs/lib/driver"
	"github.com/audiofs/audiofs/lib/maintainer"
)

// Options configures an Engine.
type Options struct {
	SourceDir string
	CacheDir  string
	Driver    driver.Driver
	Kind      catalog.Kind
	Bitrate   string

	// CacheBudget, if positive, starts a Size Maintainer sweeping
	// toward this soft byte budget. Zero disables the maintainer.
	CacheBudget      int64
	MinEvictableSize int64

	Logger *slog.Logger

	// MaintainerLogger receives the Size Maintainer's eviction records.
	// Defaults to Logger when nil, so the eviction log only diverges
	// from the main log when a caller sets this explicitly (e.g. to a
	// file opened from --eviction-log).
	MaintainerLogger *slog.Logger
}

// Engine owns the cache store and the background maintainer goroutine
// built on top of it, and exposes the catalog and coordinator the
// filesystem adapter binds to.
type Engine struct {
	Store       *cache.Store
	Catalog     *catalog.Catalog
	Coordinator *build.Coordinator
	maintainer  *maintainer.Maintainer // nil if CacheBudget == 0
}

// New constructs an Engine, opening the cache store (acquiring its
// exclusive lock) and rebuilding its in-memory index from any entries
// a prior process run left on disk.
func New(options Options) (*Engine, error) {
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := cache.New(cache.Options{Dir: options.CacheDir})
	if err != nil {
		return nil, err
	}
	if err := store.Rebuild(); err != nil {
		store.Close()
		return nil, err
	}

	cat := catalog.New(store, catalog.Options{
		SourceDir: options.SourceDir,
		Kind:      options.Kind,
		Driver:    options.Driver,
		Bitrate:   options.Bitrate,
	})

	coordinator := build.New(store, options.Logger)

	engine := &Engine{
		Store:       store,
		Catalog:     cat,
		Coordinator: coordinator,
	}

	if options.CacheBudget > 0 {
		maintainerLogger := options.MaintainerLogger
		if maintainerLogger == nil {
			maintainerLogger = options.Logger
		}
		engine.maintainer = maintainer.New(store, maintainer.Options{
			Budget:           options.CacheBudget,
			MinEvictableSize: options.MinEvictableSize,
			Logger:           maintainerLogger,
		})
		go engine.maintainer.Run()
	}

	return engine, nil
}

// Close stops the size maintainer (if running) and releases the cache
// store's exclusive lock.
func (e *Engine) Close() error {
	if e.maintainer != nil {
		e.maintainer.Stop()
	}
	return e.Store.Close()
}
