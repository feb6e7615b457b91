// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package mountcli implements the shared flag parsing, logger
// construction, and signal-based shutdown used by the three mount
// binaries (cmd/audiofs-mp3, cmd/audiofs-ogg, cmd/audiofs-splittrack).
package mountcli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Config is the common set of flags every mount binary accepts.
type Config struct {
	SourceDir        string
	Mountpoint       string
	CacheDir         string
	CacheBudget      int64
	MinEvictableSize int64
	Bitrate          string
	AllowOther       bool
	EvictionLogPath  string
}

// ParseFlags registers the shared flag set on flag.CommandLine, parses
// os.Args[1:], and validates that the required flags were supplied.
// bitrateUsage is empty for drivers that don't take a bitrate
// (SplitTrack); passing it non-empty registers the --bitrate flag.
func ParseFlags(bitrateUsage string) (Config, error) {
	var cfg Config
	flag.StringVar(&cfg.SourceDir, "source-dir", "", "source music tree to project (required)")
	flag.StringVar(&cfg.Mountpoint, "mountpoint", "", "FUSE mount directory (required)")
	flag.StringVar(&cfg.CacheDir, "cache-dir", "", "cache directory for derived files (required)")
	flag.Int64Var(&cfg.CacheBudget, "cache-budget", 0, "soft byte budget for the cache directory (0 disables the size maintainer)")
	flag.Int64Var(&cfg.MinEvictableSize, "min-evictable-size", 0, "entries smaller than this are never evicted")
	flag.BoolVar(&cfg.AllowOther, "allow-other", false, "allow other users to access the mount (requires user_allow_other in /etc/fuse.conf)")
	flag.StringVar(&cfg.EvictionLogPath, "eviction-log", "", "optional path to append size maintainer eviction records to, separate from the main log (default: none)")
	if bitrateUsage != "" {
		flag.StringVar(&cfg.Bitrate, "bitrate", "192", bitrateUsage)
	}
	flag.Parse()

	if cfg.SourceDir == "" {
		return Config{}, fmt.Errorf("--source-dir is required")
	}
	if cfg.Mountpoint == "" {
		return Config{}, fmt.Errorf("--mountpoint is required")
	}
	if cfg.CacheDir == "" {
		return Config{}, fmt.Errorf("--cache-dir is required")
	}
	return cfg, nil
}

// NewLogger constructs the standard structured logger every mount
// binary uses.
func NewLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// EvictionLogger opens the size maintainer's dedicated eviction log at
// path, or returns fallback unchanged if path is empty. The returned
// closer must be closed (even when path was empty, in which case it is
// a no-op) before the process exits.
func EvictionLogger(path string, fallback *slog.Logger) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return fallback, (*os.File)(nil), nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening eviction log %s: %w", path, err)
	}
	logger := slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	return logger, file, nil
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM,
// plus the stop function that must be deferred to release the signal
// notification.
func ShutdownContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
