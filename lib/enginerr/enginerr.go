// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package enginerr defines the engine's error taxonomy. Every
// component returns errors wrapped in one of the kinds below so the
// filesystem adapter (lib/fs) can make a single, centralized
// translation to errno values instead of pattern-matching error
// strings.
package enginerr

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind identifies which taxonomy bucket an error belongs to.
type Kind int

const (
	// SourceUnavailable means the source file is missing, unreadable,
	// or was modified mid-build.
	SourceUnavailable Kind = iota
	// DriverFailure means an encoder exited non-zero or produced
	// truncated output.
	DriverFailure
	// CacheIoFailure means a cache directory write, rename, or unlink
	// failed.
	CacheIoFailure
	// Budget means a partial file could not be reserved because the
	// write failed on ENOSPC.
	Budget
	// Cancelled means the caller initiated cancellation.
	Cancelled
	// NotFound means the filesystem-level lookup found nothing.
	NotFound
	// NotPermitted means the filesystem-level operation is disallowed
	// (all write-family operations).
	NotPermitted
)

func (k Kind) String() string {
	switch k {
	case SourceUnavailable:
		return "source-unavailable"
	case DriverFailure:
		return "driver-failure"
	case CacheIoFailure:
		return "cache-io-failure"
	case Budget:
		return "budget"
	case Cancelled:
		return "cancelled"
	case NotFound:
		return "not-found"
	case NotPermitted:
		return "not-permitted"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a taxonomy Kind. Use [errors.Is]
// against the sentinel values below, or [errors.As] to recover the Kind
// and the wrapped cause.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, enginerr.ErrSourceUnavailable) style comparisons work
// against the package-level sentinels below.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind && other.Cause == nil
}

// New wraps cause as an Error of the given kind. If cause is nil, the
// resulting error carries no wrapped cause — useful for the sentinel
// values below.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Wrap is a convenience for New(kind, fmt.Errorf(format, args...)).
func Wrap(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// Sentinel values with no wrapped cause, for errors.Is comparisons:
//
//	if errors.Is(err, enginerr.ErrNotFound) { ... }
var (
	ErrSourceUnavailable = &Error{Kind: SourceUnavailable}
	ErrDriverFailure     = &Error{Kind: DriverFailure}
	ErrCacheIoFailure    = &Error{Kind: CacheIoFailure}
	ErrBudget            = &Error{Kind: Budget}
	ErrCancelled         = &Error{Kind: Cancelled}
	ErrNotFound          = &Error{Kind: NotFound}
	ErrNotPermitted      = &Error{Kind: NotPermitted}
)

// IsENOSPC reports whether err is, or wraps, syscall.ENOSPC. Call sites
// that would otherwise always wrap an I/O failure as CacheIoFailure or
// DriverFailure use this to route a disk-full condition to Budget
// instead, per spec §7.
func IsENOSPC(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
// Returns ok=false if no Error is found in the chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
