// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR encoding configuration used
// for on-disk records: the cache store's per-entry provenance manifest
// (fingerprint inputs, kept for debugging cache-invalidation surprises).
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes, which matters for
// property P6 (determinism) — two manifests for the same fingerprint
// must be byte-identical.
//
// For buffer-oriented operations (files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Struct fields use `cbor` tags; this package has no JSON-facing
// convention to reconcile since manifests are never exposed over an
// external interface.
package codec
