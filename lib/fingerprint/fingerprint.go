// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes the stable byte string that names a
// derived byte stream: a deterministic hash of {driver id,
// driver-version tag, parameter tuple, source identity}. Two builds
// with the same fingerprint are required to produce byte-identical
// output (spec property P6).
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/audiofs/audiofs/lib/source"
)

// Fingerprint is a 32-byte BLAKE3 digest over a driver's fingerprint
// inputs. It is also the cache entry's on-disk filename (hex-encoded).
type Fingerprint [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. A single fixed
// key is shared by every driver; it separates fingerprints from other
// uses of BLAKE3. Inputs of different drivers are kept apart by the
// driver id, which is the first field hashed.
type domainKey [32]byte

var fingerprintDomainKey = domainKey{
	'a', 'u', 'd', 'i', 'o', 'f', 's', '.', 'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r',
	'i', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Inputs is the complete set of values that determine a derived
// stream's identity. Params is sorted before hashing so that callers
// need not worry about presentation order (e.g. a map iterated in
// varying order upstream).
type Inputs struct {
	DriverID   string
	VersionTag string
	Params     []string
	Source     source.Identity
}

// Compute derives the Fingerprint for the given inputs. The encoding
// is a simple length-prefixed concatenation: sortable and unambiguous,
// not meant to be parsed back, only hashed.
func Compute(in Inputs) Fingerprint {
	hasher, err := blake3.NewKeyed(fingerprintDomainKey[:])
	if err != nil {
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	writeField(hasher, in.DriverID)
	writeField(hasher, in.VersionTag)

	params := make([]string, len(in.Params))
	copy(params, in.Params)
	sort.Strings(params)
	for _, p := range params {
		writeField(hasher, p)
	}

	writeField(hasher, in.Source.CanonicalString())

	var fp Fingerprint
	copy(fp[:], hasher.Sum(nil))
	return fp
}

// writeField writes a length-prefixed field so that concatenation
// boundaries cannot be forged by crafted field values (e.g. "ab"+"c"
// vs "a"+"bc").
func writeField(hasher *blake3.Hasher, s string) {
	var lengthPrefix [8]byte
	length := uint64(len(s))
	for i := range lengthPrefix {
		lengthPrefix[i] = byte(length >> (8 * i))
	}
	hasher.Write(lengthPrefix[:])
	hasher.Write([]byte(s))
}

// Format returns the hex-encoded string form of a Fingerprint. This is
// the canonical cache filename and the form used in logs.
func Format(fp Fingerprint) string {
	return hex.EncodeToString(fp[:])
}

// Parse parses a 64-character hex string into a Fingerprint.
func Parse(hexString string) (Fingerprint, error) {
	var fp Fingerprint
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return fp, fmt.Errorf("parsing fingerprint: %w", err)
	}
	if len(decoded) != 32 {
		return fp, fmt.Errorf("fingerprint is %d bytes, want 32", len(decoded))
	}
	copy(fp[:], decoded)
	return fp, nil
}
