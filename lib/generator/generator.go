// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package generator produces chunk content deterministically from a
// coordinate and a configuration fixed at construction.
//
// Each generator reports a Fingerprint: a BLAKE3 keyed hash of the
// generator kind, its algorithm version, and its parameters. Stores
// that keep chunks as differences from generated output record the
// fingerprint beside each diff and refuse to apply a diff against a
// generator with a different fingerprint.
package generator

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/regionfs/lib/chunk"
	"github.com/bureau-foundation/regionfs/lib/codec"
	"github.com/bureau-foundation/regionfs/lib/region"
)

// Generator produces the content of a chunk. Implementations are
// deterministic and safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, coord region.ChunkCoord) (*chunk.Content, error)
	Fingerprint() Fingerprint
}

// Fingerprint identifies a generator configuration.
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// fingerprintKey is the BLAKE3 key for generator fingerprints: the
// ASCII domain name zero-padded to 32 bytes.
var fingerprintKey = [32]byte{
	'r', 'e', 'g', 'i', 'o', 'n', 'f', 's', '.', 'g', 'e', 'n', 'e', 'r', 'a', 't',
	'o', 'r', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

type fingerprintInput struct {
	Kind       string `cbor:"kind"`
	Version    int    `cbor:"version"`
	Parameters any    `cbor:"parameters"`
}

func computeFingerprint(kind string, version int, parameters any) (Fingerprint, error) {
	encoded, err := codec.Marshal(fingerprintInput{Kind: kind, Version: version, Parameters: parameters})
	if err != nil {
		return Fingerprint{}, fmt.Errorf("encoding %s generator parameters: %w", kind, err)
	}
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		return Fingerprint{}, fmt.Errorf("creating fingerprint hasher: %w", err)
	}
	hasher.Write(encoded)
	var fingerprint Fingerprint
	copy(fingerprint[:], hasher.Sum(nil))
	return fingerprint, nil
}
