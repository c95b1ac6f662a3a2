// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package region

import "errors"

// Error kinds shared by the layers that serve region bytes. Callers
// wrap them with coordinates and context; the filesystem adapter
// classifies them with errors.Is when translating to errno values.
var (
	// ErrOutOfBounds reports a read or write outside the virtual file.
	ErrOutOfBounds = errors.New("access outside region file bounds")

	// ErrGeneration reports a world generator failure or timeout.
	ErrGeneration = errors.New("chunk generation failed")

	// ErrStorageUnavailable reports a storage backend that could not
	// be reached or timed out. The data itself may be intact.
	ErrStorageUnavailable = errors.New("chunk storage unavailable")

	// ErrMalformedEntry reports stored or written bytes that violate
	// the chunk entry framing or cannot be decoded.
	ErrMalformedEntry = errors.New("malformed chunk entry")

	// ErrChunkAbsent reports a chunk with no stored entry and no
	// generator to produce one.
	ErrChunkAbsent = errors.New("chunk absent")
)
