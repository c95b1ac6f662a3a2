// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage defines the chunk storage capability and an
// in-memory implementation.
//
// A Backend persists framed chunk entries by coordinate. It is the
// authority for a coordinate once it holds an entry: the chunk
// provider consults it before falling back to generation. Backends
// that hold resources also implement io.Closer.
//
// Subpackages provide SQLite-backed implementations: sqlitestore keeps
// entries verbatim, delta keeps only the difference from generated
// output.
package storage

import (
	"context"
	"sync"

	"github.com/bureau-foundation/regionfs/lib/region"
)

// Backend loads and saves chunk entries. Load reports a miss as
// (nil, false, nil). Failures that leave the stored data intact (an
// unreachable database, a timeout) wrap region.ErrStorageUnavailable;
// stored data that cannot be decoded wraps region.ErrMalformedEntry.
type Backend interface {
	Load(ctx context.Context, coord region.ChunkCoord) (*region.Entry, bool, error)
	Save(ctx context.Context, coord region.ChunkCoord, entry *region.Entry) error
}

// Memory keeps entries in a map for the life of the process.
type Memory struct {
	mu      sync.RWMutex
	entries map[region.ChunkCoord]*region.Entry
}

var _ Backend = (*Memory)(nil)

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[region.ChunkCoord]*region.Entry)}
}

// Load returns the entry saved for coord.
func (m *Memory) Load(ctx context.Context, coord region.ChunkCoord) (*region.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[coord]
	return entry, ok, nil
}

// Save replaces the entry for coord.
func (m *Memory) Save(ctx context.Context, coord region.ChunkCoord, entry *region.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[coord] = entry
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
