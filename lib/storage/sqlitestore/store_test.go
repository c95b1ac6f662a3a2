// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitestore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/regionfs/lib/clock"
	"github.com/bureau-foundation/regionfs/lib/region"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(Config{
		Path:     path,
		PoolSize: 2,
		Clock:    clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func testEntry(t *testing.T, fill byte) *region.Entry {
	t.Helper()
	payload, err := region.Compress(region.CompressionZlib, bytes.Repeat([]byte{fill}, 5000))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	entry, err := region.NewEntry(region.CompressionZlib, payload)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	return entry
}

func TestStoreLoadSave(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "chunks.db"))
	defer store.Close()

	coord := region.ChunkCoord{X: -100, Z: 7}
	if _, ok, err := store.Load(ctx, coord); err != nil || ok {
		t.Fatalf("Load before Save = %v, %v", ok, err)
	}

	first := testEntry(t, 1)
	if err := store.Save(ctx, coord, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, ok, err := store.Load(ctx, coord)
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	if !bytes.Equal(loaded.Bytes(), first.Bytes()) {
		t.Error("loaded entry differs from saved entry")
	}

	second := testEntry(t, 2)
	if err := store.Save(ctx, coord, second); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	loaded, _, err = store.Load(ctx, coord)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), second.Bytes()) {
		t.Error("Save did not replace the existing entry")
	}

	if count, err := store.Count(ctx); err != nil || count != 1 {
		t.Errorf("Count() = %d, %v; want 1", count, err)
	}
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chunks.db")
	coord := region.ChunkCoord{X: 5, Z: 5}
	entry := testEntry(t, 9)

	store := openTestStore(t, path)
	if err := store.Save(ctx, coord, entry); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestStore(t, path)
	defer reopened.Close()
	loaded, ok, err := reopened.Load(ctx, coord)
	if err != nil || !ok {
		t.Fatalf("Load after reopen = %v, %v", ok, err)
	}
	if !bytes.Equal(loaded.Bytes(), entry.Bytes()) {
		t.Error("entry changed across reopen")
	}
}

func TestStoreClosedIsUnavailable(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "chunks.db"))
	store.Close()
	_, _, err := store.Load(context.Background(), region.ChunkCoord{})
	if !errors.Is(err, region.ErrStorageUnavailable) {
		t.Errorf("Load on closed store error = %v, want ErrStorageUnavailable", err)
	}
}
