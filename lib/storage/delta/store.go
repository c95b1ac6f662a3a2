// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package delta is a chunk storage backend that stores each saved
// chunk as its difference from the generator's output.
//
// Most of a saved chunk is identical to what the generator would
// produce again. On save the chunk is decoded and compared section by
// section with a freshly generated baseline. Unchanged sections cost
// nothing; lightly edited sections are stored as a list of changed
// blocks; heavily edited or extra sections, and changed light arrays,
// are stored as blobs addressed by their BLAKE3 hash. Identical blobs
// are stored once and reference counted, so the common light arrays
// and repeated builds cost one row each.
//
// Every record carries the fingerprint of the generator it was diffed
// against. Loading a record with a different generator fails with
// ErrGeneratorMismatch instead of applying the diff to the wrong
// baseline.
package delta

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/regionfs/lib/chunk"
	"github.com/bureau-foundation/regionfs/lib/clock"
	"github.com/bureau-foundation/regionfs/lib/codec"
	"github.com/bureau-foundation/regionfs/lib/generator"
	"github.com/bureau-foundation/regionfs/lib/region"
	"github.com/bureau-foundation/regionfs/lib/sqlitepool"
	"github.com/bureau-foundation/regionfs/lib/storage"
)

// ErrGeneratorMismatch reports a record diffed against a different
// generator configuration than the one configured now.
var ErrGeneratorMismatch = fmt.Errorf("%w: generator fingerprint mismatch", region.ErrMalformedEntry)

const schema = `
CREATE TABLE IF NOT EXISTS deltas (
	x          INTEGER NOT NULL,
	z          INTEGER NOT NULL,
	generator  BLOB    NOT NULL,
	record     BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (x, z)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS blobs (
	hash        BLOB    PRIMARY KEY,
	kind        INTEGER NOT NULL,
	compression INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	data        BLOB    NOT NULL,
	refs        INTEGER NOT NULL
) WITHOUT ROWID;
`

// Config configures a Store.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// PoolSize is passed to sqlitepool.
	PoolSize int

	// Generator produces baselines. Required.
	Generator generator.Generator

	// Codec decodes saved entries and encodes loaded ones. Defaults
	// to chunk.NBT.
	Codec chunk.Codec

	// Clock stamps updated_at. Defaults to clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

// Store is a storage.Backend keeping chunks as diffs.
type Store struct {
	pool        *sqlitepool.Pool
	generator   generator.Generator
	fingerprint generator.Fingerprint
	codec       chunk.Codec
	clock       clock.Clock
	logger      *slog.Logger
}

var _ storage.Backend = (*Store)(nil)

// Open opens (creating if needed) the database at config.Path.
func Open(config Config) (*Store, error) {
	if config.Generator == nil {
		return nil, fmt.Errorf("delta store: a generator is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Schema:   schema,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening delta store: %w", err)
	}
	store := &Store{
		pool:        pool,
		generator:   config.Generator,
		fingerprint: config.Generator.Fingerprint(),
		codec:       config.Codec,
		clock:       config.Clock,
		logger:      logger,
	}
	if store.codec == nil {
		store.codec = chunk.NBT{}
	}
	if store.clock == nil {
		store.clock = clock.Real()
	}
	return store, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Save stores entry as a diff against the generated chunk at coord.
func (s *Store) Save(ctx context.Context, coord region.ChunkCoord, entry *region.Entry) (err error) {
	content, err := chunk.DecodeEntry(s.codec, entry)
	if err != nil {
		return fmt.Errorf("saving %v: %w", coord, err)
	}
	if content.X != coord.X || content.Z != coord.Z {
		return fmt.Errorf("saving %v: %w: entry is for chunk (%d,%d)", coord, region.ErrMalformedEntry, content.X, content.Z)
	}
	baseline, err := s.generator.Generate(ctx, coord)
	if err != nil {
		return fmt.Errorf("%w: baseline for %v: %w", region.ErrGeneration, coord, err)
	}

	diffed, blobs, err := diff(baseline, content)
	if err != nil {
		return fmt.Errorf("saving %v: %w: %w", coord, region.ErrMalformedEntry, err)
	}
	encoded, err := codec.Marshal(diffed)
	if err != nil {
		return fmt.Errorf("saving %v: encoding record: %w", coord, err)
	}

	type preparedBlob struct {
		kind        blobKind
		compression compressionTag
		size        int
		data        []byte
	}
	prepared := make(map[Hash]preparedBlob, len(blobs))
	for hash, b := range blobs {
		tag, compressed, err := compressBlob(b.kind, b.data)
		if err != nil {
			return fmt.Errorf("saving %v: compressing blob %s: %w", coord, hash, err)
		}
		prepared[hash] = preparedBlob{kind: b.kind, compression: tag, size: len(b.data), data: compressed}
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return unavailable(coord, err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return unavailable(coord, err)
	}
	defer endTransaction(&err)

	previous, _, err := s.readRecord(conn, coord)
	if errors.Is(err, region.ErrMalformedEntry) {
		// An unreadable record is replaced; blobs it referenced keep
		// their counts and are never released.
		s.logger.Warn("replacing unreadable chunk diff", "chunk_x", coord.X, "chunk_z", coord.Z, "error", err)
		previous, err = nil, nil
	}
	if err != nil {
		return err
	}

	for _, hash := range diffed.references() {
		b := prepared[hash]
		err = sqlitex.Execute(conn,
			`INSERT INTO blobs (hash, kind, compression, size, data, refs)
			 VALUES (?, ?, ?, ?, ?, 1)
			 ON CONFLICT (hash) DO UPDATE SET refs = refs + 1`,
			&sqlitex.ExecOptions{
				Args: []any{hash[:], int64(b.kind), int64(b.compression), int64(b.size), b.data},
			})
		if err != nil {
			return unavailable(coord, err)
		}
	}
	if previous != nil {
		for _, hash := range previous.references() {
			err = sqlitex.Execute(conn, `UPDATE blobs SET refs = refs - 1 WHERE hash = ?`,
				&sqlitex.ExecOptions{Args: []any{hash[:]}})
			if err != nil {
				return unavailable(coord, err)
			}
		}
		err = sqlitex.Execute(conn, `DELETE FROM blobs WHERE refs <= 0`, nil)
		if err != nil {
			return unavailable(coord, err)
		}
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO deltas (x, z, generator, record, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (x, z) DO UPDATE SET
			generator  = excluded.generator,
			record     = excluded.record,
			updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{int64(coord.X), int64(coord.Z), s.fingerprint[:], encoded, s.clock.Now().Unix()},
		})
	if err != nil {
		return unavailable(coord, err)
	}

	s.logger.Debug("chunk diff saved",
		"chunk_x", coord.X,
		"chunk_z", coord.Z,
		"changed_sections", len(diffed.Sections),
		"blobs", len(prepared),
		"record_bytes", len(encoded),
	)
	return nil
}

// Load rebuilds the chunk at coord from its baseline and stored diff.
func (s *Store) Load(ctx context.Context, coord region.ChunkCoord) (entry *region.Entry, found bool, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, false, unavailable(coord, err)
	}
	defer s.pool.Put(conn)

	// The savepoint holds one read snapshot across the record and its
	// blobs, so a concurrent Save cannot release blobs mid-load.
	release := sqlitex.Save(conn)
	defer release(&err)

	saved, fingerprint, err := s.readRecord(conn, coord)
	if err != nil || saved == nil {
		return nil, false, err
	}
	if !bytes.Equal(fingerprint, s.fingerprint[:]) {
		return nil, false, fmt.Errorf("loading %v: %w: stored against %x, configured generator is %s",
			coord, ErrGeneratorMismatch, fingerprint, s.fingerprint)
	}

	baseline, err := s.generator.Generate(ctx, coord)
	if err != nil {
		return nil, false, fmt.Errorf("%w: baseline for %v: %w", region.ErrGeneration, coord, err)
	}
	content, err := apply(baseline, saved, func(hash Hash) ([]byte, error) {
		return s.readBlob(conn, hash)
	})
	if err != nil {
		return nil, false, fmt.Errorf("loading %v: %w: %w", coord, region.ErrMalformedEntry, err)
	}
	entry, err = chunk.EncodeEntry(s.codec, content)
	if err != nil {
		return nil, false, fmt.Errorf("loading %v: %w", coord, err)
	}
	return entry, true, nil
}

// readRecord returns the stored record and its generator fingerprint,
// or a nil record when coord has none.
func (s *Store) readRecord(conn *sqlite.Conn, coord region.ChunkCoord) (*record, []byte, error) {
	var (
		found       bool
		fingerprint []byte
		encoded     []byte
	)
	err := sqlitex.Execute(conn, `SELECT generator, record FROM deltas WHERE x = ? AND z = ?`,
		&sqlitex.ExecOptions{
			Args: []any{int64(coord.X), int64(coord.Z)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				fingerprint = columnBytes(stmt, 0)
				encoded = columnBytes(stmt, 1)
				return nil
			},
		})
	if err != nil {
		return nil, nil, unavailable(coord, err)
	}
	if !found {
		return nil, nil, nil
	}
	var decoded record
	if err := codec.Unmarshal(encoded, &decoded); err != nil {
		return nil, nil, fmt.Errorf("%v: %w: decoding record: %w", coord, region.ErrMalformedEntry, err)
	}
	if decoded.Format != recordFormat {
		return nil, nil, fmt.Errorf("%v: %w: record format %d, want %d", coord, region.ErrMalformedEntry, decoded.Format, recordFormat)
	}
	return &decoded, fingerprint, nil
}

func (s *Store) readBlob(conn *sqlite.Conn, hash Hash) ([]byte, error) {
	var (
		found       bool
		compression compressionTag
		size        int
		data        []byte
	)
	err := sqlitex.Execute(conn, `SELECT compression, size, data FROM blobs WHERE hash = ?`,
		&sqlitex.ExecOptions{
			Args: []any{hash[:]},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				compression = compressionTag(stmt.ColumnInt(0))
				size = stmt.ColumnInt(1)
				data = columnBytes(stmt, 2)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("%w: reading blob %s: %w", region.ErrStorageUnavailable, hash, err)
	}
	if !found {
		return nil, fmt.Errorf("blob %s is missing", hash)
	}
	decoded, err := decompressBlob(compression, data, size)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", hash, err)
	}
	return decoded, nil
}

// BlobStats reports the number of stored blobs and their total
// compressed size.
func (s *Store) BlobStats(ctx context.Context) (count int, size int64, err error) {
	err = s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT count(*), coalesce(sum(length(data)), 0) FROM blobs`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					count = stmt.ColumnInt(0)
					size = stmt.ColumnInt64(1)
					return nil
				},
			})
	})
	return count, size, err
}

func columnBytes(stmt *sqlite.Stmt, column int) []byte {
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}

func unavailable(coord region.ChunkCoord, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, region.ErrMalformedEntry) {
		return err
	}
	return fmt.Errorf("%w: %v: %w", region.ErrStorageUnavailable, coord, err)
}
