// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitestore is a chunk storage backend that keeps framed
// entries verbatim in a SQLite table, one row per chunk coordinate.
package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/regionfs/lib/clock"
	"github.com/bureau-foundation/regionfs/lib/region"
	"github.com/bureau-foundation/regionfs/lib/sqlitepool"
	"github.com/bureau-foundation/regionfs/lib/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	x           INTEGER NOT NULL,
	z           INTEGER NOT NULL,
	compression INTEGER NOT NULL,
	payload     BLOB    NOT NULL,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (x, z)
) WITHOUT ROWID;
`

// Config configures a Store.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// PoolSize is passed to sqlitepool.
	PoolSize int

	// Clock stamps updated_at. Defaults to clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

// Store is a storage.Backend over SQLite.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

var _ storage.Backend = (*Store)(nil)

// Open opens (creating if needed) the database at config.Path.
func Open(config Config) (*Store, error) {
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
		return nil, fmt.Errorf("opening chunk store: %w", err)
	}
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	return &Store{pool: pool, clock: c, logger: logger}, nil
}

// Load returns the stored entry for coord.
func (s *Store) Load(ctx context.Context, coord region.ChunkCoord) (*region.Entry, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, false, unavailable(coord, err)
	}
	defer s.pool.Put(conn)

	var (
		found       bool
		compression region.Compression
		payload     []byte
	)
	err = sqlitex.Execute(conn,
		`SELECT compression, payload FROM chunks WHERE x = ? AND z = ?`,
		&sqlitex.ExecOptions{
			Args: []any{int64(coord.X), int64(coord.Z)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				compression = region.Compression(stmt.ColumnInt(0))
				payload = make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, payload)
				return nil
			},
		})
	if err != nil {
		return nil, false, unavailable(coord, err)
	}
	if !found {
		return nil, false, nil
	}
	entry, err := region.NewEntry(compression, payload)
	if err != nil {
		return nil, false, fmt.Errorf("stored %v: %w", coord, err)
	}
	return entry, true, nil
}

// Save upserts the entry for coord.
func (s *Store) Save(ctx context.Context, coord region.ChunkCoord, entry *region.Entry) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return unavailable(coord, err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO chunks (x, z, compression, payload, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (x, z) DO UPDATE SET
			compression = excluded.compression,
			payload     = excluded.payload,
			updated_at  = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{int64(coord.X), int64(coord.Z), int64(entry.Compression()), entry.Payload(), s.clock.Now().Unix()},
		})
	if err != nil {
		return unavailable(coord, err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT count(*) FROM chunks`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	})
	return count, err
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func unavailable(coord region.ChunkCoord, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v: %w", region.ErrStorageUnavailable, coord, err)
}
