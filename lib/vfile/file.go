// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vfile serves the bytes of one open region file.
//
// A File is a view over chunk entries: bytes [0, 8192) are a header
// synthesized when the file is opened, and every later sector maps to
// a chunk slot through the layout that header describes. The layout
// is computed once per open so the header never disagrees with itself
// while the file is open.
//
// In stateful mode written sectors are kept in a per-file overlay. The
// game server rewrites a chunk by writing its entry to free sectors and
// then pointing the chunk's location word at them, so a location table
// write is the commit point: every slot whose word changed is parsed
// from the overlay and handed to the Source for storage.
package vfile

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/regionfs/lib/region"
)

// Source provides and stores chunk entries. *provider.Provider
// implements it.
type Source interface {
	Chunk(ctx context.Context, coord region.ChunkCoord) (*region.Entry, error)
	Exists(ctx context.Context, coord region.ChunkCoord) (bool, error)
	Store(ctx context.Context, coord region.ChunkCoord, entry *region.Entry) error
}

// DefaultProbeParallelism bounds concurrent Source calls while a file
// is opened.
const DefaultProbeParallelism = 16

// Options configures Open.
type Options struct {
	// Timestamp fills every timestamp word of the header.
	Timestamp uint32

	ProbeParallelism int
	Logger           *slog.Logger
}

// File is one open region file. It is safe for concurrent use; its
// mutex guards only in-memory state and is never held across Source
// calls.
type File struct {
	pos    region.RegionPos
	source Source
	policy Policy
	size   int64
	logger *slog.Logger

	// layout and header are the snapshot taken at open.
	layout *region.Layout
	header []byte

	mu     sync.Mutex
	closed bool

	// overlay holds written sectors by sector index.
	overlay map[int64][]byte

	// committed holds the location words last stored or snapshotted.
	committed [region.ChunksPerRegion]uint32
}

// Open builds the layout for pos and snapshots its header. A fixed
// layout asks the source which chunks exist; a packed layout fetches
// every existing chunk to learn its size.
func Open(ctx context.Context, pos region.RegionPos, source Source, policy Policy, options Options) (*File, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if options.ProbeParallelism <= 0 {
		options.ProbeParallelism = DefaultProbeParallelism
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("region", pos.Filename())

	sizes, err := probe(ctx, pos, source, policy.Layout, options.ProbeParallelism)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", pos.Filename(), err)
	}

	var layout *region.Layout
	if policy.Layout == LayoutPacked {
		layout = region.PackedLayout(func(index int) int { return sizes[index] })
	} else {
		layout = region.FixedLayout(func(index int) bool { return sizes[index] > 0 }, policy.SlotSectors)
	}

	file := &File{
		pos:    pos,
		source: source,
		policy: policy,
		size:   policy.FileSize(),
		logger: logger,
		layout: layout,
		header: layout.Header(options.Timestamp),
	}
	for index := range region.ChunksPerRegion {
		file.committed[index] = binary.BigEndian.Uint32(file.header[index*4:])
	}
	return file, nil
}

// probe returns a positive value for every existing slot: the entry
// size for a packed layout, 1 for a fixed one.
func probe(ctx context.Context, pos region.RegionPos, source Source, kind LayoutKind, parallelism int) ([]int, error) {
	sizes := make([]int, region.ChunksPerRegion)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(parallelism)
	for index := range region.ChunksPerRegion {
		coord := pos.Chunk(index)
		group.Go(func() error {
			if kind == LayoutFixed {
				exists, err := source.Exists(groupCtx, coord)
				if err != nil {
					return fmt.Errorf("chunk %v: %w", coord, err)
				}
				if exists {
					sizes[index] = 1
				}
				return nil
			}
			entry, err := source.Chunk(groupCtx, coord)
			if errors.Is(err, region.ErrChunkAbsent) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("chunk %v: %w", coord, err)
			}
			sizes[index] = entry.Size()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return sizes, nil
}

// Pos returns the region this file serves.
func (f *File) Pos() region.RegionPos { return f.pos }

// Size returns the reported file size.
func (f *File) Size() int64 { return f.size }

// Layout returns the layout snapshot taken at open.
func (f *File) Layout() *region.Layout { return f.layout }

// ReadAt fills dest from offset off. It returns len(dest) bytes unless
// the read reaches the end of the file, in which case it returns the
// available bytes and io.EOF.
func (f *File) ReadAt(ctx context.Context, dest []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("reading %s at %d: %w", f.pos.Filename(), off, region.ErrOutOfBounds)
	}
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if off >= f.size {
		return 0, io.EOF
	}
	want := min(int64(len(dest)), f.size-off)

	var (
		cachedIndex = -1
		cachedEntry *region.Entry
	)
	var total int64
	for total < want {
		position := off + total
		sector := position / region.SectorSize
		within := position % region.SectorSize
		piece := dest[total:min(want, total+region.SectorSize-within)]

		if f.readOverlay(sector, within, piece) {
			total += int64(len(piece))
			continue
		}

		if position < region.HeaderSize {
			copy(piece, f.header[position:])
			total += int64(len(piece))
			continue
		}

		index, ok := f.layout.Find(uint32(sector))
		if !ok {
			clear(piece)
			total += int64(len(piece))
			continue
		}
		if index != cachedIndex {
			entry, err := f.slotEntry(ctx, index)
			if err != nil {
				return int(total), err
			}
			cachedIndex, cachedEntry = index, entry
		}
		slotOffset := position - int64(f.layout.Slot(index).Offset)*region.SectorSize
		copyEntry(piece, cachedEntry, slotOffset)
		total += int64(len(piece))
	}

	if total < int64(len(dest)) {
		return int(total), io.EOF
	}
	return int(total), nil
}

// slotEntry returns the entry behind a slot, or nil when the chunk has
// gone absent since the file was opened.
func (f *File) slotEntry(ctx context.Context, index int) (*region.Entry, error) {
	coord := f.pos.Chunk(index)
	entry, err := f.source.Chunk(ctx, coord)
	if errors.Is(err, region.ErrChunkAbsent) {
		return nil, nil
	}
	if err != nil {
		f.logger.Error("reading chunk failed", "chunk_x", coord.X, "chunk_z", coord.Z, "error", err)
		return nil, fmt.Errorf("reading chunk %v of %s: %w", coord, f.pos.Filename(), err)
	}
	if slot := f.layout.Slot(index); entry.Sectors() > int(slot.Count) {
		f.logger.Error("chunk entry larger than its slot",
			"chunk_x", coord.X, "chunk_z", coord.Z, "entry_sectors", entry.Sectors(), "slot_sectors", slot.Count)
		return nil, fmt.Errorf("chunk %v of %s: %w: entry needs %d sectors, slot has %d",
			coord, f.pos.Filename(), region.ErrMalformedEntry, entry.Sectors(), slot.Count)
	}
	return entry, nil
}

// copyEntry fills piece with entry bytes starting at offset, zero past
// the end of the entry.
func copyEntry(piece []byte, entry *region.Entry, offset int64) {
	var copied int
	if entry != nil && offset < int64(entry.Size()) {
		copied = copy(piece, entry.Bytes()[offset:])
	}
	clear(piece[copied:])
}

func (f *File) readOverlay(sector, within int64, piece []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.overlay[sector]
	if ok {
		copy(piece, data[within:])
	}
	return ok
}

// WriteAt accepts data at off. Writes outside the file fail with
// region.ErrOutOfBounds. Stateless files acknowledge and discard the
// bytes; stateful files keep them and store any chunk whose location
// word the write changes.
func (f *File) WriteAt(ctx context.Context, data []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(data)) > f.size {
		return 0, fmt.Errorf("writing %d bytes to %s at %d: %w", len(data), f.pos.Filename(), off, region.ErrOutOfBounds)
	}
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if f.policy.Writes == WritesStateless || len(data) == 0 {
		return len(data), nil
	}

	first := off / region.SectorSize
	last := (off + int64(len(data)) - 1) / region.SectorSize

	// Sectors the write only partly covers need their current bytes.
	// They are read before taking the lock.
	base := make(map[int64][]byte)
	for _, sector := range []int64{first, last} {
		start := sector * region.SectorSize
		end := start + region.SectorSize
		if off <= start && off+int64(len(data)) >= end {
			continue
		}
		if _, ok := base[sector]; ok || f.hasOverlay(sector) {
			continue
		}
		buffer := make([]byte, region.SectorSize)
		if _, err := f.ReadAt(ctx, buffer, start); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		base[sector] = buffer
	}

	changed := f.applyWrite(data, off, first, last, base)
	if err := f.commit(ctx, changed); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (f *File) hasOverlay(sector int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.overlay[sector]
	return ok
}

// applyWrite copies data into the overlay and returns the slots whose
// location word now differs from the committed one. Those slots are
// marked committed before the lock is released so concurrent writers
// do not store the same chunk twice.
func (f *File) applyWrite(data []byte, off, first, last int64, base map[int64][]byte) map[int]uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overlay == nil {
		f.overlay = make(map[int64][]byte)
	}
	for sector := first; sector <= last; sector++ {
		buffer, ok := f.overlay[sector]
		if !ok {
			buffer = base[sector]
			if buffer == nil {
				buffer = make([]byte, region.SectorSize)
			}
			f.overlay[sector] = buffer
		}
		start := sector * region.SectorSize
		from := max(off, start)
		to := min(off+int64(len(data)), start+region.SectorSize)
		copy(buffer[from-start:to-start], data[from-off:to-off])
	}

	if first != 0 {
		return nil
	}
	locations := f.overlay[0]
	changed := make(map[int]uint32)
	for index := range region.ChunksPerRegion {
		word := binary.BigEndian.Uint32(locations[index*4:])
		if word == f.committed[index] {
			continue
		}
		previous := f.committed[index]
		f.committed[index] = word
		if word != 0 {
			changed[index] = previous
		}
	}
	return changed
}

// commit stores every slot in changed. A slot that fails to store gets
// its previous committed word back so the next header write retries.
func (f *File) commit(ctx context.Context, changed map[int]uint32) error {
	var errs []error
	for index, previous := range changed {
		coord := f.pos.Chunk(index)
		err := f.commitSlot(ctx, index)
		if err == nil {
			f.logger.Debug("stored chunk", "chunk_x", coord.X, "chunk_z", coord.Z)
			continue
		}
		f.logger.Error("storing chunk failed", "chunk_x", coord.X, "chunk_z", coord.Z, "error", err)
		f.mu.Lock()
		f.committed[index] = previous
		f.mu.Unlock()
		errs = append(errs, fmt.Errorf("chunk %v: %w", coord, err))
	}
	return errors.Join(errs...)
}

func (f *File) commitSlot(ctx context.Context, index int) error {
	f.mu.Lock()
	word := f.committed[index]
	f.mu.Unlock()

	offset := int64(word>>8) * region.SectorSize
	length := int64(word&0xFF) * region.SectorSize
	if offset < region.HeaderSize || offset+length > f.size {
		return fmt.Errorf("%w: location word %#08x points outside the file", region.ErrMalformedEntry, word)
	}
	framed := make([]byte, length)
	if _, err := f.ReadAt(ctx, framed, offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	entry, err := region.ParseEntry(framed)
	if err != nil {
		return err
	}
	return f.source.Store(ctx, f.pos.Chunk(index), entry)
}

func (f *File) checkOpen() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("%s: %w", f.pos.Filename(), os.ErrClosed)
	}
	return nil
}

// Close releases the overlay. It is idempotent.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.overlay = nil
	return nil
}
