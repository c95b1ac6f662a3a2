// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// DefaultSlotSectors is the fixed per-chunk budget: 256 KiB.
const DefaultSlotSectors = 64

// firstChunkSector is the first sector after the header.
const firstChunkSector = HeaderSize / SectorSize

// Slot is one location word: sector offset and sector count. A zero
// Slot marks an absent chunk.
type Slot struct {
	Offset uint32
	Count  uint8
}

// Present reports whether the slot holds a chunk.
func (s Slot) Present() bool { return s.Offset != 0 && s.Count != 0 }

// End returns the sector just past the slot.
func (s Slot) End() uint32 { return s.Offset + uint32(s.Count) }

func (s Slot) word() uint32 { return s.Offset<<8 | uint32(s.Count) }

func slotFromWord(word uint32) Slot {
	return Slot{Offset: word >> 8, Count: uint8(word)}
}

// Layout assigns sectors to chunk slots for one open region file.
type Layout struct {
	slots [ChunksPerRegion]Slot

	// order lists present slot indices by ascending offset, for
	// reverse lookup from sector to slot.
	order []int

	end uint32
}

// FixedLayout gives every existing slot slotSectors sectors, assigned
// in slot index order starting at sector 2. The budget is clamped to
// [1, MaxEntrySectors].
func FixedLayout(exists func(index int) bool, slotSectors int) *Layout {
	slotSectors = min(max(slotSectors, 1), MaxEntrySectors)
	layout := &Layout{end: firstChunkSector}
	for index := range ChunksPerRegion {
		if !exists(index) {
			continue
		}
		layout.assign(index, uint8(slotSectors))
	}
	return layout
}

// PackedLayout sizes each slot to hold size(index) bytes. A size of
// zero marks the slot absent. Sizes above MaxEntrySectors sectors are
// clamped; callers reject such entries before they reach a layout.
func PackedLayout(size func(index int) int) *Layout {
	layout := &Layout{end: firstChunkSector}
	for index := range ChunksPerRegion {
		bytes := size(index)
		if bytes <= 0 {
			continue
		}
		layout.assign(index, uint8(min(SectorsFor(bytes), MaxEntrySectors)))
	}
	return layout
}

func (l *Layout) assign(index int, count uint8) {
	l.slots[index] = Slot{Offset: l.end, Count: count}
	l.order = append(l.order, index)
	l.end += uint32(count)
}

// Slot returns the location of a slot index.
func (l *Layout) Slot(index int) Slot { return l.slots[index] }

// EndSector returns the sector just past the last assigned slot.
func (l *Layout) EndSector() uint32 { return l.end }

// Find returns the slot index whose sectors contain sector.
func (l *Layout) Find(sector uint32) (int, bool) {
	position := sort.Search(len(l.order), func(i int) bool {
		return l.slots[l.order[i]].Offset > sector
	}) - 1
	if position < 0 {
		return -1, false
	}
	index := l.order[position]
	if sector >= l.slots[index].End() {
		return -1, false
	}
	return index, true
}

// NextStart returns the first assigned sector at or after sector.
func (l *Layout) NextStart(sector uint32) (uint32, bool) {
	position := sort.Search(len(l.order), func(i int) bool {
		return l.slots[l.order[i]].Offset >= sector
	})
	if position == len(l.order) {
		return 0, false
	}
	return l.slots[l.order[position]].Offset, true
}

// Header synthesizes the 8 KiB header. Every present slot gets the
// same timestamp.
func (l *Layout) Header(timestamp uint32) []byte {
	header := make([]byte, HeaderSize)
	for index, slot := range l.slots {
		if !slot.Present() {
			continue
		}
		binary.BigEndian.PutUint32(header[index*4:], slot.word())
		binary.BigEndian.PutUint32(header[SectorSize+index*4:], timestamp)
	}
	return header
}

// Header is a parsed region header.
type Header struct {
	Slots      [ChunksPerRegion]Slot
	Timestamps [ChunksPerRegion]uint32
}

// ParseHeader decodes the first HeaderSize bytes of data.
func ParseHeader(data []byte) (Header, error) {
	var header Header
	if len(data) < HeaderSize {
		return header, fmt.Errorf("region header: need %d bytes, have %d", HeaderSize, len(data))
	}
	for index := range ChunksPerRegion {
		header.Slots[index] = slotFromWord(binary.BigEndian.Uint32(data[index*4:]))
		header.Timestamps[index] = binary.BigEndian.Uint32(data[SectorSize+index*4:])
	}
	return header, nil
}

// Validate checks that present slots start after the header, have a
// non-zero count, and do not overlap.
func (h Header) Validate() error {
	var present []int
	for index, slot := range h.Slots {
		if slot.word() == 0 {
			continue
		}
		if slot.Count == 0 {
			return fmt.Errorf("slot %d: zero sector count at offset %d", index, slot.Offset)
		}
		if slot.Offset < firstChunkSector {
			return fmt.Errorf("slot %d: offset %d overlaps the header", index, slot.Offset)
		}
		present = append(present, index)
	}
	sort.Slice(present, func(a, b int) bool {
		return h.Slots[present[a]].Offset < h.Slots[present[b]].Offset
	})
	for i := 1; i < len(present); i++ {
		previous, current := h.Slots[present[i-1]], h.Slots[present[i]]
		if current.Offset < previous.End() {
			return fmt.Errorf("slot %d at sector %d overlaps slot %d ending at sector %d",
				present[i], current.Offset, present[i-1], previous.End())
		}
	}
	return nil
}
