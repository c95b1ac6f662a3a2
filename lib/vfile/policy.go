// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfile

import (
	"fmt"

	"github.com/bureau-foundation/regionfs/lib/region"
)

// LayoutKind selects how sectors are assigned to chunk slots.
type LayoutKind int

const (
	// LayoutFixed gives every existing chunk the same sector budget.
	// Opening a file only asks whether chunks exist.
	LayoutFixed LayoutKind = iota

	// LayoutPacked sizes each slot to its entry. Opening a file
	// materializes every existing chunk in the region.
	LayoutPacked
)

func (k LayoutKind) String() string {
	switch k {
	case LayoutFixed:
		return "fixed"
	case LayoutPacked:
		return "packed"
	default:
		return fmt.Sprintf("layout(%d)", int(k))
	}
}

// ParseLayoutKind parses "fixed" or "packed".
func ParseLayoutKind(text string) (LayoutKind, error) {
	switch text {
	case "fixed", "":
		return LayoutFixed, nil
	case "packed":
		return LayoutPacked, nil
	default:
		return 0, fmt.Errorf("unknown region layout %q (want fixed or packed)", text)
	}
}

// WriteMode selects what happens to bytes written to a region file.
type WriteMode int

const (
	// WritesStateless acknowledges writes and discards them.
	WritesStateless WriteMode = iota

	// WritesStateful keeps written sectors for the open handle and
	// stores a chunk when the location table is rewritten to point
	// at it.
	WritesStateful
)

func (m WriteMode) String() string {
	switch m {
	case WritesStateless:
		return "stateless"
	case WritesStateful:
		return "stateful"
	default:
		return fmt.Sprintf("writes(%d)", int(m))
	}
}

// ParseWriteMode parses "stateless" or "stateful".
func ParseWriteMode(text string) (WriteMode, error) {
	switch text {
	case "stateless", "":
		return WritesStateless, nil
	case "stateful":
		return WritesStateful, nil
	default:
		return 0, fmt.Errorf("unknown write mode %q (want stateless or stateful)", text)
	}
}

// writeHeadroom is the extra sectors a stateful file reports so the
// server can append a rewritten chunk past the last slot.
const writeHeadroom = 2 * region.MaxEntrySectors

// Policy is the per-mount choice of layout and write handling. It is
// fixed for the life of an open File.
type Policy struct {
	Layout      LayoutKind
	SlotSectors int
	Writes      WriteMode
}

// DefaultPolicy is a fixed layout with the default slot budget and
// stateless writes.
func DefaultPolicy() Policy {
	return Policy{Layout: LayoutFixed, SlotSectors: region.DefaultSlotSectors, Writes: WritesStateless}
}

// Validate rejects slot budgets the header cannot express.
func (p Policy) Validate() error {
	if p.Layout == LayoutFixed && (p.SlotSectors < 1 || p.SlotSectors > region.MaxEntrySectors) {
		return fmt.Errorf("slot sectors %d out of range [1, %d]", p.SlotSectors, region.MaxEntrySectors)
	}
	if p.Layout != LayoutFixed && p.Layout != LayoutPacked {
		return fmt.Errorf("unknown layout %s", p.Layout)
	}
	if p.Writes != WritesStateless && p.Writes != WritesStateful {
		return fmt.Errorf("unknown write mode %s", p.Writes)
	}
	return nil
}

// ZoneSectors is the number of sectors after the header that a file
// reports, independent of which chunks exist. A constant size keeps
// attributes stable without probing the region.
func (p Policy) ZoneSectors() int64 {
	var zone int64
	if p.Layout == LayoutPacked {
		zone = region.ChunksPerRegion * region.MaxEntrySectors
	} else {
		zone = region.ChunksPerRegion * int64(p.SlotSectors)
	}
	if p.Writes == WritesStateful {
		zone += writeHeadroom
	}
	return zone
}

// FileSize is the reported size of every region file.
func (p Policy) FileSize() int64 {
	return region.HeaderSize + p.ZoneSectors()*region.SectorSize
}
