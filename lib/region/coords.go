// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Width is the number of chunks along each axis of a region.
	Width = 32

	// ChunksPerRegion is the number of chunk slots in a region file.
	ChunksPerRegion = Width * Width
)

// RegionPos identifies a region file by its region coordinates.
type RegionPos struct {
	X, Z int32
}

// Filename returns the canonical file name, r.<X>.<Z>.mca.
func (p RegionPos) Filename() string {
	return "r." + strconv.FormatInt(int64(p.X), 10) + "." + strconv.FormatInt(int64(p.Z), 10) + ".mca"
}

func (p RegionPos) String() string {
	return fmt.Sprintf("region(%d,%d)", p.X, p.Z)
}

// Chunk returns the chunk coordinate stored in the given slot index.
// The index must be in [0, ChunksPerRegion).
func (p RegionPos) Chunk(index int) ChunkCoord {
	return ChunkCoord{
		X: p.X*Width + int32(index%Width),
		Z: p.Z*Width + int32(index/Width),
	}
}

// ParseFilename parses a region file name. Only the canonical spelling
// produced by Filename is accepted: "r.01.0.mca" and "r.+1.0.mca" are
// not region files. This keeps the mapping between names and regions
// one-to-one.
func ParseFilename(name string) (RegionPos, bool) {
	body, ok := strings.CutPrefix(name, "r.")
	if !ok {
		return RegionPos{}, false
	}
	body, ok = strings.CutSuffix(body, ".mca")
	if !ok {
		return RegionPos{}, false
	}
	xText, zText, ok := strings.Cut(body, ".")
	if !ok {
		return RegionPos{}, false
	}
	x, ok := parseCanonicalInt32(xText)
	if !ok {
		return RegionPos{}, false
	}
	z, ok := parseCanonicalInt32(zText)
	if !ok {
		return RegionPos{}, false
	}
	return RegionPos{X: x, Z: z}, true
}

func parseCanonicalInt32(text string) (int32, bool) {
	value, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		return 0, false
	}
	if strconv.FormatInt(value, 10) != text {
		return 0, false
	}
	return int32(value), true
}

// ChunkCoord is a chunk position in chunk units: region*32 + local.
type ChunkCoord struct {
	X, Z int32
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("chunk(%d,%d)", c.X, c.Z)
}

// Region returns the region containing the chunk. Arithmetic shift
// floors toward negative infinity, so chunk -1 is in region -1.
func (c ChunkCoord) Region() RegionPos {
	return RegionPos{X: c.X >> 5, Z: c.Z >> 5}
}

// Index returns the chunk's slot index within its region.
func (c ChunkCoord) Index() int {
	return int(c.Z&(Width-1))*Width + int(c.X&(Width-1))
}
