// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package inode maps filesystem paths to stable 64-bit handles and
// back.
//
// Region files get arithmetic handles: bit 63 is set and the low bits
// interleave the zigzag-encoded region X and Z, so any region in the
// representable range has a handle without consulting a table and two
// distinct regions can never collide. Every other path is a generic
// file: bit 62 is set and the low bits hold a counter assigned on first
// sight, remembered for the life of the process.
//
// The root directory is handle 1. Region and generic handles both have
// a high bit set, so neither can be 1.
package inode

import (
	"path"
	"sort"
	"sync"

	"github.com/bureau-foundation/regionfs/lib/region"
)

// Handle is a filesystem inode number.
type Handle uint64

const (
	// Root is the handle of the mount's root directory.
	Root Handle = 1

	regionBit  Handle = 1 << 63
	genericBit Handle = 1 << 62

	// axisBits is the width of one zigzag-encoded axis.
	axisBits = 27
)

// Regions beyond this range would place chunk coordinates outside the
// 32-bit range stored in chunk data, so they are not served as
// regions.
const (
	MinRegionCoord = -(1 << (axisBits - 1))
	MaxRegionCoord = 1<<(axisBits-1) - 1
)

// Kind distinguishes region files from everything else.
type Kind int

const (
	Generic Kind = iota
	Region
)

func (k Kind) String() string {
	if k == Region {
		return "region"
	}
	return "generic"
}

// Identity is what a path or handle refers to.
type Identity struct {
	Kind Kind

	// Region is set when Kind is Region.
	Region region.RegionPos

	// Path is the path as looked up, set when Kind is Generic.
	Path string
}

// Representable reports whether pos has a region handle.
func Representable(pos region.RegionPos) bool {
	return pos.X >= MinRegionCoord && pos.X <= MaxRegionCoord &&
		pos.Z >= MinRegionCoord && pos.Z <= MaxRegionCoord
}

// Mapper resolves paths and assigns handles. The zero value is not
// usable; call New.
type Mapper struct {
	mu       sync.RWMutex
	byPath   map[string]Handle
	byHandle map[Handle]string
	next     uint64
}

// New returns an empty Mapper.
func New() *Mapper {
	return &Mapper{
		byPath:   make(map[string]Handle),
		byHandle: make(map[Handle]string),
		next:     1,
	}
}

// Resolve classifies a path. The base name decides: a canonical
// r.<X>.<Z>.mca inside the representable range is a region, anything
// else is generic. Resolve never fails.
func (m *Mapper) Resolve(name string) Identity {
	if pos, ok := region.ParseFilename(path.Base(name)); ok && Representable(pos) {
		return Identity{Kind: Region, Region: pos}
	}
	return Identity{Kind: Generic, Path: name}
}

// HandleOf returns the handle for an identity, allocating one for a
// generic path seen for the first time.
func (m *Mapper) HandleOf(identity Identity) Handle {
	if identity.Kind == Region {
		return regionBit | Handle(interleave(zigzag(identity.Region.X), zigzag(identity.Region.Z)))
	}

	m.mu.RLock()
	handle, ok := m.byPath[identity.Path]
	m.mu.RUnlock()
	if ok {
		return handle
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if handle, ok := m.byPath[identity.Path]; ok {
		return handle
	}
	handle = genericBit | Handle(m.next)
	m.next++
	m.byPath[identity.Path] = handle
	m.byHandle[handle] = identity.Path
	return handle
}

// IdentityOf inverts HandleOf. It reports false for the root, for
// generic handles never issued (or forgotten), and for malformed
// handles.
func (m *Mapper) IdentityOf(handle Handle) (Identity, bool) {
	switch {
	case handle&regionBit != 0:
		bits := uint64(handle &^ regionBit)
		if bits>>(2*axisBits) != 0 {
			return Identity{}, false
		}
		x, z := deinterleave(bits)
		return Identity{Kind: Region, Region: region.RegionPos{X: unzigzag(x), Z: unzigzag(z)}}, true
	case handle&genericBit != 0:
		m.mu.RLock()
		defer m.mu.RUnlock()
		name, ok := m.byHandle[handle]
		if !ok {
			return Identity{}, false
		}
		return Identity{Kind: Generic, Path: name}, true
	}
	return Identity{}, false
}

// Forget drops a generic path. Its handle is never reissued.
func (m *Mapper) Forget(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if handle, ok := m.byPath[name]; ok {
		delete(m.byPath, name)
		delete(m.byHandle, handle)
	}
}

// GenericPaths returns the known generic paths in sorted order.
func (m *Mapper) GenericPaths() []string {
	m.mu.RLock()
	paths := make([]string, 0, len(m.byPath))
	for name := range m.byPath {
		paths = append(paths, name)
	}
	m.mu.RUnlock()
	sort.Strings(paths)
	return paths
}

func zigzag(v int32) uint32 {
	return uint32(v<<1) ^ uint32(v>>31)
}

func unzigzag(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}

// interleave places the bits of x at even positions and z at odd
// positions.
func interleave(x, z uint32) uint64 {
	return spread(x) | spread(z)<<1
}

func deinterleave(bits uint64) (x, z uint32) {
	return compact(bits), compact(bits >> 1)
}

func spread(v uint32) uint64 {
	x := uint64(v)
	x = (x | x<<16) & 0x0000FFFF0000FFFF
	x = (x | x<<8) & 0x00FF00FF00FF00FF
	x = (x | x<<4) & 0x0F0F0F0F0F0F0F0F
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return x
}

func compact(x uint64) uint32 {
	x &= 0x5555555555555555
	x = (x | x>>1) & 0x3333333333333333
	x = (x | x>>2) & 0x0F0F0F0F0F0F0F0F
	x = (x | x>>4) & 0x00FF00FF00FF00FF
	x = (x | x>>8) & 0x0000FFFF0000FFFF
	x = (x | x>>16) & 0x00000000FFFFFFFF
	return uint32(x)
}
