// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"fmt"
	"math/bits"
)

// minBlockBits is the smallest index width for block states.
const minBlockBits = 4

// indexBits returns the width needed to index a palette of n entries.
// A single-entry palette needs no bits.
func indexBits(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// BlockBits returns the packed index width for a block palette.
func BlockBits(paletteSize int) int {
	if paletteSize <= 1 {
		return 0
	}
	return max(minBlockBits, indexBits(paletteSize))
}

// BiomeBits returns the packed index width for a biome palette.
func BiomeBits(paletteSize int) int {
	return indexBits(paletteSize)
}

// PackedLength returns the number of words holding count indices of
// the given width.
func PackedLength(width, count int) int {
	if width == 0 {
		return 0
	}
	perWord := 64 / width
	return (count + perWord - 1) / perWord
}

// Pack stores indices at the given width. Entries never span words.
func Pack(indices []int, width int) []int64 {
	if width == 0 {
		return nil
	}
	perWord := 64 / width
	words := make([]uint64, PackedLength(width, len(indices)))
	for i, value := range indices {
		words[i/perWord] |= uint64(value) << ((i % perWord) * width)
	}
	data := make([]int64, len(words))
	for i, word := range words {
		data[i] = int64(word)
	}
	return data
}

// Unpack reads count indices of the given width. Every index must be
// below paletteSize.
func Unpack(data []int64, width, count, paletteSize int) ([]int, error) {
	indices := make([]int, count)
	if width == 0 {
		return indices, nil
	}
	if want := PackedLength(width, count); len(data) < want {
		return nil, fmt.Errorf("packed data has %d words, need %d for %d entries of %d bits", len(data), want, count, width)
	}
	perWord := 64 / width
	mask := uint64(1)<<width - 1
	for i := range indices {
		value := int(uint64(data[i/perWord]) >> ((i % perWord) * width) & mask)
		if value >= paletteSize {
			return nil, fmt.Errorf("index %d at position %d exceeds palette of %d", value, i, paletteSize)
		}
		indices[i] = value
	}
	return indices, nil
}

// NewBlockStates builds a paletted container from SectionVolume states
// in YZX order. The palette lists states in first-seen order.
func NewBlockStates(states []BlockState) BlockStates {
	var (
		palette []BlockState
		lookup  = make(map[string]int)
		indices = make([]int, len(states))
	)
	for i, state := range states {
		key := state.Key()
		index, ok := lookup[key]
		if !ok {
			index = len(palette)
			lookup[key] = index
			palette = append(palette, state)
		}
		indices[i] = index
	}
	return BlockStates{Palette: palette, Data: Pack(indices, BlockBits(len(palette)))}
}

// Expand returns all SectionVolume block states in YZX order.
func (b BlockStates) Expand() ([]BlockState, error) {
	if len(b.Palette) == 0 {
		return nil, fmt.Errorf("block state palette is empty")
	}
	indices, err := Unpack(b.Data, BlockBits(len(b.Palette)), SectionVolume, len(b.Palette))
	if err != nil {
		return nil, fmt.Errorf("block states: %w", err)
	}
	states := make([]BlockState, SectionVolume)
	for i, index := range indices {
		states[i] = b.Palette[index]
	}
	return states, nil
}

// UniformBiomes returns a biome container holding one biome.
func UniformBiomes(name string) Biomes {
	return Biomes{Palette: []string{name}}
}

// NewBiomes builds a biome container from BiomeVolume names.
func NewBiomes(names []string) Biomes {
	var (
		palette []string
		lookup  = make(map[string]int)
		indices = make([]int, len(names))
	)
	for i, name := range names {
		index, ok := lookup[name]
		if !ok {
			index = len(palette)
			lookup[name] = index
			palette = append(palette, name)
		}
		indices[i] = index
	}
	return Biomes{Palette: palette, Data: Pack(indices, BiomeBits(len(palette)))}
}

// Expand returns all BiomeVolume biome names.
func (b Biomes) Expand() ([]string, error) {
	if len(b.Palette) == 0 {
		return nil, fmt.Errorf("biome palette is empty")
	}
	indices, err := Unpack(b.Data, BiomeBits(len(b.Palette)), BiomeVolume, len(b.Palette))
	if err != nil {
		return nil, fmt.Errorf("biomes: %w", err)
	}
	names := make([]string, BiomeVolume)
	for i, index := range indices {
		names[i] = b.Palette[index]
	}
	return names, nil
}
