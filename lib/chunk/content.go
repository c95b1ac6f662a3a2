// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Tnze/go-mc/nbt"
)

const (
	// DefaultDataVersion is the data version stamped on generated
	// chunks unless configured otherwise.
	DefaultDataVersion = 4671

	MinSectionY  = -4
	MaxSectionY  = 19
	SectionCount = MaxSectionY - MinSectionY + 1

	// MinY is the lowest block Y of the world.
	MinY = MinSectionY * 16
	// Height is the number of block layers.
	Height = SectionCount * 16

	SectionVolume  = 16 * 16 * 16
	BiomeVolume    = 4 * 4 * 4
	LightArraySize = SectionVolume / 2

	StatusFull = "minecraft:full"

	Air    = "minecraft:air"
	Plains = "minecraft:plains"
)

// Content is the decoded NBT of one chunk.
type Content struct {
	DataVersion   int32            `nbt:"DataVersion"`
	X             int32            `nbt:"xPos"`
	Z             int32            `nbt:"zPos"`
	Y             int32            `nbt:"yPos"`
	Status        string           `nbt:"Status"`
	LastUpdate    int64            `nbt:"LastUpdate"`
	InhabitedTime int64            `nbt:"InhabitedTime"`
	LightOn       bool             `nbt:"isLightOn"`
	Heightmaps    Heightmaps       `nbt:"Heightmaps"`
	Sections      []Section        `nbt:"sections"`
	BlockEntities BlockEntities    `nbt:"block_entities"`
}

// BlockEntities holds the chunk's block entity compounds verbatim.
type BlockEntities []nbt.RawMessage

// Heightmaps holds the packed column heights the server keeps per
// chunk. Each is 256 entries of 9 bits.
type Heightmaps struct {
	MotionBlocking         []int64 `nbt:"MOTION_BLOCKING,omitempty"`
	MotionBlockingNoLeaves []int64 `nbt:"MOTION_BLOCKING_NO_LEAVES,omitempty"`
	OceanFloor             []int64 `nbt:"OCEAN_FLOOR,omitempty"`
	WorldSurface           []int64 `nbt:"WORLD_SURFACE,omitempty"`
}

// Section is one 16×16×16 cube.
type Section struct {
	Y           int8        `nbt:"Y"`
	BlockStates BlockStates `nbt:"block_states"`
	Biomes      Biomes      `nbt:"biomes"`
	BlockLight  []byte      `nbt:"BlockLight,omitempty"`
	SkyLight    []byte      `nbt:"SkyLight,omitempty"`
}

// BlockStates is a paletted container of block states in YZX order.
type BlockStates struct {
	Palette []BlockState `nbt:"palette"`
	Data    []int64      `nbt:"data,omitempty"`
}

// Biomes is a paletted container of 4×4×4 biome cells.
type Biomes struct {
	Palette []string `nbt:"palette"`
	Data    []int64  `nbt:"data,omitempty"`
}

// BlockState is a block name with optional properties.
type BlockState struct {
	Name       string     `nbt:"Name"`
	Properties Properties `nbt:"Properties,omitempty"`
}

// State returns a property-less block state, adding the minecraft
// namespace when name has none.
func State(name string) BlockState {
	if !strings.Contains(name, ":") {
		name = "minecraft:" + name
	}
	return BlockState{Name: name}
}

// IsAir reports whether the state is one of the air blocks.
func (s BlockState) IsAir() bool {
	switch s.Name {
	case Air, "minecraft:cave_air", "minecraft:void_air":
		return true
	}
	return false
}

// Key returns a canonical string for the state: the name followed by
// sorted properties in brackets. Equal states have equal keys.
func (s BlockState) Key() string {
	if len(s.Properties) == 0 {
		return s.Name
	}
	var builder strings.Builder
	builder.WriteString(s.Name)
	builder.WriteByte('[')
	for i, key := range s.Properties.keys() {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(s.Properties[key])
	}
	builder.WriteByte(']')
	return builder.String()
}

// Properties are block state properties such as facing=north.
type Properties map[string]string

func (p Properties) keys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Section returns the section with the given Y, or nil.
func (c *Content) Section(y int8) *Section {
	for i := range c.Sections {
		if c.Sections[i].Y == y {
			return &c.Sections[i]
		}
	}
	return nil
}

// BlockAt returns the block at local x, z (0..15) and world y.
// Missing sections read as air.
func (c *Content) BlockAt(x, y, z int) (BlockState, error) {
	if x < 0 || x > 15 || z < 0 || z > 15 || y < MinY || y >= MinY+Height {
		return BlockState{}, fmt.Errorf("block position (%d,%d,%d) outside the chunk", x, y, z)
	}
	section := c.Section(int8(floorDiv(y, 16)))
	if section == nil {
		return State(Air), nil
	}
	states, err := section.BlockStates.Expand()
	if err != nil {
		return BlockState{}, fmt.Errorf("section %d: %w", section.Y, err)
	}
	return states[BlockIndex(x, y&15, z)], nil
}

// BlockIndex returns the YZX index of a section-local position.
func BlockIndex(x, y, z int) int {
	return (y*16+z)*16 + x
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
