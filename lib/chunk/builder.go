// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

// heightmapBits is the width of one heightmap entry: heights range
// over 0..Height inclusive.
const heightmapBits = 9

// Builder assembles a complete chunk from block placements. Every
// section, light array, and heightmap is filled in by Build, so the
// result is a full chunk the server can load without relighting.
type Builder struct {
	x, z        int32
	dataVersion int32
	biome       string

	palette []BlockState
	lookup  map[string]uint16
	// blocks holds a palette index per block, YZX order over the
	// whole column, starting at MinY. Index 0 is air.
	blocks []uint16
}

// NewBuilder returns a builder for chunk (x, z) filled with air.
func NewBuilder(x, z, dataVersion int32) *Builder {
	air := State(Air)
	return &Builder{
		x:           x,
		z:           z,
		dataVersion: dataVersion,
		biome:       Plains,
		palette:     []BlockState{air},
		lookup:      map[string]uint16{air.Key(): 0},
		blocks:      make([]uint16, Height*16*16),
	}
}

// SetBiome sets the single biome of every section.
func (b *Builder) SetBiome(name string) {
	b.biome = name
}

func (b *Builder) paletteIndex(state BlockState) uint16 {
	key := state.Key()
	if index, ok := b.lookup[key]; ok {
		return index
	}
	index := uint16(len(b.palette))
	b.palette = append(b.palette, state)
	b.lookup[key] = index
	return index
}

func columnIndex(x, y, z int) int {
	return ((y-MinY)*16+z)*16 + x
}

// SetBlock places a block at local x, z (0..15) and world y.
// Positions outside the chunk are ignored.
func (b *Builder) SetBlock(x, y, z int, state BlockState) {
	if x < 0 || x > 15 || z < 0 || z > 15 || y < MinY || y >= MinY+Height {
		return
	}
	b.blocks[columnIndex(x, y, z)] = b.paletteIndex(state)
}

// FillLayer sets every block at world y.
func (b *Builder) FillLayer(y int, state BlockState) {
	if y < MinY || y >= MinY+Height {
		return
	}
	index := b.paletteIndex(state)
	start := columnIndex(0, y, 0)
	for i := start; i < start+256; i++ {
		b.blocks[i] = index
	}
}

// FillColumn sets blocks from world y bottom up to, but not including,
// top at local x, z.
func (b *Builder) FillColumn(x, z, bottom, top int, state BlockState) {
	for y := max(bottom, MinY); y < min(top, MinY+Height); y++ {
		b.SetBlock(x, y, z, state)
	}
}

// Build produces the chunk content.
func (b *Builder) Build() *Content {
	surfaces := b.surfaces()

	content := &Content{
		DataVersion:   b.dataVersion,
		X:             b.x,
		Z:             b.z,
		Y:             MinSectionY,
		Status:        StatusFull,
		LightOn:       true,
		Sections:      make([]Section, 0, SectionCount),
		BlockEntities: BlockEntities{},
	}

	heights := make([]int, 256)
	for i, surface := range surfaces {
		heights[i] = surface - MinY + 1
	}
	packedHeights := Pack(heights, heightmapBits)
	content.Heightmaps = Heightmaps{
		MotionBlocking:         packedHeights,
		MotionBlockingNoLeaves: append([]int64(nil), packedHeights...),
		OceanFloor:             append([]int64(nil), packedHeights...),
		WorldSurface:           append([]int64(nil), packedHeights...),
	}

	states := make([]BlockState, SectionVolume)
	for sectionY := MinSectionY; sectionY <= MaxSectionY; sectionY++ {
		base := columnIndex(0, sectionY*16, 0)
		for i := range states {
			states[i] = b.palette[b.blocks[base+i]]
		}
		content.Sections = append(content.Sections, Section{
			Y:           int8(sectionY),
			BlockStates: NewBlockStates(states),
			Biomes:      UniformBiomes(b.biome),
			BlockLight:  make([]byte, LightArraySize),
			SkyLight:    skyLight(sectionY, surfaces),
		})
	}
	return content
}

// surfaces returns, per column in z*16+x order, the world y of the
// highest non-air block, or MinY-1 for an empty column.
func (b *Builder) surfaces() []int {
	surfaces := make([]int, 256)
	for z := range 16 {
		for x := range 16 {
			surface := MinY - 1
			for y := MinY + Height - 1; y >= MinY; y-- {
				if !b.palette[b.blocks[columnIndex(x, y, z)]].IsAir() {
					surface = y
					break
				}
			}
			surfaces[z*16+x] = surface
		}
	}
	return surfaces
}

// skyLight returns the nibble array for one section: full light above
// each column's surface, dark at and below it.
func skyLight(sectionY int, surfaces []int) []byte {
	light := make([]byte, LightArraySize)
	for y := range 16 {
		worldY := sectionY*16 + y
		for z := range 16 {
			for x := range 16 {
				if worldY <= surfaces[z*16+x] {
					continue
				}
				index := BlockIndex(x, y, z)
				if index%2 == 0 {
					light[index/2] |= 0x0F
				} else {
					light[index/2] |= 0xF0
				}
			}
		}
	}
	return light
}
