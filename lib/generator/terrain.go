// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package generator

import (
	"context"

	"github.com/bureau-foundation/regionfs/lib/chunk"
	"github.com/bureau-foundation/regionfs/lib/region"
)

const (
	terrainVersion = 1

	// seaLevel is the mean surface height.
	seaLevel = 64
	// amplitude bounds the surface deviation from seaLevel.
	amplitude = 10
	// cellSize is the spacing of the height lattice in blocks.
	cellSize = 32
	// dirtDepth is the number of dirt blocks under the grass.
	dirtDepth = 3
)

// TerrainConfig configures a Terrain generator.
type TerrainConfig struct {
	Seed        int64
	Biome       string
	DataVersion int32
}

// Terrain generates rolling hills: a seeded height lattice sampled
// with smoothed bilinear interpolation, so neighbouring chunks meet
// without seams. Columns are bedrock, stone, dirt, and grass.
type Terrain struct {
	seed        uint64
	biome       string
	dataVersion int32
	fingerprint Fingerprint
}

var _ Generator = (*Terrain)(nil)

// NewTerrain returns a Terrain generator.
func NewTerrain(config TerrainConfig) (*Terrain, error) {
	terrain := &Terrain{
		seed:        uint64(config.Seed),
		biome:       withDefault(config.Biome, chunk.Plains),
		dataVersion: config.DataVersion,
	}
	if terrain.dataVersion == 0 {
		terrain.dataVersion = chunk.DefaultDataVersion
	}

	var err error
	terrain.fingerprint, err = computeFingerprint("terrain", terrainVersion, struct {
		Seed        int64  `cbor:"seed"`
		Biome       string `cbor:"biome"`
		DataVersion int32  `cbor:"data_version"`
	}{config.Seed, terrain.biome, terrain.dataVersion})
	if err != nil {
		return nil, err
	}
	return terrain, nil
}

// Generate builds the chunk at coord.
func (t *Terrain) Generate(ctx context.Context, coord region.ChunkCoord) (*chunk.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	builder := chunk.NewBuilder(coord.X, coord.Z, t.dataVersion)
	builder.SetBiome(t.biome)

	bedrock := chunk.State("bedrock")
	stone := chunk.State("stone")
	dirt := chunk.State("dirt")
	grass := chunk.State("grass_block")

	builder.FillLayer(chunk.MinY, bedrock)
	for z := range 16 {
		for x := range 16 {
			surface := t.HeightAt(int(coord.X)*16+x, int(coord.Z)*16+z)
			builder.FillColumn(x, z, chunk.MinY+1, surface-dirtDepth, stone)
			builder.FillColumn(x, z, surface-dirtDepth, surface, dirt)
			builder.SetBlock(x, surface, z, grass)
		}
	}
	return builder.Build(), nil
}

// Fingerprint identifies the seed and parameters.
func (t *Terrain) Fingerprint() Fingerprint { return t.fingerprint }

// HeightAt returns the surface y of the column at block x, z.
func (t *Terrain) HeightAt(blockX, blockZ int) int {
	cellX, fracX := floorDivMod(blockX, cellSize)
	cellZ, fracZ := floorDivMod(blockZ, cellSize)
	u := smooth(float64(fracX) / cellSize)
	v := smooth(float64(fracZ) / cellSize)

	h00 := t.lattice(cellX, cellZ)
	h10 := t.lattice(cellX+1, cellZ)
	h01 := t.lattice(cellX, cellZ+1)
	h11 := t.lattice(cellX+1, cellZ+1)

	top := h00 + (h10-h00)*u
	bottom := h01 + (h11-h01)*u
	offset := top + (bottom-top)*v
	return seaLevel + int(offset*amplitude)
}

// lattice returns a value in [-1, 1) for a lattice point.
func (t *Terrain) lattice(x, z int) float64 {
	h := splitmix64(t.seed ^ splitmix64(uint64(int64(x))*0x9E3779B97F4A7C15^uint64(int64(z))*0xC2B2AE3D27D4EB4F))
	return float64(h>>11)/float64(1<<53)*2 - 1
}

func smooth(f float64) float64 {
	return f * f * (3 - 2*f)
}

func floorDivMod(a, b int) (int, int) {
	q, r := a/b, a%b
	if r < 0 {
		q--
		r += b
	}
	return q, r
}

func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ x>>30) * 0xBF58476D1CE4E5B9
	x = (x ^ x>>27) * 0x94D049BB133111EB
	return x ^ x>>31
}
