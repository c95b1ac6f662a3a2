// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package generator

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/regionfs/lib/chunk"
	"github.com/bureau-foundation/regionfs/lib/region"
)

func testLayers() []Layer {
	return []Layer{
		{Block: "bedrock", Count: 1},
		{Block: "dirt", Count: 3},
		{Block: "grass_block", Count: 1},
	}
}

func TestFlatGenerate(t *testing.T) {
	flat, err := NewFlat(FlatConfig{Layers: testLayers()})
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	content, err := flat.Generate(context.Background(), region.ChunkCoord{X: -5, Z: 40})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if content.X != -5 || content.Z != 40 {
		t.Errorf("position = (%d,%d)", content.X, content.Z)
	}

	palette := make(map[string]bool)
	for _, section := range content.Sections {
		for _, state := range section.BlockStates.Palette {
			palette[state.Name] = true
		}
	}
	want := []string{"minecraft:bedrock", "minecraft:dirt", "minecraft:grass_block", chunk.Air}
	if len(palette) != len(want) {
		t.Fatalf("palette = %v, want %v", palette, want)
	}
	for _, name := range want {
		if !palette[name] {
			t.Errorf("palette is missing %s", name)
		}
	}

	floor, err := content.BlockAt(8, chunk.MinY, 8)
	if err != nil || floor.Name != "minecraft:bedrock" {
		t.Errorf("floor = %v, %v; want bedrock", floor, err)
	}
	top, _ := content.BlockAt(8, chunk.MinY+4, 8)
	if top.Name != "minecraft:grass_block" {
		t.Errorf("top layer = %s, want grass_block", top.Name)
	}
}

func TestFlatDeterministic(t *testing.T) {
	flat, err := NewFlat(FlatConfig{Layers: testLayers()})
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	coord := region.ChunkCoord{X: 100, Z: -100}
	first, err := flat.Generate(context.Background(), coord)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := flat.Generate(context.Background(), coord)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	a, err := chunk.NBT{}.Encode(first)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := chunk.NBT{}.Encode(second)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two generations of the same chunk encode differently")
	}
}

func TestNewFlatRejects(t *testing.T) {
	tests := []struct {
		name   string
		layers []Layer
	}{
		{"zero count", []Layer{{Block: "stone", Count: 0}}},
		{"no block", []Layer{{Count: 2}}},
		{"too tall", []Layer{{Block: "stone", Count: chunk.Height + 1}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewFlat(FlatConfig{Layers: test.layers}); err == nil {
				t.Error("NewFlat succeeded")
			}
		})
	}
}

func TestFlatDefaultsLayers(t *testing.T) {
	implicit, err := NewFlat(FlatConfig{})
	if err != nil {
		t.Fatalf("NewFlat with no layers: %v", err)
	}
	explicit, err := NewFlat(FlatConfig{Layers: DefaultLayers()})
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	if implicit.Fingerprint() != explicit.Fingerprint() {
		t.Error("empty layers do not match DefaultLayers")
	}

	content, err := implicit.Generate(context.Background(), region.ChunkCoord{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	top, _ := content.BlockAt(0, chunk.MinY+3, 0)
	if top.Name != "minecraft:grass_block" {
		t.Errorf("top layer = %s, want grass_block", top.Name)
	}
}

func TestFingerprints(t *testing.T) {
	flatA, _ := NewFlat(FlatConfig{Layers: testLayers()})
	flatB, _ := NewFlat(FlatConfig{Layers: []Layer{
		{Block: "minecraft:bedrock", Count: 1},
		{Block: "minecraft:dirt", Count: 3},
		{Block: "minecraft:grass_block", Count: 1},
	}})
	flatC, _ := NewFlat(FlatConfig{Layers: DefaultLayers()})
	terrainA, _ := NewTerrain(TerrainConfig{Seed: 1})
	terrainB, _ := NewTerrain(TerrainConfig{Seed: 1})
	terrainC, _ := NewTerrain(TerrainConfig{Seed: 2})

	if flatA.Fingerprint() != flatB.Fingerprint() {
		t.Error("namespaced and bare block names fingerprint differently")
	}
	if flatA.Fingerprint() == flatC.Fingerprint() {
		t.Error("different layers share a fingerprint")
	}
	if terrainA.Fingerprint() != terrainB.Fingerprint() {
		t.Error("equal terrain configs fingerprint differently")
	}
	if terrainA.Fingerprint() == terrainC.Fingerprint() {
		t.Error("different seeds share a fingerprint")
	}
	if flatA.Fingerprint() == terrainA.Fingerprint() {
		t.Error("flat and terrain share a fingerprint")
	}
	if len(flatA.Fingerprint().String()) != 64 {
		t.Errorf("String() = %q", flatA.Fingerprint().String())
	}
}

func TestTerrainSurface(t *testing.T) {
	terrain, err := NewTerrain(TerrainConfig{Seed: 42})
	if err != nil {
		t.Fatalf("NewTerrain: %v", err)
	}
	coord := region.ChunkCoord{X: -3, Z: 7}
	content, err := terrain.Generate(context.Background(), coord)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, column := range [][2]int{{0, 0}, {15, 15}, {7, 3}} {
		x, z := column[0], column[1]
		surface := terrain.HeightAt(int(coord.X)*16+x, int(coord.Z)*16+z)
		if surface < seaLevel-amplitude || surface > seaLevel+amplitude {
			t.Fatalf("surface %d outside [%d, %d]", surface, seaLevel-amplitude, seaLevel+amplitude)
		}
		expect := map[int]string{
			chunk.MinY:  "minecraft:bedrock",
			0:           "minecraft:stone",
			surface - 1: "minecraft:dirt",
			surface:     "minecraft:grass_block",
			surface + 1: chunk.Air,
		}
		for y, name := range expect {
			state, err := content.BlockAt(x, y, z)
			if err != nil {
				t.Fatalf("BlockAt: %v", err)
			}
			if state.Name != name {
				t.Errorf("column (%d,%d) y=%d is %s, want %s", x, z, y, state.Name, name)
			}
		}
	}
}

func TestTerrainSeamless(t *testing.T) {
	terrain, _ := NewTerrain(TerrainConfig{Seed: 7})
	for x := -200; x < 200; x++ {
		step := terrain.HeightAt(x+1, 13) - terrain.HeightAt(x, 13)
		if step < -2 || step > 2 {
			t.Fatalf("height jumps by %d between x=%d and x=%d", step, x, x+1)
		}
	}
}

func TestGenerateHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	flat, _ := NewFlat(FlatConfig{Layers: DefaultLayers()})
	if _, err := flat.Generate(ctx, region.ChunkCoord{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Flat.Generate error = %v, want context.Canceled", err)
	}
	terrain, _ := NewTerrain(TerrainConfig{})
	if _, err := terrain.Generate(ctx, region.ChunkCoord{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Terrain.Generate error = %v, want context.Canceled", err)
	}
}
