// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package generator

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/regionfs/lib/chunk"
	"github.com/bureau-foundation/regionfs/lib/region"
)

// flatVersion changes whenever Flat's output for a given
// configuration changes.
const flatVersion = 1

// Layer is a run of identical blocks.
type Layer struct {
	Block string `cbor:"block"`
	Count int    `cbor:"count"`
}

// DefaultLayers is the classic superflat profile.
func DefaultLayers() []Layer {
	return []Layer{
		{Block: "minecraft:bedrock", Count: 1},
		{Block: "minecraft:dirt", Count: 2},
		{Block: "minecraft:grass_block", Count: 1},
	}
}

// FlatConfig configures a Flat generator.
type FlatConfig struct {
	// Layers are stacked from the world floor upward. Empty uses
	// DefaultLayers.
	Layers []Layer

	// Biome fills every section. Defaults to plains.
	Biome string

	// DataVersion is stamped on every chunk. Defaults to
	// chunk.DefaultDataVersion.
	DataVersion int32
}

// Flat generates identical columns from a list of layers.
type Flat struct {
	layers      []Layer
	biome       string
	dataVersion int32
	fingerprint Fingerprint
}

var _ Generator = (*Flat)(nil)

// NewFlat validates the configuration and returns a Flat generator.
func NewFlat(config FlatConfig) (*Flat, error) {
	if len(config.Layers) == 0 {
		config.Layers = DefaultLayers()
	}
	layers := make([]Layer, len(config.Layers))
	total := 0
	for i, layer := range config.Layers {
		if layer.Block == "" {
			return nil, fmt.Errorf("flat generator: layer %d has no block", i)
		}
		if layer.Count <= 0 {
			return nil, fmt.Errorf("flat generator: layer %d (%s) has count %d", i, layer.Block, layer.Count)
		}
		total += layer.Count
		layers[i] = Layer{Block: chunk.State(layer.Block).Name, Count: layer.Count}
	}
	if total > chunk.Height {
		return nil, fmt.Errorf("flat generator: layers total %d blocks, world height is %d", total, chunk.Height)
	}

	flat := &Flat{
		layers:      layers,
		biome:       withDefault(config.Biome, chunk.Plains),
		dataVersion: config.DataVersion,
	}
	if flat.dataVersion == 0 {
		flat.dataVersion = chunk.DefaultDataVersion
	}

	var err error
	flat.fingerprint, err = computeFingerprint("flat", flatVersion, struct {
		Layers      []Layer `cbor:"layers"`
		Biome       string  `cbor:"biome"`
		DataVersion int32   `cbor:"data_version"`
	}{flat.layers, flat.biome, flat.dataVersion})
	if err != nil {
		return nil, err
	}
	return flat, nil
}

// Generate builds the chunk at coord.
func (f *Flat) Generate(ctx context.Context, coord region.ChunkCoord) (*chunk.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	builder := chunk.NewBuilder(coord.X, coord.Z, f.dataVersion)
	builder.SetBiome(f.biome)
	y := chunk.MinY
	for _, layer := range f.layers {
		state := chunk.State(layer.Block)
		for range layer.Count {
			builder.FillLayer(y, state)
			y++
		}
	}
	return builder.Build(), nil
}

// Fingerprint identifies the layer configuration.
func (f *Flat) Fingerprint() Fingerprint { return f.fingerprint }

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
