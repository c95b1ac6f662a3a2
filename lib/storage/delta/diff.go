// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/bureau-foundation/regionfs/lib/chunk"
	"github.com/bureau-foundation/regionfs/lib/codec"
)

// recordFormat is the version of the record layout.
const recordFormat = 1

// sparseLimit is the most changed blocks a section may have and still
// be stored as a list of changes. Past it the whole section is stored
// as a blob.
const sparseLimit = 1024

// record is the persisted difference between a saved chunk and the
// generator's output for the same coordinate.
type record struct {
	Format        int    `cbor:"format"`
	DataVersion   int32  `cbor:"data_version"`
	Y             int32  `cbor:"y_pos"`
	Status        string `cbor:"status"`
	LastUpdate    int64  `cbor:"last_update"`
	InhabitedTime int64  `cbor:"inhabited_time"`
	LightOn       bool   `cbor:"light_on"`

	// SectionYs lists every section of the saved chunk, in order.
	SectionYs []int8 `cbor:"section_ys"`

	// Sections holds deltas for sections that differ from the
	// baseline. Sections listed in SectionYs without a delta equal the
	// baseline.
	Sections []sectionDelta `cbor:"sections,omitempty"`

	// Heightmaps is set when the saved heightmaps differ from the
	// baseline's.
	Heightmaps *chunk.Heightmaps `cbor:"heightmaps,omitempty"`

	BlockEntities chunk.BlockEntities `cbor:"block_entities,omitempty"`
}

type sectionDelta struct {
	Y int8 `cbor:"y"`

	// Full addresses a blob holding the whole section. When set, the
	// other fields are unused.
	Full *Hash `cbor:"full,omitempty"`

	// Palette, Positions, and States describe sparse block changes:
	// block Positions[i] becomes Palette[States[i]].
	Palette   []chunk.BlockState `cbor:"palette,omitempty"`
	Positions []uint16           `cbor:"positions,omitempty"`
	States    []uint16           `cbor:"states,omitempty"`

	Biomes *chunk.Biomes `cbor:"biomes,omitempty"`

	// BlockLight and SkyLight address light blobs that replace the
	// baseline arrays. The Drop flags record arrays the saved section
	// omits.
	BlockLight     *Hash `cbor:"block_light,omitempty"`
	SkyLight       *Hash `cbor:"sky_light,omitempty"`
	DropBlockLight bool  `cbor:"drop_block_light,omitempty"`
	DropSkyLight   bool  `cbor:"drop_sky_light,omitempty"`
}

// blob is a content-addressed byte string a record references.
type blob struct {
	kind blobKind
	data []byte
}

// references returns every blob hash a record uses, with repeats.
func (r *record) references() []Hash {
	var hashes []Hash
	for _, section := range r.Sections {
		for _, hash := range []*Hash{section.Full, section.BlockLight, section.SkyLight} {
			if hash != nil {
				hashes = append(hashes, *hash)
			}
		}
	}
	return hashes
}

// diff builds the record for saved against baseline. Blobs the record
// references are collected in blobs, keyed by hash.
func diff(baseline, saved *chunk.Content) (*record, map[Hash]blob, error) {
	result := &record{
		Format:        recordFormat,
		DataVersion:   saved.DataVersion,
		Y:             saved.Y,
		Status:        saved.Status,
		LastUpdate:    saved.LastUpdate,
		InhabitedTime: saved.InhabitedTime,
		LightOn:       saved.LightOn,
		BlockEntities: saved.BlockEntities,
	}
	blobs := make(map[Hash]blob)
	addBlob := func(kind blobKind, data []byte) *Hash {
		hash := hashBlob(kind, data)
		blobs[hash] = blob{kind: kind, data: data}
		return &hash
	}

	for i := range saved.Sections {
		section := &saved.Sections[i]
		result.SectionYs = append(result.SectionYs, section.Y)

		delta, err := diffSection(baseline.Section(section.Y), section, addBlob)
		if err != nil {
			return nil, nil, fmt.Errorf("section %d: %w", section.Y, err)
		}
		if delta != nil {
			result.Sections = append(result.Sections, *delta)
		}
	}

	if !heightmapsEqual(baseline.Heightmaps, saved.Heightmaps) {
		heightmaps := saved.Heightmaps
		result.Heightmaps = &heightmaps
	}
	return result, blobs, nil
}

// diffSection returns nil when saved equals base.
func diffSection(base, saved *chunk.Section, addBlob func(blobKind, []byte) *Hash) (*sectionDelta, error) {
	storeFull := func() (*sectionDelta, error) {
		encoded, err := codec.Marshal(saved)
		if err != nil {
			return nil, fmt.Errorf("encoding section: %w", err)
		}
		return &sectionDelta{Y: saved.Y, Full: addBlob(kindSection, encoded)}, nil
	}
	if base == nil {
		return storeFull()
	}

	savedStates, err := saved.BlockStates.Expand()
	if err != nil {
		return storeFull()
	}
	baseStates, err := base.BlockStates.Expand()
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}

	delta := &sectionDelta{Y: saved.Y}
	changed := false
	lookup := make(map[string]uint16)
	for position := range savedStates {
		key := savedStates[position].Key()
		if key == baseStates[position].Key() {
			continue
		}
		if len(delta.Positions) == sparseLimit {
			return storeFull()
		}
		index, ok := lookup[key]
		if !ok {
			index = uint16(len(delta.Palette))
			lookup[key] = index
			delta.Palette = append(delta.Palette, savedStates[position])
		}
		delta.Positions = append(delta.Positions, uint16(position))
		delta.States = append(delta.States, index)
		changed = true
	}

	biomesSame, err := biomesEqual(base.Biomes, saved.Biomes)
	if err != nil {
		return storeFull()
	}
	if !biomesSame {
		biomes := saved.Biomes
		delta.Biomes = &biomes
		changed = true
	}

	if !bytes.Equal(base.BlockLight, saved.BlockLight) {
		if saved.BlockLight == nil {
			delta.DropBlockLight = true
		} else {
			delta.BlockLight = addBlob(kindLight, saved.BlockLight)
		}
		changed = true
	}
	if !bytes.Equal(base.SkyLight, saved.SkyLight) {
		if saved.SkyLight == nil {
			delta.DropSkyLight = true
		} else {
			delta.SkyLight = addBlob(kindLight, saved.SkyLight)
		}
		changed = true
	}

	if !changed {
		return nil, nil
	}
	return delta, nil
}

// apply rebuilds the saved chunk from baseline and a record. fetch
// returns the bytes of a referenced blob.
func apply(baseline *chunk.Content, saved *record, fetch func(Hash) ([]byte, error)) (*chunk.Content, error) {
	content := &chunk.Content{
		DataVersion:   saved.DataVersion,
		X:             baseline.X,
		Z:             baseline.Z,
		Y:             saved.Y,
		Status:        saved.Status,
		LastUpdate:    saved.LastUpdate,
		InhabitedTime: saved.InhabitedTime,
		LightOn:       saved.LightOn,
		Heightmaps:    baseline.Heightmaps,
		Sections:      make([]chunk.Section, 0, len(saved.SectionYs)),
		BlockEntities: saved.BlockEntities,
	}
	if content.BlockEntities == nil {
		content.BlockEntities = chunk.BlockEntities{}
	}
	if saved.Heightmaps != nil {
		content.Heightmaps = *saved.Heightmaps
	}

	deltas := make(map[int8]*sectionDelta, len(saved.Sections))
	for i := range saved.Sections {
		deltas[saved.Sections[i].Y] = &saved.Sections[i]
	}

	for _, y := range saved.SectionYs {
		delta := deltas[y]
		if delta != nil && delta.Full != nil {
			data, err := fetch(*delta.Full)
			if err != nil {
				return nil, fmt.Errorf("section %d: %w", y, err)
			}
			var section chunk.Section
			if err := codec.Unmarshal(data, &section); err != nil {
				return nil, fmt.Errorf("section %d: decoding blob %s: %w", y, delta.Full, err)
			}
			content.Sections = append(content.Sections, section)
			continue
		}

		base := baseline.Section(y)
		if base == nil {
			return nil, fmt.Errorf("section %d: no baseline section and no stored section", y)
		}
		section := *base
		if delta != nil {
			if err := applySection(&section, delta, fetch); err != nil {
				return nil, fmt.Errorf("section %d: %w", y, err)
			}
		}
		content.Sections = append(content.Sections, section)
	}
	return content, nil
}

func applySection(section *chunk.Section, delta *sectionDelta, fetch func(Hash) ([]byte, error)) error {
	if len(delta.Positions) != len(delta.States) {
		return fmt.Errorf("%d changed positions but %d states", len(delta.Positions), len(delta.States))
	}
	if len(delta.Positions) > 0 {
		states, err := section.BlockStates.Expand()
		if err != nil {
			return err
		}
		for i, position := range delta.Positions {
			if int(position) >= len(states) || int(delta.States[i]) >= len(delta.Palette) {
				return fmt.Errorf("change %d out of range: position %d state %d", i, position, delta.States[i])
			}
			states[position] = delta.Palette[delta.States[i]]
		}
		section.BlockStates = chunk.NewBlockStates(states)
	}
	if delta.Biomes != nil {
		section.Biomes = *delta.Biomes
	}

	var err error
	switch {
	case delta.DropBlockLight:
		section.BlockLight = nil
	case delta.BlockLight != nil:
		if section.BlockLight, err = fetch(*delta.BlockLight); err != nil {
			return fmt.Errorf("block light: %w", err)
		}
	}
	switch {
	case delta.DropSkyLight:
		section.SkyLight = nil
	case delta.SkyLight != nil:
		if section.SkyLight, err = fetch(*delta.SkyLight); err != nil {
			return fmt.Errorf("sky light: %w", err)
		}
	}
	return nil
}

func biomesEqual(a, b chunk.Biomes) (bool, error) {
	if slices.Equal(a.Palette, b.Palette) && slices.Equal(a.Data, b.Data) {
		return true, nil
	}
	expandedA, err := a.Expand()
	if err != nil {
		return false, err
	}
	expandedB, err := b.Expand()
	if err != nil {
		return false, err
	}
	return slices.Equal(expandedA, expandedB), nil
}

func heightmapsEqual(a, b chunk.Heightmaps) bool {
	return slices.Equal(a.MotionBlocking, b.MotionBlocking) &&
		slices.Equal(a.MotionBlockingNoLeaves, b.MotionBlockingNoLeaves) &&
		slices.Equal(a.OceanFloor, b.OceanFloor) &&
		slices.Equal(a.WorldSurface, b.WorldSurface)
}
