// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"math"
	"testing"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name string
		want RegionPos
		ok   bool
	}{
		{"r.0.0.mca", RegionPos{0, 0}, true},
		{"r.-1.5.mca", RegionPos{-1, 5}, true},
		{"r.-2147483648.2147483647.mca", RegionPos{math.MinInt32, math.MaxInt32}, true},
		{"r.2147483648.0.mca", RegionPos{}, false},
		{"r.01.0.mca", RegionPos{}, false},
		{"r.+1.0.mca", RegionPos{}, false},
		{"r.-0.0.mca", RegionPos{}, false},
		{"r.1.mca", RegionPos{}, false},
		{"r.1.2.3.mca", RegionPos{}, false},
		{"r.a.b.mca", RegionPos{}, false},
		{"r.0.0.mcr", RegionPos{}, false},
		{"level.dat", RegionPos{}, false},
		{"", RegionPos{}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, ok := ParseFilename(test.name)
			if ok != test.ok || got != test.want {
				t.Fatalf("ParseFilename(%q) = %v, %v; want %v, %v", test.name, got, ok, test.want, test.ok)
			}
			if ok && got.Filename() != test.name {
				t.Errorf("Filename() = %q, want %q", got.Filename(), test.name)
			}
		})
	}
}

func TestChunkCoordRegionAndIndex(t *testing.T) {
	tests := []struct {
		chunk  ChunkCoord
		region RegionPos
		index  int
	}{
		{ChunkCoord{0, 0}, RegionPos{0, 0}, 0},
		{ChunkCoord{31, 0}, RegionPos{0, 0}, 31},
		{ChunkCoord{0, 1}, RegionPos{0, 0}, 32},
		{ChunkCoord{31, 31}, RegionPos{0, 0}, 1023},
		{ChunkCoord{32, 0}, RegionPos{1, 0}, 0},
		{ChunkCoord{-1, -1}, RegionPos{-1, -1}, 1023},
		{ChunkCoord{-32, -33}, RegionPos{-1, -2}, 31 * 32},
	}
	for _, test := range tests {
		if got := test.chunk.Region(); got != test.region {
			t.Errorf("%v.Region() = %v, want %v", test.chunk, got, test.region)
		}
		if got := test.chunk.Index(); got != test.index {
			t.Errorf("%v.Index() = %d, want %d", test.chunk, got, test.index)
		}
		if got := test.region.Chunk(test.index); got != test.chunk {
			t.Errorf("%v.Chunk(%d) = %v, want %v", test.region, test.index, got, test.chunk)
		}
	}
}
