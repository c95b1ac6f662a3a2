// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk models the NBT content of one Anvil chunk and encodes
// it with github.com/Tnze/go-mc/nbt.
//
// Content carries the fields regionfs produces and reads back: chunk
// position, status, 24 vertical sections with paletted block states
// and biomes, light arrays, heightmaps, and block entities (kept as
// raw NBT so unknown block entity shapes survive a round trip). Other
// top-level tags a server writes (ticks, structures, carving masks) are
// dropped on decode.
//
// Palette data follows the 1.18+ on-disk rules: indices are packed
// little end first into 64-bit words without spanning word boundaries,
// block states use at least 4 bits per entry, and a single-entry
// palette omits the data array.
//
// Encoding is deterministic: equal Content values produce identical
// bytes. Block state properties are written in sorted key order.
package chunk
