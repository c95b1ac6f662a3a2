// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package region describes the Anvil region file format as regionfs
// synthesizes it: coordinates, the 8 KiB header, sector layout, and
// the framing of individual chunk entries.
//
// # File layout
//
// A region file covers a 32×32 grid of chunks. Bytes [0, 4096) hold
// 1024 big-endian location words, one per chunk slot in row-major
// order (index = localZ*32 + localX). Each word packs a 3-byte sector
// offset and a 1-byte sector count; zero means the chunk is absent.
// Bytes [4096, 8192) hold 1024 big-endian timestamps. Sectors are 4096
// bytes, so sector 2 is the first sector of the chunk zone.
//
// A chunk entry starts at its slot's sector offset: a 4-byte
// big-endian length (covering the compression byte and payload), one
// compression byte, the compressed NBT payload, then zero padding to
// the end of the slot.
//
// # Layouts
//
// regionfs never stores a region file. On open it computes a Layout
// that assigns sectors to the slots that exist, synthesizes the header
// from it, and serves chunk bytes by reverse lookup from sector to
// slot. FixedLayout gives every existing slot the same sector budget
// so chunks never have to be materialized to answer a header read.
// PackedLayout sizes each slot to its entry.
package region
