// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"encoding/binary"
	"fmt"
)

const (
	// SectorSize is the allocation unit of a region file.
	SectorSize = 4096

	// HeaderSize is the location table plus the timestamp table.
	HeaderSize = 2 * SectorSize

	// MaxEntrySectors is the largest sector count a location word can
	// express.
	MaxEntrySectors = 255

	// entryPrefixSize is the length field plus the compression byte.
	entryPrefixSize = 5

	// MaxPayloadSize is the largest compressed payload that fits in
	// MaxEntrySectors sectors.
	MaxPayloadSize = MaxEntrySectors*SectorSize - entryPrefixSize
)

// Entry is one framed chunk entry. Entries are immutable: replacing a
// chunk produces a new Entry, so cached values can be shared across
// readers without copying.
type Entry struct {
	compression Compression
	framed      []byte
}

// NewEntry frames a compressed payload. The payload is copied.
func NewEntry(compression Compression, payload []byte) (*Entry, error) {
	if !compression.Supported() {
		return nil, fmt.Errorf("%w: compression %s", ErrMalformedEntry, compression)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d sectors", ErrMalformedEntry, len(payload), MaxEntrySectors)
	}
	framed := make([]byte, entryPrefixSize+len(payload))
	binary.BigEndian.PutUint32(framed, uint32(len(payload)+1))
	framed[4] = byte(compression)
	copy(framed[entryPrefixSize:], payload)
	return &Entry{compression: compression, framed: framed}, nil
}

// ParseEntry reads a framed entry from the start of data. Trailing
// bytes (sector padding) are ignored.
func ParseEntry(data []byte) (*Entry, error) {
	if len(data) < entryPrefixSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the entry prefix", ErrMalformedEntry, len(data))
	}
	length := binary.BigEndian.Uint32(data)
	if length < 1 {
		return nil, fmt.Errorf("%w: zero length field", ErrMalformedEntry)
	}
	if uint64(length)+4 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: length field %d exceeds %d available bytes", ErrMalformedEntry, length, len(data)-4)
	}
	code := data[4]
	if code&externalFlag != 0 {
		return nil, fmt.Errorf("%w: external .mcc payloads are not supported", ErrMalformedEntry)
	}
	return NewEntry(Compression(code), data[entryPrefixSize:4+length])
}

// Compression returns the payload's compression scheme.
func (e *Entry) Compression() Compression { return e.compression }

// Payload returns the compressed payload. Callers must not modify it.
func (e *Entry) Payload() []byte { return e.framed[entryPrefixSize:] }

// Bytes returns the framed entry without sector padding. Callers must
// not modify it.
func (e *Entry) Bytes() []byte { return e.framed }

// Size returns the framed length in bytes.
func (e *Entry) Size() int { return len(e.framed) }

// Sectors returns the number of sectors the entry occupies.
func (e *Entry) Sectors() int { return SectorsFor(len(e.framed)) }

// Decode decompresses the payload into raw NBT bytes.
func (e *Entry) Decode() ([]byte, error) {
	return Decompress(e.compression, e.Payload())
}

// SectorsFor returns the sectors needed to hold size bytes.
func SectorsFor(size int) int {
	return (size + SectorSize - 1) / SectorSize
}
