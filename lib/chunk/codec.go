// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Tnze/go-mc/nbt"

	"github.com/bureau-foundation/regionfs/lib/region"
)

// Codec converts between Content and uncompressed NBT bytes.
type Codec interface {
	Encode(content *Content) ([]byte, error)
	Decode(data []byte) (*Content, error)
}

// NBT is the Codec for the Anvil chunk NBT layout: an unnamed root
// compound.
type NBT struct{}

var _ Codec = NBT{}

// Encode writes content as an unnamed root compound.
func (NBT) Encode(content *Content) ([]byte, error) {
	var buffer bytes.Buffer
	if err := nbt.NewEncoder(&buffer).Encode(*content, ""); err != nil {
		return nil, fmt.Errorf("encoding chunk (%d,%d): %w", content.X, content.Z, err)
	}
	return buffer.Bytes(), nil
}

// Decode reads an unnamed root compound.
func (NBT) Decode(data []byte) (*Content, error) {
	var content Content
	if _, err := nbt.NewDecoder(bytes.NewReader(data)).Decode(&content); err != nil {
		return nil, fmt.Errorf("decoding chunk NBT: %w", err)
	}
	return &content, nil
}

// EncodeEntry encodes content and frames it as a zlib entry, the
// compression the server writes by default.
func EncodeEntry(codec Codec, content *Content) (*region.Entry, error) {
	raw, err := codec.Encode(content)
	if err != nil {
		return nil, err
	}
	payload, err := region.Compress(region.CompressionZlib, raw)
	if err != nil {
		return nil, err
	}
	return region.NewEntry(region.CompressionZlib, payload)
}

// DecodeEntry decompresses and decodes an entry. Failures wrap
// region.ErrMalformedEntry.
func DecodeEntry(codec Codec, entry *region.Entry) (*Content, error) {
	raw, err := entry.Decode()
	if err != nil {
		return nil, err
	}
	content, err := codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", region.ErrMalformedEntry, err)
	}
	return content, nil
}

const (
	tagEnd      = 0
	tagString   = 8
	tagCompound = 10
)

// TagType reports Properties as a compound.
func (p Properties) TagType() byte { return tagCompound }

// MarshalNBT writes the compound body with keys in sorted order, so
// equal properties always encode to the same bytes.
func (p Properties) MarshalNBT(w io.Writer) error {
	for _, key := range p.keys() {
		if err := writeByte(w, tagString); err != nil {
			return err
		}
		if err := writeString(w, key); err != nil {
			return err
		}
		if err := writeString(w, p[key]); err != nil {
			return err
		}
	}
	return writeByte(w, tagEnd)
}

// TagType reports BlockEntities as a list.
func (b BlockEntities) TagType() byte { return nbt.TagList }

// MarshalNBT writes the list with each element's compound body as
// stored. The encoder does not consult element marshalers inside a
// list, so the list writes its elements itself.
func (b BlockEntities) MarshalNBT(w io.Writer) error {
	if err := writeByte(w, tagCompound); err != nil {
		return err
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(b)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	for i, entity := range b {
		if entity.Type != tagCompound {
			return fmt.Errorf("block entity %d has tag type %d, want a compound", i, entity.Type)
		}
		if _, err := w.Write(entity.Data); err != nil {
			return err
		}
	}
	return nil
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("nbt string of %d bytes exceeds the 65535 byte limit", len(s))
	}
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(s)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}
