// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/pierrec/lz4/v4"
)

func TestEntryFraming(t *testing.T) {
	raw := bytes.Repeat([]byte("minecraft:stone"), 200)
	payload, err := Compress(CompressionZlib, raw)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	entry, err := NewEntry(CompressionZlib, payload)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}

	framed := entry.Bytes()
	if got := binary.BigEndian.Uint32(framed); got != uint32(len(payload)+1) {
		t.Errorf("length field = %d, want %d", got, len(payload)+1)
	}
	if framed[4] != byte(CompressionZlib) {
		t.Errorf("compression byte = %d, want 2", framed[4])
	}
	if entry.Sectors() != 1 {
		t.Errorf("Sectors() = %d, want 1", entry.Sectors())
	}

	// Parsing tolerates trailing sector padding.
	padded := make([]byte, SectorSize)
	copy(padded, framed)
	parsed, err := ParseEntry(padded)
	if err != nil {
		t.Fatalf("ParseEntry: %v", err)
	}
	if !bytes.Equal(parsed.Bytes(), framed) {
		t.Error("parsed entry differs from original framing")
	}
	decoded, err := parsed.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Error("decoded payload differs from raw input")
	}
}

func TestParseEntryRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte{0, 0, 0}},
		{"zero length", []byte{0, 0, 0, 0, 2}},
		{"length past end", []byte{0, 0, 0, 9, 2, 1, 2}},
		{"unknown compression", []byte{0, 0, 0, 2, 9, 0}},
		{"custom compression", []byte{0, 0, 0, 2, 127, 0}},
		{"external payload", []byte{0, 0, 0, 1, 0x82}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseEntry(test.data)
			if !errors.Is(err, ErrMalformedEntry) {
				t.Fatalf("ParseEntry error = %v, want ErrMalformedEntry", err)
			}
		})
	}
}

func TestNewEntryRejectsOversizedPayload(t *testing.T) {
	_, err := NewEntry(CompressionNone, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrMalformedEntry) {
		t.Fatalf("NewEntry error = %v, want ErrMalformedEntry", err)
	}
	entry, err := NewEntry(CompressionNone, make([]byte, MaxPayloadSize))
	if err != nil {
		t.Fatalf("NewEntry at the limit: %v", err)
	}
	if entry.Sectors() != MaxEntrySectors {
		t.Errorf("Sectors() = %d, want %d", entry.Sectors(), MaxEntrySectors)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x0a, 0x00, 0x00, 0x03}, 1000)
	for _, scheme := range []Compression{CompressionGzip, CompressionZlib, CompressionNone} {
		t.Run(scheme.String(), func(t *testing.T) {
			payload, err := Compress(scheme, raw)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			decoded, err := Decompress(scheme, payload)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(decoded, raw) {
				t.Error("round trip changed the data")
			}
		})
	}
	if _, err := Compress(CompressionLZ4, raw); err == nil {
		t.Error("Compress(lz4) succeeded, want error")
	}
}

// lz4BlockStream frames data the way lz4-java's LZ4BlockOutputStream
// does, with zero checksums.
func lz4BlockStream(t *testing.T, blocks ...[]byte) []byte {
	t.Helper()
	var stream []byte
	for _, block := range blocks {
		destination := make([]byte, lz4.CompressBlockBound(len(block)))
		written, err := lz4.CompressBlock(block, destination, nil)
		if err != nil {
			t.Fatalf("CompressBlock: %v", err)
		}
		method := byte(lz4MethodLZ4)
		body := destination[:written]
		if written == 0 {
			method = lz4MethodRaw
			body = block
		}
		header := make([]byte, lz4BlockHeaderSize)
		copy(header, lz4BlockMagic)
		header[8] = method
		binary.LittleEndian.PutUint32(header[9:], uint32(len(body)))
		binary.LittleEndian.PutUint32(header[13:], uint32(len(block)))
		stream = append(stream, header...)
		stream = append(stream, body...)
	}
	end := make([]byte, lz4BlockHeaderSize)
	copy(end, lz4BlockMagic)
	end[8] = lz4MethodRaw
	return append(stream, end...)
}

func TestDecompressLZ4BlockStream(t *testing.T) {
	first := bytes.Repeat([]byte("sections"), 512)
	second := bytes.Repeat([]byte("palette"), 300)
	stream := lz4BlockStream(t, first, second)

	decoded, err := Decompress(CompressionLZ4, stream)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if want := append(append([]byte{}, first...), second...); !bytes.Equal(decoded, want) {
		t.Errorf("decoded %d bytes, want %d", len(decoded), len(want))
	}

	_, err = Decompress(CompressionLZ4, stream[:len(stream)-lz4BlockHeaderSize])
	if !errors.Is(err, ErrMalformedEntry) {
		t.Errorf("truncated stream error = %v, want ErrMalformedEntry", err)
	}
}
