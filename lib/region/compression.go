// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// Compression is the scheme byte that precedes a chunk payload. The
// values are fixed by the Anvil format.
type Compression uint8

const (
	CompressionGzip   Compression = 1
	CompressionZlib   Compression = 2
	CompressionNone   Compression = 3
	CompressionLZ4    Compression = 4
	CompressionCustom Compression = 127

	// externalFlag marks a payload stored in a separate .mcc file.
	// regionfs never produces it and rejects it on input.
	externalFlag = 0x80
)

// maxDecompressedSize bounds decompression of untrusted payloads. A
// fully populated chunk with block entities is well under this.
const maxDecompressedSize = 64 << 20

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZlib:
		return "zlib"
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionCustom:
		return "custom"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Supported reports whether regionfs can decode payloads with this
// scheme.
func (c Compression) Supported() bool {
	switch c {
	case CompressionGzip, CompressionZlib, CompressionNone, CompressionLZ4:
		return true
	}
	return false
}

// Compress encodes raw NBT bytes. LZ4 is decode-only: the Minecraft
// LZ4 framing carries xxHash32 checksums and regionfs never needs to
// produce it.
func Compress(scheme Compression, raw []byte) ([]byte, error) {
	switch scheme {
	case CompressionNone:
		return raw, nil
	case CompressionZlib:
		var buffer bytes.Buffer
		writer := zlib.NewWriter(&buffer)
		if _, err := writer.Write(raw); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		return buffer.Bytes(), nil
	case CompressionGzip:
		var buffer bytes.Buffer
		writer := gzip.NewWriter(&buffer)
		if _, err := writer.Write(raw); err != nil {
			return nil, fmt.Errorf("gzip compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("gzip compress: %w", err)
		}
		return buffer.Bytes(), nil
	default:
		return nil, fmt.Errorf("compression %s is not supported for writing", scheme)
	}
}

// Decompress decodes a payload. Errors wrap ErrMalformedEntry.
func Decompress(scheme Compression, payload []byte) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	switch scheme {
	case CompressionNone:
		return payload, nil
	case CompressionZlib:
		var reader io.ReadCloser
		reader, err = zlib.NewReader(bytes.NewReader(payload))
		if err == nil {
			raw, err = readBounded(reader)
			reader.Close()
		}
	case CompressionGzip:
		var reader *gzip.Reader
		reader, err = gzip.NewReader(bytes.NewReader(payload))
		if err == nil {
			raw, err = readBounded(reader)
			reader.Close()
		}
	case CompressionLZ4:
		raw, err = decodeLZ4Block(payload)
	default:
		return nil, fmt.Errorf("%w: compression %s", ErrMalformedEntry, scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEntry, scheme, err)
	}
	return raw, nil
}

func readBounded(reader io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(reader, maxDecompressedSize+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxDecompressedSize {
		return nil, fmt.Errorf("decompressed size exceeds %d bytes", maxDecompressedSize)
	}
	return raw, nil
}

// LZ4 payloads use the lz4-java LZ4BlockOutputStream framing: a
// sequence of blocks, each with the magic "LZ4Block", a method/level
// token, little-endian compressed and original lengths, and an
// xxHash32 checksum. An empty block ends the stream. Checksums are not
// verified.
var lz4BlockMagic = []byte("LZ4Block")

const (
	lz4BlockHeaderSize = 8 + 1 + 4 + 4 + 4
	lz4MethodRaw       = 0x10
	lz4MethodLZ4       = 0x20
)

func decodeLZ4Block(payload []byte) ([]byte, error) {
	var output []byte
	for len(payload) > 0 {
		if len(payload) < lz4BlockHeaderSize || !bytes.Equal(payload[:8], lz4BlockMagic) {
			return nil, fmt.Errorf("lz4 block header missing at remaining length %d", len(payload))
		}
		method := payload[8] & 0xF0
		compressedLength := int(binary.LittleEndian.Uint32(payload[9:13]))
		originalLength := int(binary.LittleEndian.Uint32(payload[13:17]))
		payload = payload[lz4BlockHeaderSize:]

		if compressedLength == 0 && originalLength == 0 {
			return output, nil
		}
		if compressedLength < 0 || compressedLength > len(payload) {
			return nil, fmt.Errorf("lz4 block length %d exceeds remaining %d bytes", compressedLength, len(payload))
		}
		if originalLength < 0 || len(output)+originalLength > maxDecompressedSize {
			return nil, fmt.Errorf("lz4 block original length %d out of range", originalLength)
		}
		block := payload[:compressedLength]
		payload = payload[compressedLength:]

		switch method {
		case lz4MethodRaw:
			if compressedLength != originalLength {
				return nil, fmt.Errorf("raw lz4 block: length %d does not match original %d", compressedLength, originalLength)
			}
			output = append(output, block...)
		case lz4MethodLZ4:
			destination := make([]byte, originalLength)
			read, err := lz4.UncompressBlock(block, destination)
			if err != nil {
				return nil, fmt.Errorf("lz4 block: %w", err)
			}
			if read != originalLength {
				return nil, fmt.Errorf("lz4 block: got %d bytes, expected %d", read, originalLength)
			}
			output = append(output, destination...)
		default:
			return nil, fmt.Errorf("lz4 block: unknown method 0x%02x", method)
		}
	}
	return nil, fmt.Errorf("lz4 stream ended without an end block")
}
