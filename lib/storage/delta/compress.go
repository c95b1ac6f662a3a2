// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// compressionTag records how a blob's bytes are compressed. The values
// are stored in the blobs table.
type compressionTag uint8

const (
	compressionNone compressionTag = 0
	compressionLZ4  compressionTag = 1
	compressionZstd compressionTag = 2
)

func (tag compressionTag) String() string {
	switch tag {
	case compressionNone:
		return "none"
	case compressionLZ4:
		return "lz4"
	case compressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// errIncompressible means compression would not shrink the data.
var errIncompressible = errors.New("data is incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("delta: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("delta: zstd decoder initialization failed: " + err.Error())
	}
}

// compressBlob picks a compression for a blob. Section blobs are CBOR
// with long runs of packed palette words and favour zstd; light arrays
// are mostly uniform nibbles where LZ4 is nearly as small and faster
// to decode. Either falls back to storing the bytes as they are.
func compressBlob(kind blobKind, data []byte) (compressionTag, []byte, error) {
	var (
		compressed []byte
		err        error
		tag        compressionTag
	)
	if kind == kindLight {
		tag = compressionLZ4
		compressed, err = compressLZ4(data)
	} else {
		tag = compressionZstd
		compressed, err = compressZstd(data)
	}
	if errors.Is(err, errIncompressible) {
		return compressionNone, data, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return tag, compressed, nil
}

func decompressBlob(tag compressionTag, data []byte, size int) ([]byte, error) {
	switch tag {
	case compressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("uncompressed blob: size %d does not match expected %d", len(data), size)
		}
		return data, nil
	case compressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return destination, nil
	case compressionZstd:
		decoded, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(decoded) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(decoded), size)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported blob compression %s", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}
