// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Hash is the BLAKE3 digest addressing a stored blob.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// blobKind separates the hash domains of the two blob shapes. The
// values are stored in the blobs table.
type blobKind uint8

const (
	kindSection blobKind = 1
	kindLight   blobKind = 2
)

// Domain keys: the ASCII domain name zero-padded to 32 bytes. The same
// bytes stored as a section and as a light array hash differently.
var (
	sectionDomainKey = [32]byte{
		'r', 'e', 'g', 'i', 'o', 'n', 'f', 's', '.', 'd', 'e', 'l', 't', 'a', '.', 's',
		'e', 'c', 't', 'i', 'o', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	lightDomainKey = [32]byte{
		'r', 'e', 'g', 'i', 'o', 'n', 'f', 's', '.', 'd', 'e', 'l', 't', 'a', '.', 'l',
		'i', 'g', 'h', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

func hashBlob(kind blobKind, data []byte) Hash {
	key := sectionDomainKey
	if kind == kindLight {
		key = lightDomainKey
	}
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("delta: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
