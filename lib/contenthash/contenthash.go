// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package contenthash computes the digests that let a client verify
// package bytes received from the server before writing them to disk.
package contenthash

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 keyed digest.
type Digest [32]byte

// packageDomainKey separates package digests from any other BLAKE3 use.
// Changing it invalidates every ContentHash stored in existing package
// ledgers. The bytes are the ASCII domain name, zero-padded.
var packageDomainKey = [32]byte{
	'c', 'o', 'n', 'c', 'o', 'r', 'd', '.', 'p', 'a', 'c', 'k', 'a', 'g', 'e', 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Package returns the package-domain digest of data.
func Package(data []byte) Digest {
	hasher, err := blake3.NewKeyed(packageDomainKey[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("contenthash: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// String returns the hex encoding of the digest. This is the form
// stored in PackageInfo.ContentHash.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Parse decodes a 64-character hex digest.
func Parse(text string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return digest, fmt.Errorf("parsing content hash: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("content hash is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}

// Verify reports whether data matches the hex digest. An empty digest
// means the sender did not hash the bytes and always verifies.
func Verify(data []byte, text string) bool {
	if text == "" {
		return true
	}
	return Package(data).String() == text
}
