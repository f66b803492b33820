// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Entry layout:
//
//	[uvarint tag length][tag bytes]
//	[uvarint uncompressed payload length]
//	[zlib payload]
//	[12-byte magic][4-byte big-endian CRC-32 of everything before the footer]
//
// The footer is always the last 16 bytes of the file. An entry whose
// footer does not match was torn by a crash or corrupted on disk, and
// reads as absent.
const footerSize = 16

// entryMagic is the first 12 bytes of every entry footer. Changing it
// makes every existing ledger unreadable.
var entryMagic = [12]byte{'C', 'O', 'N', 'C', 'O', 'R', 'D', 'L', 'E', 'D', 'G', 'R'}

const (
	// maxTagLength bounds the type tag so a corrupt length prefix cannot
	// drive a large allocation.
	maxTagLength = 256

	// maxPayloadLength bounds the declared uncompressed length for the
	// same reason. Package revisions are the largest records.
	maxPayloadLength = 1 << 30
)

// errCorruptEntry is wrapped by every decode failure.
var errCorruptEntry = errors.New("corrupt ledger entry")

// encodeEntry frames a type tag and an encoded record payload.
func encodeEntry(tag string, payload []byte) ([]byte, error) {
	if len(tag) == 0 || len(tag) > maxTagLength {
		return nil, fmt.Errorf("ledger type tag length %d out of range", len(tag))
	}
	if len(payload) > maxPayloadLength {
		return nil, fmt.Errorf("ledger payload of %d bytes exceeds %d", len(payload), maxPayloadLength)
	}

	var buffer bytes.Buffer
	buffer.Grow(len(tag) + len(payload)/2 + 2*binary.MaxVarintLen64 + footerSize)

	var prefix [binary.MaxVarintLen64]byte
	buffer.Write(prefix[:binary.PutUvarint(prefix[:], uint64(len(tag)))])
	buffer.WriteString(tag)
	buffer.Write(prefix[:binary.PutUvarint(prefix[:], uint64(len(payload)))])

	writer, err := zlib.NewWriterLevel(&buffer, zlib.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating zlib writer: %w", err)
	}
	if _, err := writer.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing ledger payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finishing ledger payload: %w", err)
	}

	checksum := crc32.ChecksumIEEE(buffer.Bytes())
	buffer.Write(entryMagic[:])
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], checksum)
	buffer.Write(sum[:])
	return buffer.Bytes(), nil
}

// decodeEntry validates the footer and returns the type tag and the
// decompressed payload.
func decodeEntry(data []byte) (string, []byte, error) {
	if len(data) < footerSize+2 {
		return "", nil, fmt.Errorf("%w: %d bytes is shorter than the minimum entry", errCorruptEntry, len(data))
	}
	body := data[:len(data)-footerSize]
	footer := data[len(data)-footerSize:]
	if !bytes.Equal(footer[:len(entryMagic)], entryMagic[:]) {
		return "", nil, fmt.Errorf("%w: footer magic mismatch", errCorruptEntry)
	}
	if binary.BigEndian.Uint32(footer[len(entryMagic):]) != crc32.ChecksumIEEE(body) {
		return "", nil, fmt.Errorf("%w: checksum mismatch", errCorruptEntry)
	}

	tagLength, read := binary.Uvarint(body)
	if read <= 0 || tagLength == 0 || tagLength > maxTagLength || uint64(len(body)-read) < tagLength {
		return "", nil, fmt.Errorf("%w: bad type tag length", errCorruptEntry)
	}
	body = body[read:]
	tag := string(body[:tagLength])
	body = body[tagLength:]

	payloadLength, read := binary.Uvarint(body)
	if read <= 0 || payloadLength > maxPayloadLength {
		return "", nil, fmt.Errorf("%w: bad payload length", errCorruptEntry)
	}
	body = body[read:]

	reader, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errCorruptEntry, err)
	}
	defer reader.Close()

	payload := make([]byte, payloadLength)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return "", nil, fmt.Errorf("%w: reading payload: %v", errCorruptEntry, err)
	}
	// The stream must end exactly at the declared length.
	var extra [1]byte
	n, err := reader.Read(extra[:])
	if n != 0 {
		return "", nil, fmt.Errorf("%w: payload longer than declared %d bytes", errCorruptEntry, payloadLength)
	}
	if err != nil && err != io.EOF {
		return "", nil, fmt.Errorf("%w: %v", errCorruptEntry, err)
	}
	return tag, payload, nil
}

// DecodeEntry exposes the entry decoder to tooling that inspects
// ledger files directly.
func DecodeEntry(data []byte) (tag string, payload []byte, err error) {
	return decodeEntry(data)
}
