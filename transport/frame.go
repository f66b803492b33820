// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// frameHeaderLength is the fixed size of a frame header: 1 byte flags
// + 4 bytes payload length.
const frameHeaderLength = 5

// MaxFrameLength is the largest frame payload accepted, before and
// after decompression. Package revisions travel in one frame.
const MaxFrameLength = 256 << 20

// compressionThreshold is the payload size from which compression is
// attempted. Most envelopes are a few hundred bytes.
const compressionThreshold = 4 << 10

const flagCompressed byte = 0x01

var errIncompressible = errors.New("lz4: data is incompressible")

// appendFrame encodes payload as a frame, compressing it when that
// makes it smaller.
func appendFrame(buffer, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameLength {
		return nil, fmt.Errorf("frame payload length %d exceeds maximum %d", len(payload), MaxFrameLength)
	}
	flags := byte(0)
	body := payload
	if len(payload) >= compressionThreshold {
		if compressed, err := compressLZ4(payload); err == nil {
			flags |= flagCompressed
			body = compressed
		}
	}

	var header [frameHeaderLength]byte
	header[0] = flags
	binary.BigEndian.PutUint32(header[1:5], uint32(len(body)))
	buffer = append(buffer, header[:]...)
	return append(buffer, body...), nil
}

// writeFrame writes one frame to w.
func writeFrame(w io.Writer, payload []byte) error {
	frame, err := appendFrame(nil, payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readFrame reads one frame from r and returns its decompressed
// payload.
func readFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	flags := header[0]
	length := binary.BigEndian.Uint32(header[1:5])
	if length > MaxFrameLength {
		return nil, fmt.Errorf("frame length %d exceeds maximum %d", length, MaxFrameLength)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	if flags&flagCompressed == 0 {
		return body, nil
	}
	return decompressFrame(body)
}

// Compressed bodies are [4 byte BE uncompressed size][LZ4 block].

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written+4 >= len(data) {
		return nil, errIncompressible
	}
	binary.BigEndian.PutUint32(destination[:4], uint32(len(data)))
	return destination[:4+written], nil
}

func decompressFrame(body []byte) ([]byte, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("compressed frame of %d bytes has no size prefix", len(body))
	}
	size := binary.BigEndian.Uint32(body[:4])
	if size > MaxFrameLength {
		return nil, fmt.Errorf("decompressed frame length %d exceeds maximum %d", size, MaxFrameLength)
	}
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(body[4:], destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != int(size) {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}
