// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
)

type sampleRecord struct {
	Endpoint uuid.UUID `cbor:"endpoint"`
	Resource string    `cbor:"resource,omitempty"`
	Index    uint64    `cbor:"index"`
	Data     []byte    `cbor:"data,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRecord{
		Endpoint: uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2"),
		Resource: "/Game/Maps/Harbor",
		Index:    42,
		Data:     []byte{1, 2, 3},
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Endpoint != original.Endpoint || decoded.Resource != original.Resource ||
		decoded.Index != original.Index || !bytes.Equal(decoded.Data, original.Data) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	record := map[string]any{"b": 1, "a": "two", "c": []any{3}}

	first, err := Marshal(record)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(record)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestUUIDEncodesAsText(t *testing.T) {
	id := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	data, err := Marshal(sampleRecord{Endpoint: id})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"7d444840-9dc0-11d1-b245-5ffdce74fad2"`) {
		t.Errorf("uuid not encoded as text string: %s", diagnostic)
	}
}

func TestZeroLengthPayloadRoundtrip(t *testing.T) {
	data, err := Marshal(sampleRecord{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Index != 0 || decoded.Resource != "" || len(decoded.Data) != 0 || decoded.Endpoint != uuid.Nil {
		t.Errorf("zero record decoded as %+v", decoded)
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var record sampleRecord
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &record); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestRawMessageDefersDecoding(t *testing.T) {
	inner, err := Marshal(sampleRecord{Index: 9})
	if err != nil {
		t.Fatalf("Marshal inner: %v", err)
	}
	type wrapper struct {
		Kind    string     `cbor:"kind"`
		Payload RawMessage `cbor:"payload"`
	}
	outer, err := Marshal(wrapper{Kind: "sample", Payload: inner})
	if err != nil {
		t.Fatalf("Marshal outer: %v", err)
	}

	var decoded wrapper
	if err := Unmarshal(outer, &decoded); err != nil {
		t.Fatalf("Unmarshal outer: %v", err)
	}
	var record sampleRecord
	if err := Unmarshal(decoded.Payload, &record); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if record.Index != 9 {
		t.Errorf("Index = %d, want 9", record.Index)
	}
}
