// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2). Two peers
// encoding the same record produce the same bytes, which is what lets
// a ledger entry written on the server be compared byte-for-byte with
// its mirror on a client.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields, so an
// older peer can still read records written by a newer one.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Endpoint, session, and transaction identifiers are uuid.UUID
	// values. They implement encoding.TextMarshaler and travel as
	// canonical text. uuid.UUID is also a BinaryMarshaler, which would
	// otherwise take precedence.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.BinaryMarshaler = cbor.BinaryMarshalerNone
	// Activity timestamps keep sub-second precision.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Any-typed targets decode maps as map[string]any. Concord
		// never uses non-string map keys.
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler:   cbor.TextUnmarshalerTextString,
		BinaryUnmarshaler: cbor.BinaryUnmarshalerNone,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value. Envelopes carry their
// payload as a RawMessage so the router can pick the concrete type
// from the message kind before decoding.
type RawMessage = cbor.RawMessage

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for the
// entire contents of data. The admin CLI uses it to print ledger
// entries.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
