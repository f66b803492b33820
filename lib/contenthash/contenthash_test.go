// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contenthash

import (
	"bytes"
	"testing"

	"github.com/zeebo/blake3"
)

func TestPackageIsDeterministic(t *testing.T) {
	first := Package([]byte("harbor map bytes"))
	second := Package([]byte("harbor map bytes"))
	if first != second {
		t.Fatalf("digest differs across calls: %s vs %s", first, second)
	}
	if first == Package([]byte("harbor map bytez")) {
		t.Fatal("different inputs produced the same digest")
	}
}

func TestPackageIsDomainSeparated(t *testing.T) {
	data := []byte("payload")
	plain := blake3.Sum256(data)
	if bytes.Equal(plain[:], func() []byte { d := Package(data); return d[:] }()) {
		t.Fatal("keyed digest equals unkeyed BLAKE3")
	}
}

func TestParseRoundtrip(t *testing.T) {
	digest := Package([]byte{1, 2, 3})
	parsed, err := Parse(digest.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != digest {
		t.Errorf("Parse(String()) = %s, want %s", parsed, digest)
	}
	if _, err := Parse("abcd"); err == nil {
		t.Error("Parse accepted a short digest")
	}
	if _, err := Parse("zz"); err == nil {
		t.Error("Parse accepted non-hex input")
	}
}

func TestVerify(t *testing.T) {
	data := []byte("package")
	if !Verify(data, Package(data).String()) {
		t.Error("Verify rejected matching digest")
	}
	if Verify([]byte("tampered"), Package(data).String()) {
		t.Error("Verify accepted mismatched digest")
	}
	if !Verify(data, "") {
		t.Error("Verify rejected empty digest")
	}
}
