// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestPlainTable(t *testing.T) {
	var buffer bytes.Buffer
	output := NewOutput(&buffer, false)
	output.Table([]string{"NAME", "OWNER"}, [][]string{
		{"harbor-review", "alice"},
		{"dock", "bob"},
	})

	want := "NAME           OWNER\n" +
		"harbor-review  alice\n" +
		"dock           bob\n"
	if buffer.String() != want {
		t.Errorf("table =\n%s\nwant\n%s", buffer.String(), want)
	}
}

func TestPlainField(t *testing.T) {
	var buffer bytes.Buffer
	NewOutput(&buffer, false).Field("session", "harbor-review")
	if buffer.String() != "session: harbor-review\n" {
		t.Errorf("field = %q", buffer.String())
	}
}

func TestTableTruncatesWideCells(t *testing.T) {
	var buffer bytes.Buffer
	long := strings.Repeat("x", MaxCellWidth+10)
	NewOutput(&buffer, false).Table([]string{"PACKAGE", "BYTES"}, [][]string{{long, long}})

	lines := strings.Split(strings.TrimSuffix(buffer.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("table has %d lines, want 2", len(lines))
	}
	cells := strings.Fields(lines[1])
	if len(cells) != 2 {
		t.Fatalf("row = %q", lines[1])
	}
	if !strings.HasSuffix(cells[0], "…") || len([]rune(cells[0])) != MaxCellWidth {
		t.Errorf("first cell = %q, want truncated to %d columns", cells[0], MaxCellWidth)
	}
	if cells[1] != long {
		t.Errorf("last cell was truncated: %q", cells[1])
	}
}
