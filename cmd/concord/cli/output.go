// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// MaxCellWidth truncates table cells wider than this many columns,
// except in the last column.
const MaxCellWidth = 48

// Output writes command results. Styled output colors headers and
// status lines; plain output is stable for scripts.
type Output struct {
	w      io.Writer
	styled bool

	header  lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
}

// NewOutput returns an Output on w.
func NewOutput(w io.Writer, styled bool) *Output {
	return &Output{
		w:       w,
		styled:  styled,
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

// Stdout returns an Output on stdout, styled when stdout is a
// terminal and NO_COLOR is unset.
func Stdout() *Output {
	return NewOutput(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())) && !termenv.EnvNoColor())
}

// Table writes rows under headers in aligned columns.
func (o *Output) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = ansi.StringWidth(header)
	}
	clipped := make([][]string, len(rows))
	for r, row := range rows {
		clipped[r] = make([]string, len(row))
		for i, cell := range row {
			if i < len(row)-1 {
				cell = ansi.Truncate(cell, MaxCellWidth, "…")
			}
			clipped[r][i] = cell
			if i < len(widths) {
				widths[i] = max(widths[i], ansi.StringWidth(cell))
			}
		}
	}

	o.row(headers, widths, true)
	for _, row := range clipped {
		o.row(row, widths, false)
	}
}

func (o *Output) row(cells []string, widths []int, header bool) {
	var line strings.Builder
	for i, cell := range cells {
		last := i == len(cells)-1
		padded := cell
		if !last && i < len(widths) {
			padded += strings.Repeat(" ", widths[i]-ansi.StringWidth(cell)+2)
		}
		if header && o.styled {
			padded = o.header.Render(padded)
		}
		line.WriteString(padded)
	}
	fmt.Fprintln(o.w, strings.TrimRight(line.String(), " "))
}

// Field writes one "label: value" line.
func (o *Output) Field(label, value string) {
	if o.styled {
		label = o.muted.Render(label + ":")
	} else {
		label += ":"
	}
	fmt.Fprintf(o.w, "%s %s\n", label, value)
}

// Success writes a completion message.
func (o *Output) Success(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if o.styled {
		message = o.success.Render(message)
	}
	fmt.Fprintln(o.w, message)
}

// Line writes unstyled text.
func (o *Output) Line(format string, args ...any) {
	fmt.Fprintf(o.w, format+"\n", args...)
}
