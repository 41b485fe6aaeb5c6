// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
	headerStyle = lipgloss.NewStyle().Reverse(true).Padding(0, 2).Align(lipgloss.Center)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failedStyle = cellStyle.Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).Bold(true)
	borderColor = lipgloss.Color("99")
)

// reportTable renders rows of a report, with failed rows highlighted.
//
// Columns are aligned by the given alignments; columns past the last alignment use the last one.
type reportTable struct {
	*lgtable.Table
	numRows    int
	failedRows map[int]bool
}

// newReportTable creates a table with the given column alignments and, optionally, a header.
func newReportTable(headers []string, alignments ...lipgloss.Position) *reportTable {
	t := &reportTable{failedRows: make(map[int]bool)}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		StyleFunc(t.style(alignments))
	if len(headers) > 0 {
		t.Headers(headers...)
	}
	return t
}

// Add appends a row, highlighted if failed.
func (t *reportTable) Add(failed bool, cells ...string) {
	if failed {
		t.failedRows[t.numRows] = true
	}
	t.Row(cells...)
	t.numRows++
}

func (t *reportTable) style(alignments []lipgloss.Position) lgtable.StyleFunc {
	return func(row, col int) lipgloss.Style {
		if row == lgtable.HeaderRow {
			return headerStyle
		}
		s := cellStyle.Faint(row%2 == 1)
		if t.failedRows[row] {
			s = failedStyle
		}
		switch {
		case col < len(alignments):
			return s.Align(alignments[col])
		case len(alignments) > 0:
			return s.Align(alignments[len(alignments)-1])
		}
		return s
	}
}
