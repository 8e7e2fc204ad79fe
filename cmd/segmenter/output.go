package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/snarg/transcript-segmenter/internal/segment"
)

const tableTextWidth = 60

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// column describes one table column. WidthMax of 0 leaves it unbounded;
// longer cells are wrapped by go-pretty.
type column struct {
	Title    string
	Right    bool
	WidthMax int
}

// renderTable draws rows under cols with rounded borders. Header titles keep
// their case. Short rows are padded with empty cells.
func renderTable(cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.Title
		align := text.AlignLeft
		if c.Right {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    c.WidthMax,
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

// segmentTable renders segments one per row with their time span and a
// shortened text preview.
func segmentTable(segments []segment.Segment) string {
	rows := make([][]string, 0, len(segments))
	for i, s := range segments {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.2fs", s.StartTime),
			fmt.Sprintf("%.2fs", s.EndTime),
			text.Trim(s.Text, tableTextWidth),
		})
	}
	return renderTable([]column{
		{Title: "#", Right: true},
		{Title: "Start", Right: true},
		{Title: "End", Right: true},
		{Title: "Text"},
	}, rows)
}
