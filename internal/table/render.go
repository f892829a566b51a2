package table

import (
	"strconv"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Render draws t for a terminal. Columns whose non-null values are all
// integers are right-aligned.
func Render(t *Table) string {
	if len(t.columns) == 0 {
		return ""
	}

	tw := prettytable.NewWriter()
	tw.SetStyle(prettytable.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(prettytable.Row, len(t.columns))
	for j, c := range t.columns {
		header[j] = c
	}
	tw.AppendHeader(header)

	for i := range t.rows {
		r := make(prettytable.Row, len(t.columns))
		for j := range t.columns {
			r[j] = t.At(i, j).String()
		}
		tw.AppendRow(r)
	}

	configs := make([]prettytable.ColumnConfig, 0, len(t.columns))
	for j := range t.columns {
		align := text.AlignLeft
		if t.numericColumn(j) {
			align = text.AlignRight
		}
		configs = append(configs, prettytable.ColumnConfig{
			Number:      j + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func (t *Table) numericColumn(j int) bool {
	seen := false
	for i := range t.rows {
		c := t.At(i, j)
		if !c.Valid {
			continue
		}
		if _, err := strconv.ParseInt(c.Value, 10, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}
