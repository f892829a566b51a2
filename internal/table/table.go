// Package table holds the in-memory tabular representation used by every
// stage of a QA run: CSV inputs, flattened extractions, warehouse results and
// reconciled output. Cells are nullable text; typed values are converted once,
// at the boundary, through FormatValue.
package table

import (
	"fmt"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
)

// Cell is a nullable text value. The zero Cell is null.
type Cell struct {
	Value string
	Valid bool
}

// Null is the null cell.
var Null = Cell{}

// Str returns a non-null cell holding s.
func Str(s string) Cell {
	return Cell{Value: s, Valid: true}
}

// String returns the cell value, or "" for null.
func (c Cell) String() string {
	if !c.Valid {
		return ""
	}
	return c.Value
}

// Row is one table row; its length may be shorter than the column count, in
// which case the missing trailing cells are null.
type Row []Cell

// Table is an ordered set of uniquely named columns and their rows.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// New creates an empty table with the given columns. Duplicate names keep
// their first position.
func New(columns ...string) *Table {
	t := &Table{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		t.AddColumn(c)
	}
	return t
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Width is the number of columns.
func (t *Table) Width() int {
	return len(t.columns)
}

// Len is the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Has reports whether the table has a column named col.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Index returns the position of col.
func (t *Table) Index(col string) (int, bool) {
	i, ok := t.index[col]
	return i, ok
}

// AddColumn appends a column and returns its position. Adding an existing
// column is a no-op that returns the existing position.
func (t *Table) AddColumn(col string) int {
	if i, ok := t.index[col]; ok {
		return i
	}
	t.columns = append(t.columns, col)
	t.index[col] = len(t.columns) - 1
	return len(t.columns) - 1
}

// Append adds a row. Rows longer than the table are truncated.
func (t *Table) Append(row Row) {
	if len(row) > len(t.columns) {
		row = row[:len(t.columns)]
	}
	t.rows = append(t.rows, row)
}

// At returns the cell at row i, column position j.
func (t *Table) At(i, j int) Cell {
	r := t.rows[i]
	if j < 0 || j >= len(r) {
		return Null
	}
	return r[j]
}

// Cell returns the cell at row i in column col; null when col is unknown.
func (t *Table) Cell(i int, col string) Cell {
	j, ok := t.index[col]
	if !ok {
		return Null
	}
	return t.At(i, j)
}

// Row returns row i padded to the table width.
func (t *Table) Row(i int) Row {
	out := make(Row, len(t.columns))
	copy(out, t.rows[i])
	return out
}

// Select returns a new table with only the named columns, in that order.
func (t *Table) Select(columns ...string) (*Table, error) {
	pos := make([]int, len(columns))
	for k, c := range columns {
		j, ok := t.index[c]
		if !ok {
			return nil, qaerrors.MissingColumn("table", "input", c)
		}
		pos[k] = j
	}

	out := New(columns...)
	for i := range t.rows {
		row := make(Row, len(columns))
		for k, j := range pos {
			row[k] = t.At(i, j)
		}
		out.Append(row)
	}
	return out, nil
}

// DistinctValues returns the non-null values of col in first-seen order.
func (t *Table) DistinctValues(col string) ([]string, error) {
	j, ok := t.index[col]
	if !ok {
		return nil, qaerrors.MissingColumn("table", "input", col)
	}

	seen := make(map[string]bool)
	var out []string
	for i := range t.rows {
		c := t.At(i, j)
		if !c.Valid || c.Value == "" || seen[c.Value] {
			continue
		}
		seen[c.Value] = true
		out = append(out, c.Value)
	}
	return out, nil
}

// String summarises the table shape for logs.
func (t *Table) String() string {
	return fmt.Sprintf("table(%d rows x %d columns)", len(t.rows), len(t.columns))
}
