package dataset

import (
	"fmt"
	"sort"
)

// Table is an in-memory, column-ordered result set.
//
// Rows are positional: Rows[i][j] is the value of Columns[j] in row i.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether name is a column of t.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Append adds a row. The number of values must match the number of columns.
func (t *Table) Append(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = Normalize(v)
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Column returns a copy of every value in the named column, or nil if absent.
func (t *Table) Column(name string) []any {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

// Value returns the value at (row, column name). Missing columns read as nil.
func (t *Table) Value(row int, column string) any {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return nil
	}
	return t.Rows[row][idx]
}

// Clone returns a deep copy of the table structure. Cell values are immutable
// scalars so they are shared.
func (t *Table) Clone() *Table {
	out := NewTable(t.Columns...)
	out.Rows = make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]any, len(row))
		copy(r, row)
		out.Rows[i] = r
	}
	return out
}

// DropColumns returns a copy of t without the named columns.
func (t *Table) DropColumns(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []int
	var cols []string
	for i, c := range t.Columns {
		if !drop[c] {
			keep = append(keep, i)
			cols = append(cols, c)
		}
	}
	out := NewTable(cols...)
	out.Rows = make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]any, len(keep))
		for j, idx := range keep {
			r[j] = row[idx]
		}
		out.Rows[i] = r
	}
	return out
}

// SortBy returns a copy of t stably sorted by the named column. Unknown
// columns return an unsorted copy.
func (t *Table) SortBy(column string) *Table {
	out := t.Clone()
	idx := out.ColumnIndex(column)
	if idx < 0 {
		return out
	}
	sort.SliceStable(out.Rows, func(i, j int) bool {
		return Compare(out.Rows[i][idx], out.Rows[j][idx]) < 0
	})
	return out
}

// Records returns the rows as column-name keyed maps.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for j, c := range t.Columns {
			rec[c] = row[j]
		}
		out[i] = rec
	}
	return out
}

// NullCount returns the number of missing values in the named column.
func (t *Table) NullCount(column string) int {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return 0
	}
	n := 0
	for _, row := range t.Rows {
		if IsNull(row[idx]) {
			n++
		}
	}
	return n
}
