package table

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMissingColumn is returned when an operation references a column the table lacks
	ErrMissingColumn = errors.New("missing column")
	// ErrDuplicateColumn is returned when a table would end up with two columns of the same name
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrRowWidth is returned when a row does not match the table's column count
	ErrRowWidth = errors.New("row width does not match column count")
	// ErrSchemaMismatch is returned when two tables must share a schema but do not
	ErrSchemaMismatch = errors.New("table schemas do not match")
)

// Row is one record, aligned with the table's columns
type Row []Value

// Table is an ordered set of rows over a named, ordered set of columns.
// Tables are never modified in place; every operation returns a new table.
type Table struct {
	name    string
	columns []string
	index   map[string]int
	rows    []Row
}

// New creates a table, validating column names and row widths
func New(name string, columns []string, rows []Row) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if _, exists := index[col]; exists {
			return nil, fmt.Errorf("%w: %s in table %s", ErrDuplicateColumn, col, name)
		}
		index[col] = i
	}

	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: table %s row %d has %d values, want %d", ErrRowWidth, name, i, len(row), len(columns))
		}
	}

	return &Table{
		name:    name,
		columns: append([]string(nil), columns...),
		index:   index,
		rows:    rows,
	}, nil
}

// FromRecords builds a table of text values. Empty cells become null.
func FromRecords(name string, columns []string, records [][]string) (*Table, error) {
	rows := make([]Row, 0, len(records))
	for i, record := range records {
		if len(record) != len(columns) {
			return nil, fmt.Errorf("%w: table %s record %d has %d values, want %d", ErrRowWidth, name, i, len(record), len(columns))
		}

		row := make(Row, len(record))
		for j, cell := range record {
			if cell == "" {
				row[j] = Null()
			} else {
				row[j] = String(cell)
			}
		}
		rows = append(rows, row)
	}

	return New(name, columns, rows)
}

// Name returns the table name
func (t *Table) Name() string {
	return t.name
}

// WithName returns the same data under a different name
func (t *Table) WithName(name string) *Table {
	return &Table{name: name, columns: t.columns, index: t.index, rows: t.rows}
}

// Columns returns a copy of the column names in order
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// HasColumn reports whether the table has the named column
func (t *Table) HasColumn(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Require returns ErrMissingColumn naming the first absent column
func (t *Table) Require(cols ...string) error {
	for _, col := range cols {
		if !t.HasColumn(col) {
			return fmt.Errorf("%w: %s in table %s", ErrMissingColumn, col, t.name)
		}
	}

	return nil
}

// Row returns a view of the i-th row
func (t *Table) Row(i int) RowView {
	return RowView{table: t, row: t.rows[i]}
}

// Column returns a copy of the named column's values
func (t *Table) Column(col string) ([]Value, error) {
	idx, ok := t.index[col]
	if !ok {
		return nil, fmt.Errorf("%w: %s in table %s", ErrMissingColumn, col, t.name)
	}

	values := make([]Value, len(t.rows))
	for i, row := range t.rows {
		values[i] = row[idx]
	}

	return values, nil
}

// Select projects the table onto the given columns, in the given order
func (t *Table) Select(cols ...string) (*Table, error) {
	idxs := make([]int, len(cols))
	for i, col := range cols {
		idx, ok := t.index[col]
		if !ok {
			return nil, fmt.Errorf("%w: %s in table %s", ErrMissingColumn, col, t.name)
		}
		idxs[i] = idx
	}

	rows := make([]Row, len(t.rows))
	for i, row := range t.rows {
		out := make(Row, len(idxs))
		for j, idx := range idxs {
			out[j] = row[idx]
		}
		rows[i] = out
	}

	return New(t.name, cols, rows)
}

// Rename renames columns using the mapping old -> new
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	cols := t.Columns()
	for old, renamed := range mapping {
		idx, ok := t.index[old]
		if !ok {
			return nil, fmt.Errorf("%w: %s in table %s", ErrMissingColumn, old, t.name)
		}
		cols[idx] = renamed
	}

	return New(t.name, cols, t.rows)
}

// Qualify prefixes every column with "alias." so joined columns stay addressable
// by source without relying on collision suffixes
func (t *Table) Qualify(alias string) *Table {
	cols := make([]string, len(t.columns))
	index := make(map[string]int, len(t.columns))
	for i, col := range t.columns {
		cols[i] = Qualified(alias, col)
		index[cols[i]] = i
	}

	return &Table{name: t.name, columns: cols, index: index, rows: t.rows}
}

// Qualified returns the column name col carries after Qualify(alias)
func Qualified(alias, col string) string {
	return alias + "." + col
}

// WithColumn returns a table where the named column holds fn(row) for every row.
// An existing column is replaced in place; a new one is appended.
func (t *Table) WithColumn(col string, fn func(RowView) Value) *Table {
	values := make([]Value, len(t.rows))
	for i, row := range t.rows {
		values[i] = fn(RowView{table: t, row: row})
	}

	// lengths always match, so the error is unreachable
	out, _ := t.ReplaceColumn(col, values)

	return out
}

// ReplaceColumn returns a table where the named column holds values.
// An existing column is replaced in place; a new one is appended.
func (t *Table) ReplaceColumn(col string, values []Value) (*Table, error) {
	if len(values) != len(t.rows) {
		return nil, fmt.Errorf("%w: column %s has %d values, table %s has %d rows", ErrRowWidth, col, len(values), t.name, len(t.rows))
	}

	idx, exists := t.index[col]
	cols := t.columns
	if !exists {
		cols = append(t.Columns(), col)
		idx = len(cols) - 1
	}

	rows := make([]Row, len(t.rows))
	for i, row := range t.rows {
		out := make(Row, len(cols))
		copy(out, row)
		out[idx] = values[i]
		rows[i] = out
	}

	return New(t.name, cols, rows)
}

// Filter keeps the rows for which keep returns true
func (t *Table) Filter(keep func(RowView) bool) *Table {
	rows := make([]Row, 0, len(t.rows))
	for _, row := range t.rows {
		if keep(RowView{table: t, row: row}) {
			rows = append(rows, row)
		}
	}

	return &Table{name: t.name, columns: t.columns, index: t.index, rows: rows}
}

// Concat appends the rows of other. Both tables must have identical columns.
func (t *Table) Concat(other *Table) (*Table, error) {
	if strings.Join(t.columns, "\x1f") != strings.Join(other.columns, "\x1f") {
		return nil, fmt.Errorf("%w: cannot concat %s and %s", ErrSchemaMismatch, t.name, other.name)
	}

	rows := make([]Row, 0, len(t.rows)+len(other.rows))
	rows = append(rows, t.rows...)
	rows = append(rows, other.rows...)

	return &Table{name: t.name, columns: t.columns, index: t.index, rows: rows}, nil
}

// Distinct drops repeated rows, keeping the first occurrence
func (t *Table) Distinct() *Table {
	seen := make(map[string]struct{}, len(t.rows))
	rows := make([]Row, 0, len(t.rows))

	for _, row := range t.rows {
		var b strings.Builder
		for _, v := range row {
			b.WriteByte(byte('0' + v.kind))
			b.WriteString(v.String())
			b.WriteByte(0x1f)
		}

		key := b.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, row)
	}

	return &Table{name: t.name, columns: t.columns, index: t.index, rows: rows}
}

// SortBy orders rows by the text of the named column. Missing values sort last; ties keep their order.
func (t *Table) SortBy(col string) (*Table, error) {
	idx, ok := t.index[col]
	if !ok {
		return nil, fmt.Errorf("%w: %s in table %s", ErrMissingColumn, col, t.name)
	}

	rows := append([]Row(nil), t.rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][idx], rows[j][idx]
		if a.IsMissing() != b.IsMissing() {
			return !a.IsMissing()
		}

		return a.String() < b.String()
	})

	return &Table{name: t.name, columns: t.columns, index: t.index, rows: rows}, nil
}

// RowView gives read access to one row by column name
type RowView struct {
	table *Table
	row   Row
}

// Get returns the named cell, or null when the column does not exist
func (r RowView) Get(col string) Value {
	idx, ok := r.table.index[col]
	if !ok {
		return Null()
	}

	return r.row[idx]
}

// Values returns a copy of the row's cells
func (r RowView) Values() Row {
	return append(Row(nil), r.row...)
}
