package table

import (
	"fmt"
	"strings"
)

// JoinKey pairs a left column with the right column it must equal
type JoinKey struct {
	Left  string
	Right string
}

// On is shorthand for a JoinKey
func On(left, right string) JoinKey {
	return JoinKey{Left: left, Right: right}
}

// LeftJoin keeps every row of t and appends the columns of right. A left row
// matching several right rows is repeated once per match; a left row matching
// none gets nulls. Key values are compared with Value.Key, so null keys never match.
// Column names must not collide; qualify the right table first.
func (t *Table) LeftJoin(right *Table, keys ...JoinKey) (*Table, error) {
	joined, _, err := t.JoinWhere(right, func(RowView) bool { return true }, keys...)

	return joined, err
}

// JoinWhere is LeftJoin followed by Filter(keep). It also returns how many rows
// of t have no joined row left, which input-minus-output cannot tell once a
// row has matched several right rows.
func (t *Table) JoinWhere(right *Table, keep func(RowView) bool, keys ...JoinKey) (*Table, int, error) {
	leftIdx, rightIdx, err := t.resolveKeys(right, keys)
	if err != nil {
		return nil, 0, err
	}

	cols := make([]string, 0, len(t.columns)+len(right.columns))
	cols = append(cols, t.columns...)
	for _, col := range right.columns {
		if t.HasColumn(col) {
			return nil, 0, fmt.Errorf("%w: %s present in both %s and %s", ErrDuplicateColumn, col, t.name, right.name)
		}
		cols = append(cols, col)
	}

	out, err := New(t.name, cols, nil)
	if err != nil {
		return nil, 0, err
	}

	lookup := indexRows(right.rows, rightIdx)
	nulls := make(Row, len(right.columns))

	rows := make([]Row, 0, len(t.rows))
	unmatched := 0

	for _, row := range t.rows {
		candidates := []Row{nulls}
		if key, ok := compositeKey(row, leftIdx); ok && len(lookup[key]) > 0 {
			candidates = lookup[key]
		}

		kept := 0
		for _, match := range candidates {
			joined := concatRow(row, match)
			if keep(RowView{table: out, row: joined}) {
				rows = append(rows, joined)
				kept++
			}
		}

		if kept == 0 {
			unmatched++
		}
	}

	out.rows = rows

	return out, unmatched, nil
}

// OuterJoin performs a full outer join on a column both tables share. The key
// column appears once, holding whichever side's value is present. Other columns
// present on both sides are renamed with leftSuffix and rightSuffix.
func (t *Table) OuterJoin(right *Table, key, leftSuffix, rightSuffix string) (*Table, error) {
	leftKey, ok := t.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s in table %s", ErrMissingColumn, key, t.name)
	}
	rightKey, ok := right.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s in table %s", ErrMissingColumn, key, right.name)
	}

	cols := []string{key}
	leftCols := make([]int, 0, len(t.columns))
	for i, col := range t.columns {
		if i == leftKey {
			continue
		}
		if right.HasColumn(col) {
			col += leftSuffix
		}
		cols = append(cols, col)
		leftCols = append(leftCols, i)
	}

	rightCols := make([]int, 0, len(right.columns))
	for i, col := range right.columns {
		if i == rightKey {
			continue
		}
		if t.HasColumn(col) {
			col += rightSuffix
		}
		cols = append(cols, col)
		rightCols = append(rightCols, i)
	}

	build := func(keyValue Value, left, rightRow Row) Row {
		out := make(Row, 0, len(cols))
		out = append(out, keyValue)
		for _, i := range leftCols {
			if left == nil {
				out = append(out, Null())
			} else {
				out = append(out, left[i])
			}
		}
		for _, i := range rightCols {
			if rightRow == nil {
				out = append(out, Null())
			} else {
				out = append(out, rightRow[i])
			}
		}

		return out
	}

	lookup := indexRows(right.rows, []int{rightKey})
	matched := make(map[string]bool, len(lookup))

	rows := make([]Row, 0, len(t.rows)+len(right.rows))
	for _, row := range t.rows {
		k, ok := compositeKey(row, []int{leftKey})
		matches := lookup[k]
		if !ok || len(matches) == 0 {
			rows = append(rows, build(row[leftKey], row, nil))
			continue
		}

		matched[k] = true
		for _, match := range matches {
			rows = append(rows, build(row[leftKey], row, match))
		}
	}

	for _, row := range right.rows {
		k, ok := compositeKey(row, []int{rightKey})
		if ok && matched[k] {
			continue
		}
		rows = append(rows, build(row[rightKey], nil, row))
	}

	return New(t.name, cols, rows)
}

func (t *Table) resolveKeys(right *Table, keys []JoinKey) ([]int, []int, error) {
	leftIdx := make([]int, len(keys))
	rightIdx := make([]int, len(keys))

	for i, key := range keys {
		l, ok := t.index[key.Left]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s in table %s", ErrMissingColumn, key.Left, t.name)
		}
		r, ok := right.index[key.Right]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s in table %s", ErrMissingColumn, key.Right, right.name)
		}
		leftIdx[i], rightIdx[i] = l, r
	}

	return leftIdx, rightIdx, nil
}

func indexRows(rows []Row, idx []int) map[string][]Row {
	lookup := make(map[string][]Row, len(rows))
	for _, row := range rows {
		key, ok := compositeKey(row, idx)
		if !ok {
			continue
		}
		lookup[key] = append(lookup[key], row)
	}

	return lookup
}

func compositeKey(row Row, idx []int) (string, bool) {
	parts := make([]string, len(idx))
	for i, j := range idx {
		part, ok := row[j].Key()
		if !ok {
			return "", false
		}
		parts[i] = part
	}

	return strings.Join(parts, "\x1f"), true
}

func concatRow(a, b Row) Row {
	out := make(Row, 0, len(a)+len(b))
	out = append(out, a...)

	return append(out, b...)
}
