package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyCSV is returned when a CSV body has no header row
var ErrEmptyCSV = errors.New("csv has no header row")

// ReadCSV parses a CSV body with a header row. Empty cells become null and
// short records are padded with nulls.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", ErrEmptyCSV, name)
		}

		return nil, fmt.Errorf("failed to read header of %s: %w", name, err)
	}

	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}

		if len(record) > len(columns) {
			return nil, fmt.Errorf("%w: table %s record %d has %d values, want %d", ErrRowWidth, name, len(records), len(record), len(columns))
		}
		for len(record) < len(columns) {
			record = append(record, "")
		}

		records = append(records, record)
	}

	return FromRecords(name, columns, records)
}

// WriteCSV writes the table with a header row
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.columns); err != nil {
		return err
	}

	record := make([]string, len(t.columns))
	for _, row := range t.rows {
		for i, v := range row {
			record[i] = v.String()
		}

		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()

	return writer.Error()
}
