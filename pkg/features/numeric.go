// Package features cleans raw feature columns into numbers a model can consume
package features

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ethpandaops/mlbdfs/pkg/table"
)

// ToNumeric strips every character that is not a digit or a decimal point from
// text values, parses what remains and fills unparseable values with the mean of
// the parsed ones. Values that are already numbers are kept as they are, so an
// encoded -1 keeps its sign. A column with nothing parseable comes back as all NaN.
func ToNumeric(values []table.Value) []table.Value {
	parsed := make([]float64, len(values))
	ok := make([]bool, len(values))

	var (
		sum   float64
		count int
	)

	for i, v := range values {
		f, valid := parseStripped(v)
		if !valid {
			continue
		}

		parsed[i], ok[i] = f, true
		sum += f
		count++
	}

	mean := math.NaN()
	if count > 0 {
		mean = sum / float64(count)
	}

	out := make([]table.Value, len(values))
	for i := range values {
		if ok[i] {
			out[i] = table.Number(parsed[i])
		} else {
			out[i] = table.Number(mean)
		}
	}

	return out
}

// CleanColumns applies ToNumeric to each named column
func CleanColumns(t *table.Table, cols ...string) (*table.Table, error) {
	out := t
	for _, col := range cols {
		values, err := out.Column(col)
		if err != nil {
			return nil, fmt.Errorf("failed to clean feature: %w", err)
		}

		out, err = out.ReplaceColumn(col, ToNumeric(values))
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func parseStripped(v table.Value) (float64, bool) {
	if v.IsMissing() {
		return 0, false
	}

	if v.Kind() == table.KindNumber {
		return v.Float()
	}

	stripped := strings.Map(func(r rune) rune {
		if r == '.' || (r >= '0' && r <= '9') {
			return r
		}

		return -1
	}, v.String())

	if stripped == "" {
		return 0, false
	}

	f, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return 0, false
	}

	return f, true
}
