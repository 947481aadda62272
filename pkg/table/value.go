// Package table provides the immutable tabular values the pipeline passes between steps
package table

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies what a Value holds
type Kind uint8

const (
	// KindNull is a missing cell
	KindNull Kind = iota
	// KindString is raw text, usually straight from a CSV cell
	KindString
	// KindNumber is a float64, possibly NaN
	KindNumber
)

// Value is a single cell
type Value struct {
	kind Kind
	str  string
	num  float64
}

// Null returns a missing value
func Null() Value {
	return Value{}
}

// String returns a text value
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number returns a numeric value
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// NaN returns a numeric missing value
func NaN() Value {
	return Number(math.NaN())
}

// Kind returns the kind of the value
func (v Value) Kind() Kind {
	return v.kind
}

// IsMissing reports whether the value is null or NaN
func (v Value) IsMissing() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		return math.IsNaN(v.num)
	default:
		return false
	}
}

// Float returns the numeric content of the value. Text is parsed as a float.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, !math.IsNaN(v.num)
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}

		return f, true
	default:
		return 0, false
	}
}

// String renders the value the way it is written to CSV; missing values are empty
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if math.IsNaN(v.num) {
			return ""
		}

		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Equal compares two values by kind and content. NaN never equals anything.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	default:
		return v.num == other.num
	}
}

// Key returns the normalized join key of the value and whether it can be joined on.
// Integral numbers render without a fractional part so that "123", "123.0" and
// Number(123) all join.
func (v Value) Key() (string, bool) {
	if v.IsMissing() {
		return "", false
	}

	if v.kind == KindNumber {
		return formatKeyNumber(v.num), true
	}

	s := strings.TrimSpace(v.str)
	if s == "" {
		return "", false
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) {
		return formatKeyNumber(f), true
	}

	return s, true
}

func formatKeyNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}

	return strconv.FormatFloat(f, 'f', -1, 64)
}
