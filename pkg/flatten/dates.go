package flatten

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/mlbdfs/pkg/table"
)

const compactDateLayout = "20060102"

// ParseGameDate converts a slate date encoded as YYYYMMDD into YYYY-MM-DD
func ParseGameDate(v table.Value) (string, error) {
	key, ok := v.Key()
	if !ok || len(key) != len(compactDateLayout) {
		return "", fmt.Errorf("%w: %q", ErrInvalidGameDate, v.String())
	}

	d, err := time.Parse(compactDateLayout, key)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidGameDate, v.String())
	}

	return d.Format(DateLayout), nil
}

// parseResultDate normalizes a daily result date. Missing dates stay missing.
func parseResultDate(v table.Value) (table.Value, error) {
	if v.IsMissing() {
		return table.Null(), nil
	}

	raw := strings.TrimSpace(v.String())
	if raw == "" {
		return table.Null(), nil
	}

	for _, layout := range []string{DateLayout, compactDateLayout} {
		if d, err := time.Parse(layout, raw); err == nil {
			return table.String(d.Format(DateLayout)), nil
		}
	}

	// Numeric cells such as 20180612.0
	if key, ok := v.Key(); ok {
		if d, err := time.Parse(compactDateLayout, key); err == nil {
			return table.String(d.Format(DateLayout)), nil
		}
	}

	return table.Null(), fmt.Errorf("%w: %q", ErrInvalidResultDate, raw)
}

// ResolveHand returns the side a batter hits from against a pitcher. Switch
// hitters ("B") bat opposite the pitcher's throwing hand.
func ResolveHand(hand, pitcherHand string) string {
	if hand != "B" {
		return hand
	}

	switch pitcherHand {
	case "L":
		return "R"
	case "R":
		return "L"
	default:
		return hand
	}
}
