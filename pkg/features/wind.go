package features

import "github.com/ethpandaops/mlbdfs/pkg/table"

//nolint:gochecknoglobals // Fixed lookup of wind descriptions
var windDirections = map[string]float64{
	"Out to RF":  1,
	"Out to CF":  1,
	"Out to LF":  1,
	"In from LF": -1,
	"In from RF": -1,
	"In from CF": -1,
}

// ParseWindDirection encodes wind descriptions: blowing out is 1, blowing in is -1
// and anything else, including cross winds and domes, is 0
func ParseWindDirection(values []table.Value) []table.Value {
	out := make([]table.Value, len(values))
	for i, v := range values {
		out[i] = table.Number(WindDirection(v.String()))
	}

	return out
}

// WindDirection encodes a single wind description
func WindDirection(desc string) float64 {
	return windDirections[desc]
}
