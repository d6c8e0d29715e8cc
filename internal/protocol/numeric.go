// internal/protocol/numeric.go
package protocol

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseNumeric parses text as a plot value. Surrounding whitespace is
// ignored, but the remainder must be a complete decimal number: "12ohm",
// "0x1F" and "NaN" are rejected. Values outside the float64 range are
// not numeric either.
func ParseNumeric(text string) (float64, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, false
	}

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, false
	}

	f, _ := d.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
