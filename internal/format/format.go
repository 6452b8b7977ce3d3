// Package format renders change values for axis ticks and bar labels.
package format

import (
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
)

// significantDigits matches the default precision of the "," number format.
const significantDigits = 12

// Number groups thousands with commas and prefixes "+" only when v > 0.
// Zero renders unsigned.
func Number(v float64) string {
	s := grouped(v)
	if v > 0 {
		return "+" + s
	}
	return s
}

func grouped(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		return "0"
	}

	// Round to 12 significant digits so float noise like 0.30000000000000004
	// reads as 0.3.
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', significantDigits, 64), 64)
	if err == nil {
		v = rounded
	}
	return humanize.Commaf(v)
}
