package scale

import "math"

var (
	e10 = math.Sqrt(50)
	e5  = math.Sqrt(10)
	e2  = math.Sqrt(2)
)

// Ticks returns evenly spaced values in [start, stop] using steps of 1, 2 or 5
// times a power of ten, picking the step that yields close to count values.
func Ticks(start, stop float64, count int) []float64 {
	if count <= 0 || math.IsNaN(start) || math.IsNaN(stop) {
		return nil
	}
	if start == stop {
		return []float64{start}
	}

	reverse := stop < start
	var i1, i2, inc float64
	if reverse {
		i1, i2, inc = tickSpec(stop, start, float64(count))
	} else {
		i1, i2, inc = tickSpec(start, stop, float64(count))
	}
	if !(i2 >= i1) {
		return nil
	}

	n := int(i2-i1) + 1
	ticks := make([]float64, n)
	for i := 0; i < n; i++ {
		k := i1 + float64(i)
		if reverse {
			k = i2 - float64(i)
		}
		if inc < 0 {
			// Divide by the inverse step to keep fractional ticks exact.
			ticks[i] = k / -inc
		} else {
			ticks[i] = k * inc
		}
	}
	return ticks
}

func tickSpec(start, stop, count float64) (i1, i2, inc float64) {
	step := (stop - start) / math.Max(0, count)
	power := math.Floor(math.Log10(step))
	e := step / math.Pow(10, power)

	factor := 1.0
	switch {
	case e >= e10:
		factor = 10
	case e >= e5:
		factor = 5
	case e >= e2:
		factor = 2
	}

	if power < 0 {
		inc = math.Pow(10, -power) / factor
		i1 = roundHalfUp(start * inc)
		i2 = roundHalfUp(stop * inc)
		if i1/inc < start {
			i1++
		}
		if i2/inc > stop {
			i2--
		}
		inc = -inc
	} else {
		inc = math.Pow(10, power) * factor
		i1 = roundHalfUp(start / inc)
		i2 = roundHalfUp(stop / inc)
		if i1*inc < start {
			i1++
		}
		if i2*inc > stop {
			i2--
		}
	}

	if i2 < i1 && 0.5 <= count && count < 2 {
		return tickSpec(start, stop, count*2)
	}
	return i1, i2, inc
}

func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
