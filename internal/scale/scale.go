// Package scale maps municipalities to vertical bands and change values to
// horizontal positions.
package scale

import "math"

// Padding is the inner and outer band padding, as a fraction of the step.
const Padding = 0.3

// Band maps discrete keys onto evenly spaced, padded intervals of a range.
type Band struct {
	index     map[string]int
	domain    []string
	start     float64
	step      float64
	bandwidth float64
}

// NewBand builds a band scale over keys (duplicates collapse onto their first
// occurrence) spanning [r0, r1] with Padding applied inside and outside, and
// the bands centred in the range.
func NewBand(keys []string, r0, r1 float64) *Band {
	b := &Band{index: make(map[string]int, len(keys))}
	for _, k := range keys {
		if _, ok := b.index[k]; ok {
			continue
		}
		b.index[k] = len(b.domain)
		b.domain = append(b.domain, k)
	}

	n := float64(len(b.domain))
	b.step = (r1 - r0) / math.Max(1, n-Padding+Padding*2)
	b.start = r0 + (r1-r0-b.step*(n-Padding))*0.5
	b.bandwidth = b.step * (1 - Padding)
	return b
}

// At returns the start of key's band, or NaN for keys outside the domain.
func (b *Band) At(key string) float64 {
	i, ok := b.index[key]
	if !ok {
		return math.NaN()
	}
	return b.start + b.step*float64(i)
}

// Center returns the middle of key's band.
func (b *Band) Center(key string) float64 {
	return b.At(key) + b.bandwidth/2
}

// Bandwidth is the extent of each band.
func (b *Band) Bandwidth() float64 { return b.bandwidth }

// Step is the distance between the starts of adjacent bands.
func (b *Band) Step() float64 { return b.step }

// Domain returns the unique keys in band order.
func (b *Band) Domain() []string {
	return append([]string(nil), b.domain...)
}

// Linear maps a continuous domain onto a continuous range.
type Linear struct {
	d0, d1 float64
	r0, r1 float64
}

// NewLinear returns a scale mapping [d0, d1] onto [r0, r1].
func NewLinear(d0, d1, r0, r1 float64) *Linear {
	return &Linear{d0: d0, d1: d1, r0: r0, r1: r1}
}

// Map returns the range position of v. A degenerate domain maps every input
// to the middle of the range; a NaN domain maps everything to NaN.
func (l *Linear) Map(v float64) float64 {
	span := l.d1 - l.d0
	var t float64
	switch {
	case math.IsNaN(span):
		t = math.NaN()
	case span == 0:
		t = 0.5
	default:
		t = (v - l.d0) / span
	}
	return l.r0 + t*(l.r1-l.r0)
}

// Domain returns the input extent.
func (l *Linear) Domain() (float64, float64) { return l.d0, l.d1 }

// Range returns the output extent.
func (l *Linear) Range() (float64, float64) { return l.r0, l.r1 }

// Ticks returns round values inside the domain, about count of them.
func (l *Linear) Ticks(count int) []float64 {
	return Ticks(l.d0, l.d1, count)
}

// ZeroAnchoredDomain returns [min(0, min(values)), max(0, max(values))]. NaN
// values are skipped; with no numeric values the result is [NaN, NaN].
func ZeroAnchoredDomain(values []float64) (float64, float64) {
	lo, hi := math.NaN(), math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(lo) || v < lo {
			lo = v
		}
		if math.IsNaN(hi) || v > hi {
			hi = v
		}
	}
	// math.Min/Max propagate NaN, which keeps an empty selection empty.
	return math.Min(0, lo), math.Max(0, hi)
}
