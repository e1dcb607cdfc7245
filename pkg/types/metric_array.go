package types

import (
	"math"
	"sort"
)

// MetricArray accumulates the per-record values of a RECORD metric across a
// run. Growth past the initial capacity is left to Go's built-in append
// (amortized O(1)); the type does no capacity doubling of its own.
type MetricArray struct {
	data []float64
	sum  float64
}

// NewMetricArray builds a MetricArray pre-sized to initialCapacity. Panics
// if initialCapacity <= 0.
func NewMetricArray(initialCapacity int) *MetricArray {
	if initialCapacity <= 0 {
		panic("aiperf: initial capacity must be greater than 0")
	}
	return &MetricArray{data: make([]float64, 0, initialCapacity)}
}

// Append adds a single value to the array.
func (a *MetricArray) Append(value float64) {
	a.data = append(a.data, value)
	a.sum += value
}

// Extend adds every value in values to the array.
func (a *MetricArray) Extend(values []float64) {
	a.data = append(a.data, values...)
	for _, v := range values {
		a.sum += v
	}
}

// Sum returns the running sum of every value appended so far.
func (a *MetricArray) Sum() float64 { return a.sum }

// Len returns the number of values currently stored.
func (a *MetricArray) Len() int { return len(a.data) }

// Data returns the live slice of stored values, in insertion order.
func (a *MetricArray) Data() []float64 { return a.data }

// percentile computes the p-th percentile (0-100) of a pre-sorted slice
// using linear interpolation between closest ranks, matching numpy's
// default ("linear") interpolation method.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// ToResult computes the full statistical summary of the array's current
// contents: min, max, mean, standard deviation, and percentiles, as a
// MetricResult row.
func (a *MetricArray) ToResult(tag, header, unit string) MetricResult {
	n := len(a.data)
	sorted := make([]float64, n)
	copy(sorted, a.data)
	sort.Float64s(sorted)

	var min, max, mean, std float64
	if n > 0 {
		min, max = sorted[0], sorted[n-1]
		mean = a.sum / float64(n)
		var variance float64
		for _, v := range a.data {
			d := v - mean
			variance += d * d
		}
		variance /= float64(n)
		std = math.Sqrt(variance)
	}

	return MetricResult{
		Tag:    tag,
		Header: header,
		Unit:   unit,
		Avg:    mean,
		Min:    &min,
		Max:    &max,
		Std:    &std,
		P1:     percentile(sorted, 1),
		P5:     percentile(sorted, 5),
		P25:    percentile(sorted, 25),
		P50:    percentile(sorted, 50),
		P75:    percentile(sorted, 75),
		P90:    percentile(sorted, 90),
		P95:    percentile(sorted, 95),
		P99:    percentile(sorted, 99),
		Count:  int64(n),
	}
}
