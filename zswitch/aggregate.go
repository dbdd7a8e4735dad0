package zswitch

import (
	"math"
	"sort"
)

// Spread returns max - min of samples.
func Spread(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	lo, hi := samples[0], samples[0]
	for _, s := range samples[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	return hi - lo
}

// Mean returns the arithmetic mean of samples.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

func sorted(samples []float64) []float64 {
	s := make([]float64, len(samples))
	copy(s, samples)
	sort.Float64s(s)
	return s
}

// Median returns the median of samples; for an even count it is the mean
// of the two middle values.
func Median(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return math.NaN()
	}
	s := sorted(samples)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// TrimmedMean drops trim values from each end of the sorted samples and
// averages the rest. A trim of zero is the plain mean; if 2*trim >= len
// it falls back to the median of all samples.
func TrimmedMean(samples []float64, trim int) float64 {
	n := len(samples)
	if trim <= 0 {
		return Mean(samples)
	}
	if 2*trim >= n {
		return Median(samples)
	}
	return Mean(sorted(samples)[trim : n-trim])
}

// Reduce aggregates samples with the given method.
func Reduce(samples []float64, m Method, trim int) float64 {
	switch m {
	case MethodAverage:
		return Mean(samples)
	case MethodTrimmed:
		return TrimmedMean(samples, trim)
	}
	return Median(samples)
}
