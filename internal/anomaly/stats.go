package anomaly

import "math"

// mean returns the arithmetic mean of values. Callers guarantee len > 0.
func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdev returns the sample standard deviation (n-1 denominator).
// Callers guarantee len >= 2.
func sampleStdev(values []float64, avg float64) float64 {
	sumSquares := 0.0
	for _, v := range values {
		d := v - avg
		sumSquares += d * d
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}
