package kmath

import "math"

// SimpsonSubintervalWidth is the target width of one Simpson sub-interval
// in milliseconds.
const SimpsonSubintervalWidth = 150.0

// Simpson integrates f over [a, b] with the composite Simpson rule using n
// sub-intervals. n is rounded up to the next even number, minimum 2.
// f is evaluated at ascending points from a to b.
func Simpson(f func(float64) float64, a, b float64, n int) float64 {
	if n < 2 {
		n = 2
	}
	if n%2 == 1 {
		n++
	}
	if a == b {
		return 0
	}
	h := (b - a) / float64(n)
	sum := f(a)
	for i := 1; i < n; i++ {
		x := a + float64(i)*h
		if i%2 == 1 {
			sum += 4 * f(x)
		} else {
			sum += 2 * f(x)
		}
	}
	sum += f(b)
	return sum * h / 3
}

// Subintervals returns max(2, 2*ceil(dtMillis/150)).
func Subintervals(dtMillis float64) int {
	return max(2, 2*int(math.Ceil(dtMillis/SimpsonSubintervalWidth)))
}
