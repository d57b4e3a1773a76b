// Package reconcile decides the authoritative receipt total from the
// extracted subtotal, tax and total candidates.
package reconcile

import "math"

const (
	absTolerance = 0.05 // five cents
	relTolerance = 0.01 // one percent of the expected total
)

// Result is the outcome of Reconcile.
type Result struct {
	Total      *float64
	Expected   *float64 // subtotal + tax, when both were present
	Reconciled bool
}

// Reconcile accepts subtotal+tax as the total when no total was read or when
// the read total agrees within max(0.05, 1% of expected). Otherwise the read
// total is kept and the result is not reconciled.
func Reconcile(subtotal, tax, total *float64) Result {
	if subtotal == nil || tax == nil {
		return Result{Total: total}
	}
	expected := roundCents(*subtotal + *tax)
	res := Result{Total: total, Expected: &expected}
	if total == nil || Within(expected, *total) {
		res.Total = &expected
		res.Reconciled = true
	}
	return res
}

// Within reports whether got is within tolerance of expected.
func Within(expected, got float64) bool {
	tol := math.Max(absTolerance, math.Abs(expected)*relTolerance)
	return math.Abs(expected-got) <= tol+1e-9
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
