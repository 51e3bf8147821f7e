// Package stats implements a numerically stable streaming Z-score over a
// fixed-size sliding window of prices.
//
// The naive textbook identity Var(x) = E[x^2] - E[x]^2 loses essentially all
// significant digits once the window's variance is small relative to the
// square of its mean — exactly the regime real asset prices sit in (values
// near 6000 with intra-window deviations under 1). This package instead uses
// the shifted-data (assumed-mean) formulation: on first admission it anchors
// on the first observed price K, then tracks running sums of (x-K) and
// (x-K)^2 over the window. Centering the arithmetic on K keeps every term in
// those sums comparable in magnitude to the deviations themselves, so the
// subtraction in the variance formula never has to cancel fourteen digits of
// a six-figure number.
package stats

import (
	"errors"
	"math"
)

// ErrInvalidLookback is returned by New when L < 2.
var ErrInvalidLookback = errors.New("stats: lookback must be >= 2")

// ErrNonFinite is returned by Update when given a NaN or infinite price.
var ErrNonFinite = errors.New("stats: price must be finite")

// varianceEpsilon is the tolerance below which variance is treated as zero
// and Z is reported as exactly 0 rather than divided through.
const varianceEpsilon = 1e-12

// RollingStats maintains the shifted-data sums for a fixed-capacity sliding
// window and derives mean, (sample) variance, std, and Z-score from them.
//
// Not safe for concurrent use; callers that share one across goroutines must
// serialize access themselves (the Engine does this by construction — see
// internal/engine).
type RollingStats struct {
	lookback int
	window   []float64 // raw prices currently in the window, oldest first
	anchor   float64   // K: the first admitted price
	hasAnchor bool
	sum      float64 // S = sum(x_i - K)
	sumSq    float64 // Q = sum((x_i - K)^2)
}

// New constructs a RollingStats with a fixed window capacity L >= 2.
func New(lookback int) (*RollingStats, error) {
	if lookback < 2 {
		return nil, ErrInvalidLookback
	}
	return &RollingStats{
		lookback: lookback,
		window:   make([]float64, 0, lookback),
	}, nil
}

// Reset empties the window and drops all history. IsReady becomes false.
func (r *RollingStats) Reset() {
	r.window = r.window[:0]
	r.hasAnchor = false
	r.anchor = 0
	r.sum = 0
	r.sumSq = 0
}

// IsReady reports whether the window holds L observations.
func (r *RollingStats) IsReady() bool {
	return len(r.window) == r.lookback
}

// Count returns the number of observations currently in the window.
func (r *RollingStats) Count() int {
	return len(r.window)
}

// Lookback returns the configured window capacity L.
func (r *RollingStats) Lookback() int {
	return r.lookback
}

// Mean returns K + S/N. Returns 0 if the window is empty.
func (r *RollingStats) Mean() float64 {
	n := len(r.window)
	if n == 0 {
		return 0
	}
	return r.anchor + r.sum/float64(n)
}

// Variance returns the sample variance (Q - S^2/N) / (N-1), clamped at zero.
// Returns 0 if fewer than 2 observations are present.
func (r *RollingStats) Variance() float64 {
	n := len(r.window)
	if n < 2 {
		return 0
	}
	nf := float64(n)
	v := (r.sumSq - (r.sum*r.sum)/nf) / (nf - 1)
	return math.Max(v, 0)
}

// Std returns sqrt(Variance()).
func (r *RollingStats) Std() float64 {
	return math.Sqrt(r.Variance())
}

// Update admits price into the window, evicting the oldest observation once
// the window is at capacity, and returns the post-update Z-score once the
// window IsReady. Before the window is full it still updates the running
// sums (so the window is correctly seeded) but returns ok=false.
//
// NaN or non-finite prices are rejected outright — per spec, numerical
// garbage must never silently enter the window.
func (r *RollingStats) Update(price float64) (z float64, ok bool, err error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, false, ErrNonFinite
	}

	if !r.hasAnchor {
		r.anchor = price
		r.hasAnchor = true
	}

	d := price - r.anchor
	r.sum += d
	r.sumSq += d * d
	r.window = append(r.window, price)

	if len(r.window) > r.lookback {
		evicted := r.window[0]
		r.window = r.window[1:]
		de := evicted - r.anchor
		r.sum -= de
		r.sumSq -= de * de
	}

	if !r.IsReady() {
		return 0, false, nil
	}

	return r.zscore(price), true, nil
}

// zscore computes (x - mean) / std, returning 0 when std is within
// varianceEpsilon of zero (a window of identical values) instead of dividing
// by (near-)zero.
func (r *RollingStats) zscore(price float64) float64 {
	variance := r.Variance()
	if variance <= varianceEpsilon {
		return 0
	}
	return (price - r.Mean()) / math.Sqrt(variance)
}
