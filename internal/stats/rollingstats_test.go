package stats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsShortLookback(t *testing.T) {
	_, err := New(1)
	assert.ErrorIs(t, err, ErrInvalidLookback)
}

func TestNotReadyUntilWindowFull(t *testing.T) {
	rs, err := New(3)
	require.NoError(t, err)
	for _, p := range []float64{10, 11} {
		_, ok, err := rs.Update(p)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, rs.IsReady())
	}
	_, ok, err := rs.Update(12)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, rs.IsReady())
}

func TestIdenticalValuesYieldZeroVarianceAndZeroZ(t *testing.T) {
	rs, err := New(5)
	require.NoError(t, err)
	var z float64
	var ok bool
	for i := 0; i < 5; i++ {
		z, ok, err = rs.Update(100.0)
		require.NoError(t, err)
	}
	require.True(t, ok)
	assert.Equal(t, 0.0, rs.Variance())
	assert.Equal(t, 0.0, rs.Std())
	assert.Equal(t, 0.0, z)
	assert.False(t, math.IsNaN(z))
}

func TestResetDropsHistory(t *testing.T) {
	rs, err := New(4)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, _, _ = rs.Update(float64(i))
	}
	require.True(t, rs.IsReady())
	rs.Reset()
	assert.False(t, rs.IsReady())
	assert.Equal(t, 0, rs.Count())
}

func TestRejectsNonFinitePrice(t *testing.T) {
	rs, err := New(3)
	require.NoError(t, err)
	_, _, err = rs.Update(math.NaN())
	assert.ErrorIs(t, err, ErrNonFinite)
	_, _, err = rs.Update(math.Inf(1))
	assert.ErrorIs(t, err, ErrNonFinite)
}

// TestLargeOffsetSmallVariance is the numerical stress case from spec §8: a
// naive E[x^2]-E[x]^2 implementation loses all significant digits here. The
// shifted-data formulation must not.
func TestLargeOffsetSmallVariance(t *testing.T) {
	const L = 20
	rs, err := New(L)
	require.NoError(t, err)

	var window []float64
	var z float64
	var ok bool
	for i := 0; i < 40; i++ {
		u := float64(i % 7) // small integer deviations
		p := 1e10 + u
		window = append(window, u)
		z, ok, err = rs.Update(p)
		require.NoError(t, err)
		if len(window) > L {
			window = window[len(window)-L:]
		}
	}
	require.True(t, ok)

	exactMean := exactMean(window)
	exactStd := exactSampleStd(window)

	// Compare against the exact mean of the raw prices p_i = 1e10 + u_i: a
	// float64 near 1e10 has a spacing of ~1.9e-6, so the mean of the u_i
	// recovered by subtracting 1e10 again cannot be accurate to 1e-10.
	gotMean := rs.Mean()
	wantMean := 1e10 + exactMean
	if exactMean != 0 {
		relErr := math.Abs(gotMean-wantMean) / math.Abs(wantMean)
		assert.LessOrEqual(t, relErr, 1e-10)
	} else {
		assert.InDelta(t, wantMean, gotMean, 1e-6)
	}

	if exactStd != 0 {
		relErr := math.Abs(rs.Std()-exactStd) / exactStd
		assert.LessOrEqual(t, relErr, 1e-10)
	}
	assert.False(t, math.IsNaN(z))
}

func TestPingPongThenDropNumericalStress(t *testing.T) {
	const L = 20
	rs, err := New(L)
	require.NoError(t, err)

	var z float64
	var ok bool
	for i := 0; i < L; i++ {
		p := 6000.00
		if i%2 == 1 {
			p = 6000.25
		}
		z, ok, err = rs.Update(p)
		require.NoError(t, err)
	}
	require.True(t, ok)

	z, ok, err = rs.Update(5998.00)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Less(t, z, -2.0)
}

func TestVarianceNeverNegativeOverRandomWalk(t *testing.T) {
	rs, err := New(20)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(42))
	price := 100.0
	for i := 0; i < 10000; i++ {
		price += rng.NormFloat64() * 0.5
		if price <= 0 {
			price = 1
		}
		_, _, err := rs.Update(price)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rs.Variance(), 0.0)
		assert.False(t, math.IsNaN(rs.Std()))
	}
}

func exactMean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func exactSampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := exactMean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
