package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meanrevert/internal/market"
	"meanrevert/internal/stats"
)

func newGen(t *testing.T, zEntry, zExit float64, minVol int64) (*Generator, *stats.RollingStats) {
	t.Helper()
	rs, err := stats.New(5)
	require.NoError(t, err)
	g, err := New(Config{ZEntry: zEntry, ZExit: zExit, MinVolume: minVol}, rs)
	require.NoError(t, err)
	return g, rs
}

func bar(close float64, vol int64) market.Bar {
	return market.Bar{Time: time.Now(), Open: close, High: close, Low: close, Close: close, Volume: vol}
}

func TestHoldUntilReady(t *testing.T) {
	g, _ := newGen(t, 1.5, 0.5, 0)
	for i := 0; i < 4; i++ {
		sig, err := g.OnBar(bar(100, 1000))
		require.NoError(t, err)
		assert.Equal(t, Hold, sig.Kind)
	}
}

func TestHoldBelowMinVolume(t *testing.T) {
	g, _ := newGen(t, 1.5, 0.5, 500)
	for i := 0; i < 5; i++ {
		_, _ = g.OnBar(bar(100, 1000))
	}
	sig, err := g.OnBar(bar(80, 100))
	require.NoError(t, err)
	assert.Equal(t, Hold, sig.Kind)
}

func TestEnterLongOnStrongNegativeZ(t *testing.T) {
	g, _ := newGen(t, 1.5, 0.5, 0)
	for i := 0; i < 4; i++ {
		_, _ = g.OnBar(bar(100, 1000))
	}
	sig, err := g.OnBar(bar(95, 1000))
	require.NoError(t, err)
	assert.Equal(t, EnterLong, sig.Kind)
	assert.LessOrEqual(t, sig.Z, -1.5)
}

func TestEnterShortOnStrongPositiveZ(t *testing.T) {
	g, _ := newGen(t, 1.5, 0.5, 0)
	for i := 0; i < 4; i++ {
		_, _ = g.OnBar(bar(100, 1000))
	}
	sig, err := g.OnBar(bar(105, 1000))
	require.NoError(t, err)
	assert.Equal(t, EnterShort, sig.Kind)
	assert.GreaterOrEqual(t, sig.Z, 1.5)
}

// TestHysteresisLongExit reproduces spec §8: after a long entry (here at
// z ≈ -1.79), signals stay Hold while z < -z_exit and flip to ExitLong exactly when
// z >= -z_exit.
func TestHysteresisLongExit(t *testing.T) {
	g, _ := newGen(t, 1.5, 0.5, 0)
	for i := 0; i < 4; i++ {
		_, _ = g.OnBar(bar(100, 1000))
	}
	sig, err := g.OnBar(bar(90, 1000))
	require.NoError(t, err)
	require.Equal(t, EnterLong, sig.Kind)

	g.SetPosition(Long)

	sig, err = g.OnBar(bar(89, 1000))
	require.NoError(t, err)
	assert.Equal(t, Hold, sig.Kind, "still strongly negative z, must hold while long")

	// Feed bars back toward the mean until z crosses -z_exit.
	var last Signal
	for i := 0; i < 10; i++ {
		last, err = g.OnBar(bar(100, 1000))
		require.NoError(t, err)
		if last.Z >= -0.5 {
			break
		}
		assert.Equal(t, Hold, last.Kind)
	}
	assert.Equal(t, ExitLong, last.Kind)
}

func TestBasicEntryExitScenario(t *testing.T) {
	// spec §8 scenario 1 with a 4-bar window: z_entry=1.5, z_exit=0.5,
	// closes [100,100,100,100,95,100]. At 95 the window [100,100,100,95]
	// gives z = -1.5; the next 100 gives z = +0.5. A 3-bar sample z-score
	// never reaches 1.5 in magnitude (its bound is 2/sqrt(3) ≈ 1.155).
	rs, err := stats.New(4)
	require.NoError(t, err)
	g, err := New(Config{ZEntry: 1.5, ZExit: 0.5, MinVolume: 0}, rs)
	require.NoError(t, err)

	closes := []float64{100, 100, 100, 100, 95, 100}
	var kinds []Kind
	for _, c := range closes {
		sig, err := g.OnBar(bar(c, 1000))
		require.NoError(t, err)
		kinds = append(kinds, sig.Kind)
		if sig.Kind == EnterLong {
			g.SetPosition(Long)
		}
		if sig.Kind == ExitLong {
			g.SetPosition(Flat)
		}
	}
	assert.Equal(t, EnterLong, kinds[4], "bar 5 (index 4) should enter long")
	assert.Equal(t, ExitLong, kinds[5], "bar 6 (index 5) should exit long")
}
