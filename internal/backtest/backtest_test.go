package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meanrevert/internal/ledger"
	"meanrevert/internal/market"
	"meanrevert/internal/risk"
	"meanrevert/internal/signal"
)

func baseConfig() Config {
	return Config{
		Symbol:   "MES",
		Size:     1,
		Lookback: 4, // [100,100,100,95] gives z = -1.5; 3 bars cannot reach |z| = 1.5
		Signal:   signal.Config{ZEntry: 1.5, ZExit: 0.5},
		Risk:     risk.Config{MaxDailyLoss: 1e9, MaxConsecutiveLosses: 1000, MaxDailyTrades: 1000},
		Ledger:   ledger.Config{ContractMultiplier: 5},
	}
}

func barSeq(base time.Time, closes []float64) []market.Bar {
	out := make([]market.Bar, len(closes))
	for i, c := range closes {
		out[i] = market.Bar{Time: base.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return out
}

func TestRunProducesTradeAndEquityCurve(t *testing.T) {
	bars := barSeq(time.Now().UTC(), []float64{100, 100, 100, 100, 95, 100})
	d := NewDriver(zerolog.Nop())
	res, err := d.Run(context.Background(), bars, baseConfig())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ledger.ReasonZExit, res.Trades[0].CloseReason)
	assert.Len(t, res.EquityCurve, len(bars))
}

func TestRunIsDeterministicAcrossIdenticalCalls(t *testing.T) {
	bars := barSeq(time.Now().UTC(), []float64{100, 100, 100, 100, 95, 100, 100, 100, 105, 100})
	d := NewDriver(zerolog.Nop())
	cfg := baseConfig()
	r1, err := d.Run(context.Background(), bars, cfg)
	require.NoError(t, err)
	r2, err := d.Run(context.Background(), bars, cfg)
	require.NoError(t, err)
	require.Equal(t, len(r1.Trades), len(r2.Trades))
	for i := range r1.Trades {
		assert.True(t, r1.Trades[i].RealizedPnL.Equal(r2.Trades[i].RealizedPnL))
		assert.Equal(t, r1.Trades[i].CloseReason, r2.Trades[i].CloseReason)
	}
	assert.Equal(t, r1.WinRate, r2.WinRate)
	assert.Equal(t, r1.MaxDrawdown, r2.MaxDrawdown)
}

// TestEquityCurveDoesNotDoubleCountClosedTrade guards against a trade's
// realized P&L being re-added into the running equity total on every idle
// bar after it closes (rather than only the bar it actually closed on),
// which would corrupt EquityCurve/MaxDrawdown for any run with 2+ trades
// separated by bars with no position open.
func TestEquityCurveDoesNotDoubleCountClosedTrade(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 95, 100, 100, 100, 100, 100}
	bars := barSeq(time.Now().UTC(), closes)
	d := NewDriver(zerolog.Nop())
	res, err := d.Run(context.Background(), bars, baseConfig())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	closePnL, _ := res.Trades[0].RealizedPnL.Float64()
	closeIdx := 5 // the bar the single trade exits on
	for i := closeIdx; i < len(res.EquityCurve); i++ {
		assert.InDelta(t, closePnL, res.EquityCurve[i].Equity, 1e-9,
			"equity at idle bar %d should stay flat at the realized total, not keep accumulating", i)
	}
	assert.Equal(t, 0.0, res.MaxDrawdown)
}

func TestStopLossTriggersBeforeSignalExit(t *testing.T) {
	base := time.Now().UTC()
	bars := []market.Bar{
		{Time: base, Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000},
		{Time: base.Add(time.Minute), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000},
		{Time: base.Add(2 * time.Minute), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000},
		{Time: base.Add(3 * time.Minute), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000},
		// Strong dip triggers EnterLong at close 95.
		{Time: base.Add(4 * time.Minute), Open: 100, High: 100, Low: 94, Close: 95, Volume: 1000},
		// Next bar's range dips well below the entry, hitting the stop
		// before the z-score ever recovers toward ZExit.
		{Time: base.Add(5 * time.Minute), Open: 95, High: 96, Low: 80, Close: 94, Volume: 1000},
	}
	cfg := baseConfig()
	cfg.StopLossAmount = 10 // $10 = 2 points * size 1 * multiplier 5
	d := NewDriver(zerolog.Nop())
	res, err := d.Run(context.Background(), bars, cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ledger.ReasonStopLoss, res.Trades[0].CloseReason)
}

func TestLoadCSVParsesFlexibleHeaders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	content := "Time,Open,High,Low,Close,Volume\n" +
		"2026-01-01T00:00:00Z,100,101,99,100.5,1000\n" +
		"2026-01-01T00:01:00Z,100.5,102,100,101,1200\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	bars, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 100.5, bars[0].Close)
	assert.True(t, bars[0].Time.Before(bars[1].Time))
}

func TestLoadCSVAcceptsUnixSecondsTimestamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	content := "timestamp,open,high,low,close,vol\n1700000000,10,11,9,10.5,5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	bars, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(1700000000), bars[0].Time.Unix())
}
