package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meanrevert/internal/ledger"
	"meanrevert/internal/signal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndQueryTrades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	trade := ledger.Trade{
		OpenTime:    now.Add(-time.Hour),
		CloseTime:   now,
		Side:        ledger.SideLong,
		Size:        1,
		EntryPrice:  100,
		ExitPrice:   101,
		RealizedPnL: decimal.NewFromFloat(5),
		ZOnEntry:    -2.1,
		ZOnExit:     -0.4,
		CloseReason: ledger.ReasonZExit,
	}
	require.NoError(t, s.AppendTrade(ctx, trade))

	recent, err := s.RecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ledger.SideLong, recent[0].Side)
	assert.True(t, recent[0].RealizedPnL.Equal(decimal.NewFromFloat(5)))

	inRange, err := s.TradesInRange(ctx, now.Add(-2*time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, inRange, 1)

	outOfRange, err := s.TradesInRange(ctx, now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, outOfRange)
}

func TestAppendSignalAndRecentCloses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-10 * time.Minute)

	for i, price := range []float64{100, 101, 102, 103} {
		sig := signal.Signal{Kind: signal.Hold, Timestamp: base.Add(time.Duration(i) * time.Minute), Price: price}
		require.NoError(t, s.AppendSignal(ctx, sig))
	}

	closes, err := s.RecentCloses(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{101, 102, 103}, closes)
}

func TestAppendSignalPersistsSuppressedReason(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sig := signal.Signal{
		Kind:             signal.EnterLong,
		Timestamp:        time.Now().UTC(),
		Price:            100,
		Z:                -2.5,
		Volume:           1000,
		SuppressedReason: "DailyLoss",
	}
	require.NoError(t, s.AppendSignal(ctx, sig))

	recent, err := s.RecentSignals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, signal.EnterLong, recent[0].Kind)
	assert.Equal(t, "DailyLoss", recent[0].SuppressedReason)
}

func TestSnapshotLatestMatchesFingerprint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	payload, _ := json.Marshal(map[string]any{"state": "Open"})
	older := Snapshot{Time: time.Now().Add(-time.Hour), ConfigFingerprint: "fp-1", State: "Open{Long}", Payload: payload}
	newer := Snapshot{Time: time.Now(), ConfigFingerprint: "fp-1", State: "Idle", Payload: payload}
	other := Snapshot{Time: time.Now(), ConfigFingerprint: "fp-2", State: "Idle", Payload: payload}

	require.NoError(t, s.AppendSnapshot(ctx, older))
	require.NoError(t, s.AppendSnapshot(ctx, newer))
	require.NoError(t, s.AppendSnapshot(ctx, other))

	got, ok, err := s.LatestSnapshot(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Idle", got.State)

	_, ok, err = s.LatestSnapshot(ctx, "fp-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDailySummaryUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := DailySummary{SessionDate: "2026-07-30", TradeCount: 2, WinCount: 1, LossCount: 1, RealizedPnL: 50, MaxDrawdown: 10}
	require.NoError(t, s.UpsertDailySummary(ctx, d))

	got, ok, err := s.DailyAggregate(ctx, "2026-07-30")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.TradeCount)

	d.TradeCount = 3
	require.NoError(t, s.UpsertDailySummary(ctx, d))
	got, ok, err = s.DailyAggregate(ctx, "2026-07-30")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.TradeCount)
}

func TestDailyAggregateMissingReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.DailyAggregate(context.Background(), "2099-01-01")
	require.NoError(t, err)
	assert.False(t, ok)
}
