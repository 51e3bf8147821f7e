// Package walkforward implements the WalkForwardEvaluator (spec §4.7): it
// splits a bar history into K ordered, non-overlapping folds, and within
// each fold applies a train/test split (70/30 by default; no split when
// K=1), never letting RiskGate
// state leak across fold boundaries. It is built entirely on
// internal/backtest.Driver — a fold's test segment is just a backtest run
// over that segment's bars with a fresh Config.
package walkforward

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"meanrevert/internal/backtest"
	"meanrevert/internal/market"
)

// DefaultFolds is the fold count spec §4.7 names as the default.
const DefaultFolds = 5

// DefaultTrainFraction is the in-fold train/test split spec §4.7 names.
const DefaultTrainFraction = 0.7

// Config wraps a backtest.Config with the walk-forward-specific knobs.
type Config struct {
	Folds         int
	TrainFraction float64
	Backtest      backtest.Config
}

// FoldResult is one fold's outcome. The train segment is only sized and
// recorded (TrainBars, TrainStart): no backtest runs over it, it does not
// seed the test run's RollingStats, and it is not used to mutate
// cfg.Backtest between folds. The test segment's Result is the one that
// rolls into the aggregate.
type FoldResult struct {
	FoldIndex  int
	TrainBars  int
	TestBars   int
	TrainStart market.Bar
	TestStart  market.Bar
	TestResult *backtest.Result
}

// AggregateResult summarizes all folds' test segments together.
type AggregateResult struct {
	Folds        []FoldResult
	TotalTrades  int
	Wins         int
	Losses       int
	WinRate      float64
	ProfitFactor float64
	MaxDrawdown  float64
	SharpeLike   float64
}

// Evaluator runs the fold loop.
type Evaluator struct {
	driver *backtest.Driver
	log    zerolog.Logger
}

// NewEvaluator constructs an Evaluator around a fresh backtest.Driver.
func NewEvaluator(log zerolog.Logger) *Evaluator {
	return &Evaluator{driver: backtest.NewDriver(log), log: log}
}

// Run splits bars into cfg.Folds ordered, non-overlapping windows (the
// default DefaultFolds if unset), applies the train/test split within each
// (DefaultTrainFraction if unset), and runs each test segment through a
// fresh backtest.Driver invocation — a fresh Store, Gate, Ledger, and
// RollingStats every fold, so no fold's risk state or trade history ever
// leaks into the next (spec §4.7 invariant).
func (e *Evaluator) Run(ctx context.Context, bars []market.Bar, cfg Config) (*AggregateResult, error) {
	folds := cfg.Folds
	if folds <= 0 {
		folds = DefaultFolds
	}
	trainFrac := cfg.TrainFraction
	if trainFrac <= 0 {
		trainFrac = DefaultTrainFraction
	}
	if trainFrac >= 1 {
		return nil, fmt.Errorf("walkforward: train fraction must be < 1")
	}
	if len(bars) < folds {
		return nil, fmt.Errorf("walkforward: need at least %d bars for %d folds, got %d", folds, folds, len(bars))
	}

	windowSize := len(bars) / folds
	results := make([]FoldResult, 0, folds)

	for i := 0; i < folds; i++ {
		start := i * windowSize
		end := start + windowSize
		if i == folds-1 {
			end = len(bars) // last fold absorbs any remainder
		}
		window := bars[start:end]
		if len(window) < 2 {
			e.log.Warn().Int("fold", i).Msg("walkforward: fold too small to split, skipping")
			continue
		}

		// With a single fold there is no held-out segment to carve out: the
		// test run must cover the entire input range, so that K=1 walk-
		// forward equals a plain backtest over the whole range (spec §8).
		splitAt := 0
		if folds > 1 {
			splitAt = int(float64(len(window)) * trainFrac)
			if splitAt < 1 {
				splitAt = 1
			}
			if splitAt >= len(window) {
				splitAt = len(window) - 1
			}
		}
		trainBars := window[:splitAt]
		testBars := window[splitAt:]
		if len(testBars) == 0 {
			continue
		}

		testResult, err := e.driver.Run(ctx, testBars, cfg.Backtest)
		if err != nil {
			return nil, fmt.Errorf("walkforward: fold %d test run: %w", i, err)
		}

		var trainStart market.Bar
		if len(trainBars) > 0 {
			trainStart = trainBars[0]
		}

		results = append(results, FoldResult{
			FoldIndex:  i,
			TrainBars:  len(trainBars),
			TestBars:   len(testBars),
			TrainStart: trainStart,
			TestStart:  testBars[0],
			TestResult: testResult,
		})
	}

	return aggregate(results), nil
}

func aggregate(folds []FoldResult) *AggregateResult {
	agg := &AggregateResult{Folds: folds}
	grossProfit, grossLoss := 0.0, 0.0
	var allReturns []float64
	maxDD := 0.0

	for _, f := range folds {
		r := f.TestResult
		agg.TotalTrades += r.TotalTrades
		agg.Wins += r.Wins
		agg.Losses += r.Losses
		if r.MaxDrawdown > maxDD {
			maxDD = r.MaxDrawdown
		}
		for _, tr := range r.Trades {
			pnl, _ := tr.RealizedPnL.Float64()
			allReturns = append(allReturns, pnl)
			if pnl > 0 {
				grossProfit += pnl
			} else if pnl < 0 {
				grossLoss += -pnl
			}
		}
	}

	if agg.TotalTrades > 0 {
		agg.WinRate = float64(agg.Wins) / float64(agg.TotalTrades)
	}
	if grossLoss > 0 {
		agg.ProfitFactor = grossProfit / grossLoss
	}
	agg.MaxDrawdown = maxDD
	agg.SharpeLike = sharpeLike(allReturns)
	return agg
}

func sharpeLike(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(n - 1)
	std := math.Sqrt(variance)
	if std <= 1e-9 {
		return 0
	}
	return mean / std
}
