package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"meanrevert/internal/alert"
	"meanrevert/internal/broker"
	"meanrevert/internal/calendar"
	"meanrevert/internal/engine"
	"meanrevert/internal/ledger"
	"meanrevert/internal/market"
	"meanrevert/internal/risk"
	"meanrevert/internal/signal"
	"meanrevert/internal/stats"
	"meanrevert/internal/store"
)

// Tiebreak resolves the case where a single bar's High/Low range would
// trigger both the stop and the take level (spec §4.6 Open Question:
// default is conservative, stop wins).
type Tiebreak int

const (
	StopFirst Tiebreak = iota
	TakeFirst
)

// Config is the full parameter set a backtest run needs: one sub-config per
// collaborator plus the execution-simulation knobs spec §4.6 names.
type Config struct {
	Symbol string
	Size   int64

	Lookback int
	Signal   signal.Config
	Risk     risk.Config
	Ledger   ledger.Config
	Calendar *calendar.Config

	StopLossAmount         float64
	TakeProfitAmount       float64
	Tiebreak               Tiebreak
	ShutdownFlattenTimeout time.Duration
	BrokerFillTimeout      time.Duration
}

// EquityPoint is one sample of the running equity curve (spec §4.6).
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Result is everything spec §4.6 requires a backtest run to report.
type Result struct {
	Trades       []ledger.Trade
	EquityCurve  []EquityPoint
	TotalTrades  int
	Wins         int
	Losses       int
	WinRate      float64
	ProfitFactor float64
	MaxDrawdown  float64
	SharpeLike   float64
	TotalPnL     decimal.Decimal
}

// Driver replays a finite ordered bar sequence through the same Engine
// state machine live trading uses (spec §9: live and backtest must share
// code paths for everything except order execution), fed by a PaperBroker
// standing in for the exchange. The only backtest-specific logic is
// intrabar stop/take detection: ProcessBar only ever sees a bar's Close,
// but a backtest has the full OHLC range available, so the Driver checks
// each bar's High/Low for a stop/take hit before handing the bar to
// ProcessBar, using Engine.ForceExitAt to realize it deterministically.
type Driver struct {
	log zerolog.Logger
}

// NewDriver constructs a Driver. A zero-value Logger is fine (it no-ops).
func NewDriver(log zerolog.Logger) *Driver {
	return &Driver{log: log}
}

// Run executes one full backtest over bars and returns the result. Each
// call builds entirely fresh collaborators (including a fresh in-memory
// Store), so repeated calls with the same bars and Config are deterministic
// and independent of each other.
func (d *Driver) Run(ctx context.Context, bars []market.Bar, cfg Config) (*Result, error) {
	if cfg.Lookback < 2 {
		return nil, fmt.Errorf("backtest: lookback must be >= 2")
	}
	if err := cfg.Signal.Validate(); err != nil {
		return nil, err
	}

	rs, err := stats.New(cfg.Lookback)
	if err != nil {
		return nil, err
	}
	sg, err := signal.New(cfg.Signal, rs)
	if err != nil {
		return nil, err
	}
	rg := risk.New(cfg.Risk)
	ledg := ledger.New(cfg.Ledger)

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("backtest: open store: %w", err)
	}
	defer st.Close()

	pb := broker.NewPaperBroker()
	if err := pb.Connect(ctx); err != nil {
		return nil, err
	}
	if _, err := pb.SubscribeBars(ctx, cfg.Symbol); err != nil {
		return nil, err
	}

	var cal *calendar.Calendar
	if cfg.Calendar != nil {
		cal = calendar.New(*cfg.Calendar)
	}

	eng := engine.New(engine.Config{
		Symbol:                 cfg.Symbol,
		Size:                   cfg.Size,
		StopLossAmount:         cfg.StopLossAmount,
		TakeProfitAmount:       cfg.TakeProfitAmount,
		ShutdownFlattenTimeout: cfg.ShutdownFlattenTimeout,
		BrokerFillTimeout:      cfg.BrokerFillTimeout,
	}, cfg.Signal, cfg.Risk, engine.Collaborators{
		Stats: rs, Signal: sg, Risk: rg, Ledger: ledg, Store: st, Broker: pb,
		Calendar: cal, Alerts: alert.NoOp{}, Log: d.log,
	})

	equity := make([]EquityPoint, 0, len(bars))
	realized := 0.0
	var lastTradeCloseTime time.Time

	for _, bar := range bars {
		if err := bar.Validate(); err != nil {
			return nil, fmt.Errorf("backtest: invalid bar at %s: %w", bar.Time, err)
		}

		if pos := eng.OpenPosition(); pos != nil {
			if hit, price, reason := d.checkStopTake(pos, bar, cfg); hit {
				if err := eng.ForceExitAt(ctx, price, bar.Time, reason); err != nil {
					return nil, fmt.Errorf("backtest: force exit: %w", err)
				}
			}
		}

		pb.Feed(bar)
		if err := eng.ProcessBar(ctx, bar); err != nil {
			return nil, fmt.Errorf("backtest: process bar at %s: %w", bar.Time, err)
		}

		if trades, err := st.RecentTrades(ctx, 1); err == nil && len(trades) == 1 {
			// Only add a trade's P&L into the running total the bar it
			// actually closed, identified by its CloseTime changing -
			// otherwise the same most-recent trade would be re-added on
			// every subsequent idle bar.
			t := trades[0]
			if !t.CloseTime.Equal(lastTradeCloseTime) {
				pnl, _ := t.RealizedPnL.Float64()
				realized += pnl
				lastTradeCloseTime = t.CloseTime
			}
		}

		unrealized := 0.0
		if pos := eng.OpenPosition(); pos != nil {
			unrealized, _ = ledg.Mark(bar.Close)
		}
		equity = append(equity, EquityPoint{Time: bar.Time, Equity: realized + unrealized})
	}

	if err := eng.Shutdown(ctx); err != nil {
		d.log.Warn().Err(err).Msg("backtest: shutdown flatten failed")
	}

	trades, err := st.RecentTrades(ctx, len(bars)+1)
	if err != nil {
		return nil, fmt.Errorf("backtest: load trades: %w", err)
	}

	return buildResult(trades, equity), nil
}

// checkStopTake evaluates whether bar's High/Low range would trigger the
// configured dollar stop or take level, converting each to a price level
// via the position's entry price, size, and contract multiplier. When both
// are hit within the same bar, cfg.Tiebreak decides which is honored.
func (d *Driver) checkStopTake(pos *ledger.Position, bar market.Bar, cfg Config) (hit bool, price float64, reason ledger.CloseReason) {
	if cfg.StopLossAmount <= 0 && cfg.TakeProfitAmount <= 0 {
		return false, 0, ""
	}
	mult := cfg.Ledger.ContractMultiplier
	if mult <= 0 {
		mult = 1
	}
	denom := float64(pos.Size) * mult
	if denom <= 0 {
		return false, 0, ""
	}

	var stopPrice, takePrice float64
	var hasStop, hasTake bool
	if cfg.StopLossAmount > 0 {
		hasStop = true
		if pos.Side == ledger.SideLong {
			stopPrice = pos.EntryPrice - cfg.StopLossAmount/denom
		} else {
			stopPrice = pos.EntryPrice + cfg.StopLossAmount/denom
		}
	}
	if cfg.TakeProfitAmount > 0 {
		hasTake = true
		if pos.Side == ledger.SideLong {
			takePrice = pos.EntryPrice + cfg.TakeProfitAmount/denom
		} else {
			takePrice = pos.EntryPrice - cfg.TakeProfitAmount/denom
		}
	}

	stopHit := hasStop && stopPrice >= bar.Low && stopPrice <= bar.High
	takeHit := hasTake && takePrice >= bar.Low && takePrice <= bar.High

	switch {
	case stopHit && takeHit:
		if cfg.Tiebreak == TakeFirst {
			return true, takePrice, ledger.ReasonTakeProfit
		}
		return true, stopPrice, ledger.ReasonStopLoss
	case stopHit:
		return true, stopPrice, ledger.ReasonStopLoss
	case takeHit:
		return true, takePrice, ledger.ReasonTakeProfit
	default:
		return false, 0, ""
	}
}

func buildResult(trades []ledger.Trade, equity []EquityPoint) *Result {
	res := &Result{Trades: trades, EquityCurve: equity, TotalPnL: decimal.Zero}

	grossProfit, grossLoss := 0.0, 0.0
	returns := make([]float64, 0, len(trades))
	for _, tr := range trades {
		res.TotalPnL = res.TotalPnL.Add(tr.RealizedPnL)
		pnl, _ := tr.RealizedPnL.Float64()
		returns = append(returns, pnl)
		if pnl > 0 {
			res.Wins++
			grossProfit += pnl
		} else if pnl < 0 {
			res.Losses++
			grossLoss += -pnl
		}
	}
	res.TotalTrades = len(trades)
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.Wins) / float64(res.TotalTrades)
	}
	if grossLoss > 0 {
		res.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		res.ProfitFactor = math.Inf(1)
	}

	res.MaxDrawdown = maxDrawdown(equity)
	res.SharpeLike = sharpeLike(returns)
	return res
}

// maxDrawdown walks the equity curve tracking the running peak and the
// largest peak-to-trough decline observed.
func maxDrawdown(equity []EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0].Equity
	maxDD := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		dd := peak - p.Equity
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// sharpeLike is a dimensionless mean/stdev ratio over the trade-by-trade
// realized P&L series: not annualized, not risk-free-rate adjusted, just a
// consistency signal for comparing parameter sets against each other.
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
	if std <= 1e-12 {
		return 0
	}
	return mean / std
}
