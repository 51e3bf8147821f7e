// Package ledger tracks the single open position and its realized/
// unrealized P&L (spec §4.3). At most one position is ever open; Open/Close
// enforce that with a typed error rather than silently clobbering state.
//
// P&L math is kept in float64 through the hot path (it mirrors the teacher's
// trader.go: closeLot arithmetic) and converted to decimal.Decimal only at
// the boundary where a Trade is handed to the Store, so restart-to-restart
// persistence never drifts from float round-tripping.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"meanrevert/internal/signal"
)

// ErrAlreadyOpen is returned by Open when a position is already open.
var ErrAlreadyOpen = errors.New("ledger: a position is already open")

// ErrNoPosition is returned by Close/Mark/Duration when nothing is open.
var ErrNoPosition = errors.New("ledger: no open position")

// Side mirrors signal.PositionView but excludes Flat (a Position always has
// a side once open).
type Side int

const (
	SideLong Side = iota
	SideShort
)

func (s Side) String() string {
	if s == SideShort {
		return "Short"
	}
	return "Long"
}

// CloseReason enumerates why a position was closed (spec §3).
type CloseReason string

const (
	ReasonZExit        CloseReason = "ZExit"
	ReasonStopLoss     CloseReason = "StopLoss"
	ReasonTakeProfit   CloseReason = "TakeProfit"
	ReasonDurationCap  CloseReason = "DurationCap"
	ReasonForceFlatten CloseReason = "ForceFlatten"
	ReasonRiskHalt     CloseReason = "RiskHalt"
)

// Position is the single open lot. Fields mirror spec §3.
type Position struct {
	Side        Side
	Size        int64
	EntryTime   time.Time
	EntryPrice  float64
	StopPrice   float64
	TakePrice   float64
	MaxDuration time.Duration
	ZOnEntry    float64
}

// Trade is a closed position with its realized P&L.
type Trade struct {
	OpenTime     time.Time
	CloseTime    time.Time
	Side         Side
	Size         int64
	EntryPrice   float64
	ExitPrice    float64
	RealizedPnL  decimal.Decimal
	ZOnEntry     float64
	ZOnExit      float64
	CloseReason  CloseReason
}

// Config holds the constants §4.3 calls out as external configuration.
type Config struct {
	ContractMultiplier float64 // point value per contract, e.g. 5.0
	SlippageTicks      float64 // applied +slip on buys, -slip on sells
	CommissionPerSide  float64 // additive flat cost applied on entry and exit
}

// Ledger owns the lifecycle of at most one Position.
type Ledger struct {
	cfg Config
	pos *Position
}

// New constructs a Ledger with the given money-math configuration.
func New(cfg Config) *Ledger {
	return &Ledger{cfg: cfg}
}

// Position returns the currently open position, or nil if flat.
func (l *Ledger) Position() *Position {
	return l.pos
}

// EntryFillPrice applies the configured slippage to a requested price:
// +slip when buying (entering long or exiting short), -slip when selling
// (entering short or exiting long) — symmetric per spec §4.3.
func (l *Ledger) EntryFillPrice(side Side, requestedPrice float64) float64 {
	if side == SideLong {
		return requestedPrice + l.cfg.SlippageTicks
	}
	return requestedPrice - l.cfg.SlippageTicks
}

// ExitFillPrice applies slippage to a requested exit price: closing a long
// is a sell (-slip), closing a short is a buy (+slip).
func (l *Ledger) ExitFillPrice(posSide Side, requestedPrice float64) float64 {
	if posSide == SideLong {
		return requestedPrice - l.cfg.SlippageTicks
	}
	return requestedPrice + l.cfg.SlippageTicks
}

// Open transitions Flat -> {Long,Short}. Fails if a position is already
// open (the Engine's fill-confirmation gate is expected to prevent this from
// ever firing in practice).
func (l *Ledger) Open(side Side, size int64, price float64, t time.Time, zOnEntry, stop, take float64, maxDuration time.Duration) (*Position, error) {
	if l.pos != nil {
		return nil, ErrAlreadyOpen
	}
	l.pos = &Position{
		Side:        side,
		Size:        size,
		EntryTime:   t,
		EntryPrice:  price,
		StopPrice:   stop,
		TakePrice:   take,
		MaxDuration: maxDuration,
		ZOnEntry:    zOnEntry,
	}
	return l.pos, nil
}

// Close transitions {Long,Short} -> Flat, computing realized P&L per spec
// §4.3: (exit-entry)*size*multiplier for Long, (entry-exit)*size*multiplier
// for Short, less two commission legs.
func (l *Ledger) Close(price float64, t time.Time, reason CloseReason, zOnExit float64) (Trade, error) {
	if l.pos == nil {
		return Trade{}, ErrNoPosition
	}
	p := l.pos

	var raw float64
	if p.Side == SideLong {
		raw = (price - p.EntryPrice) * float64(p.Size) * l.cfg.ContractMultiplier
	} else {
		raw = (p.EntryPrice - price) * float64(p.Size) * l.cfg.ContractMultiplier
	}
	raw -= 2 * l.cfg.CommissionPerSide

	trade := Trade{
		OpenTime:    p.EntryTime,
		CloseTime:   t,
		Side:        p.Side,
		Size:        p.Size,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   price,
		RealizedPnL: decimal.NewFromFloat(raw).Round(8),
		ZOnEntry:    p.ZOnEntry,
		ZOnExit:     zOnExit,
		CloseReason: reason,
	}
	l.pos = nil
	return trade, nil
}

// Mark returns the unrealized P&L of the open position at the given price,
// using the same sign convention as Close but without a commission leg
// (commission is only realized on an actual fill).
func (l *Ledger) Mark(price float64) (float64, error) {
	if l.pos == nil {
		return 0, ErrNoPosition
	}
	p := l.pos
	if p.Side == SideLong {
		return (price - p.EntryPrice) * float64(p.Size) * l.cfg.ContractMultiplier, nil
	}
	return (p.EntryPrice - price) * float64(p.Size) * l.cfg.ContractMultiplier, nil
}

// Duration returns how long the open position has been held as of now.
func (l *Ledger) Duration(now time.Time) (time.Duration, error) {
	if l.pos == nil {
		return 0, ErrNoPosition
	}
	return now.Sub(l.pos.EntryTime), nil
}

// SideFromView converts a signal.PositionView into a ledger.Side. Flat has
// no meaningful Side; callers must not invoke this when the view is Flat.
func SideFromView(v signal.PositionView) Side {
	if v == signal.Short {
		return SideShort
	}
	return SideLong
}

// ViewFromSide converts a ledger.Side into the corresponding
// signal.PositionView (Long or Short; never Flat).
func ViewFromSide(s Side) signal.PositionView {
	if s == SideShort {
		return signal.Short
	}
	return signal.Long
}
