// Package signal implements the hysteresis state machine that turns a
// streaming Z-score into entry/exit trading intents (spec §4.2).
//
// The Generator is a pure function of (RollingStats, position view, config):
// it never reads broker state itself. The Engine is responsible for calling
// SetPosition whenever a fill changes the live position, which is what keeps
// the live and backtest signal streams bit-identical (spec §9).
package signal

import (
	"errors"
	"time"

	"meanrevert/internal/market"
	"meanrevert/internal/stats"
)

// Kind is the tagged signal value.
type Kind int

const (
	Hold Kind = iota
	EnterLong
	EnterShort
	ExitLong
	ExitShort
)

func (k Kind) String() string {
	switch k {
	case EnterLong:
		return "EnterLong"
	case EnterShort:
		return "EnterShort"
	case ExitLong:
		return "ExitLong"
	case ExitShort:
		return "ExitShort"
	default:
		return "Hold"
	}
}

// PositionView is the Engine-informed view of the current position side.
// The generator never infers this itself (see package doc).
type PositionView int

const (
	Flat PositionView = iota
	Long
	Short
)

// Signal carries the triggering bar's timestamp, price, Z-score, and volume
// alongside the tagged Kind. SuppressedReason is empty unless the Engine's
// RiskGate denied acting on this signal, in which case it names the
// risk.DenyReason that suppressed it (spec §6), set after the Generator
// returns the Signal since the Generator itself has no RiskGate visibility.
type Signal struct {
	Kind             Kind
	Timestamp        time.Time
	Price            float64
	Z                float64
	Volume           int64
	SuppressedReason string
}

// Config holds the generator's tunable thresholds.
type Config struct {
	ZEntry    float64 // e.g. 2.0
	ZExit     float64 // e.g. 0.5; must satisfy 0 <= ZExit < ZEntry
	MinVolume int64
}

// Validate checks the invariants spec.md §6 enumerates for the signal
// configuration surface.
func (c Config) Validate() error {
	if c.ZEntry <= 0 {
		return errors.New("signal: z_entry must be > 0")
	}
	if c.ZExit < 0 || c.ZExit >= c.ZEntry {
		return errors.New("signal: z_exit must satisfy 0 <= z_exit < z_entry")
	}
	if c.MinVolume < 0 {
		return errors.New("signal: min_volume must be >= 0")
	}
	return nil
}

// Generator holds the RollingStats instance it drives and the last position
// view the Engine reported.
type Generator struct {
	cfg  Config
	rs   *stats.RollingStats
	pos  PositionView
}

// New constructs a Generator over an existing RollingStats instance (the
// Engine owns the RollingStats lifecycle; the Generator only reads it).
func New(cfg Config, rs *stats.RollingStats) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, rs: rs, pos: Flat}, nil
}

// SetPosition informs the generator of a position transition made by the
// Engine. This must be called on every fill before the next OnBar call.
func (g *Generator) SetPosition(p PositionView) {
	g.pos = p
}

// Position returns the generator's current view of the position side.
func (g *Generator) Position() PositionView {
	return g.pos
}

// OnBar updates the underlying RollingStats with the bar's close and
// evaluates the hysteresis rule against the resulting Z-score.
//
// Until RollingStats is ready, or when bar.Volume is below MinVolume, it
// always emits Hold (without suppressing the RollingStats update — the
// window must stay calibrated across volume gaps per the Engine's §4.5
// procedure).
func (g *Generator) OnBar(bar market.Bar) (Signal, error) {
	z, ready, err := g.rs.Update(bar.Close)
	if err != nil {
		return Signal{}, err
	}

	sig := Signal{Timestamp: bar.Time, Price: bar.Close, Z: z, Volume: bar.Volume}

	if !ready {
		sig.Kind = Hold
		return sig, nil
	}
	if bar.Volume < g.cfg.MinVolume {
		sig.Kind = Hold
		return sig, nil
	}

	switch g.pos {
	case Flat:
		switch {
		case z <= -g.cfg.ZEntry:
			sig.Kind = EnterLong
		case z >= g.cfg.ZEntry:
			sig.Kind = EnterShort
		default:
			sig.Kind = Hold
		}
	case Long:
		if z >= -g.cfg.ZExit {
			sig.Kind = ExitLong
		} else {
			sig.Kind = Hold
		}
	case Short:
		if z <= g.cfg.ZExit {
			sig.Kind = ExitShort
		} else {
			sig.Kind = Hold
		}
	}
	return sig, nil
}
