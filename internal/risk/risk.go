// Package risk implements the pre-trade circuit breaker (spec §4.4): an
// ordered set of deny predicates the Engine consults before submitting any
// order intent. This is a distinct concern from the transport-level circuit
// breaker guarding Broker calls (internal/broker.Guarded, backed by
// sony/gobreaker): this Gate denies trades for business reasons even when
// the broker connection is perfectly healthy.
package risk

import (
	"time"

	"meanrevert/internal/ledger"
)

// DenyReason enumerates why the gate refused a trade, in the priority order
// can_trade must evaluate them: Halted > DailyLoss > Cooldown >
// DailyTradeCap > ConsecutiveLosses.
type DenyReason int

const (
	ReasonNone DenyReason = iota
	ReasonHalted
	ReasonDailyLoss
	ReasonCooldown
	ReasonDailyTradeCap
	ReasonConsecutiveLosses
)

func (r DenyReason) String() string {
	switch r {
	case ReasonHalted:
		return "Halted"
	case ReasonDailyLoss:
		return "DailyLoss"
	case ReasonCooldown:
		return "Cooldown"
	case ReasonDailyTradeCap:
		return "DailyTradeCap"
	case ReasonConsecutiveLosses:
		return "ConsecutiveLosses"
	default:
		return "None"
	}
}

// HaltReason names why the engine-level halt was set (spec §5/§7), a
// superset of DenyReason since some halts originate outside the Gate
// (broker unavailability, forced flatten timeout).
type HaltReason string

const (
	HaltNone             HaltReason = ""
	HaltBrokerUnavailable HaltReason = "BrokerUnavailable"
	HaltBrokerTimeout     HaltReason = "BrokerTimeout"
	HaltForceFlatten      HaltReason = "ForceFlatten"
	HaltDailyLoss         HaltReason = "DailyLoss"
)

// Decision is the result of CanTrade: either Allow, or Deny with a reason.
type Decision struct {
	Allow  bool
	Reason DenyReason
}

func allow() Decision { return Decision{Allow: true} }
func deny(r DenyReason) Decision { return Decision{Allow: false, Reason: r} }

// Config holds the external configuration surface spec §6 enumerates for
// the risk layer.
type Config struct {
	MaxDailyLoss         float64 // > 0; session_pnl <= -MaxDailyLoss denies for the rest of the session
	MaxConsecutiveLosses int     // >= 1
	CooldownDuration      time.Duration
	MaxDailyTrades        int
	MaxPositionDuration    time.Duration
}

// State is the mutable session-scoped risk state (spec §3). It is reset
// only by ResetDaily, never by wall-clock midnight directly — the Engine
// calls ResetDaily when its TradingCalendar collaborator reports a new
// session (see DESIGN.md, Open Question resolutions, item 3).
type State struct {
	SessionPnL          float64
	ConsecutiveLosses    int
	TradeCount           int
	CooldownUntil        time.Time
	Halted               bool
	HaltReason           HaltReason
	Sticky               bool // true when the halt must survive ResetDaily (e.g. operator-forced)
}

// Gate evaluates pre-trade deny predicates against its Config and State.
type Gate struct {
	cfg   Config
	state State
}

// New constructs a Gate. Callers load a prior State (e.g. from a Store
// snapshot) via Restore; a fresh Gate starts with zeroed State.
func New(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Restore replaces the Gate's State wholesale, used on Engine restart.
func (g *Gate) Restore(s State) {
	g.state = s
}

// State returns a copy of the current risk state for snapshotting.
func (g *Gate) State() State {
	return g.state
}

// Halt sets a halt that requires operator intervention or ResetDaily to
// clear. If sticky is true, ResetDaily will not clear it (spec §4.4: halts
// persist for the session; an operator-forced halt survives even the daily
// reset until explicitly cleared).
func (g *Gate) Halt(reason HaltReason, sticky bool) {
	g.state.Halted = true
	g.state.HaltReason = reason
	g.state.Sticky = sticky
}

// ClearHalt explicitly clears a halt regardless of stickiness. Intended for
// operator-driven recovery, not automatic flows.
func (g *Gate) ClearHalt() {
	g.state.Halted = false
	g.state.HaltReason = HaltNone
	g.state.Sticky = false
}

// CanTrade evaluates the ordered deny predicates against now and the
// current State. Consulted before every order intent (spec §4.5 step 6).
func (g *Gate) CanTrade(now time.Time) Decision {
	if g.state.Halted {
		return deny(ReasonHalted)
	}
	if g.state.SessionPnL <= -g.cfg.MaxDailyLoss {
		return deny(ReasonDailyLoss)
	}
	if !g.state.CooldownUntil.IsZero() && now.Before(g.state.CooldownUntil) {
		return deny(ReasonCooldown)
	}
	if g.cfg.MaxDailyTrades > 0 && g.state.TradeCount >= g.cfg.MaxDailyTrades {
		return deny(ReasonDailyTradeCap)
	}
	// A loss streak denies only until its cooldown expires.
	if g.cfg.MaxConsecutiveLosses > 0 && g.state.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses &&
		now.Before(g.state.CooldownUntil) {
		return deny(ReasonConsecutiveLosses)
	}
	return allow()
}

// Record updates session_pnl, consecutive_losses, and trade count from a
// closed Trade (spec §4.4 record). A loss that brings the streak to
// MaxConsecutiveLosses (or past it) opens a cooldown window. Crossing MaxDailyLoss is not recorded as a Halt here:
// CanTrade's own session_pnl check independently yields ReasonDailyLoss,
// keeping Halted/ReasonHalted reserved for the broker/operator-level halts
// spec §7 describes.
func (g *Gate) Record(trade ledger.Trade, now time.Time) {
	pnl, _ := trade.RealizedPnL.Float64()
	g.state.SessionPnL += pnl
	g.state.TradeCount++

	if pnl < 0 {
		g.state.ConsecutiveLosses++
		if g.cfg.MaxConsecutiveLosses > 0 && g.state.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses {
			g.state.CooldownUntil = now.Add(g.cfg.CooldownDuration)
		}
	} else {
		g.state.ConsecutiveLosses = 0
	}
}

// CheckDuration reports whether an open position has exceeded
// MaxPositionDuration (spec §4.5 step 4: the Engine schedules a
// DurationCap force-close when this returns true). A zero MaxPositionDuration
// means no cap is configured.
func (g *Gate) CheckDuration(openSince, now time.Time) bool {
	if g.cfg.MaxPositionDuration <= 0 {
		return false
	}
	return now.Sub(openSince) >= g.cfg.MaxPositionDuration
}

// ResetDaily zeros session counters and clears cooldown and non-sticky
// halts. The Engine calls this only on a TradingCalendar-reported session
// boundary, never on wall-clock midnight directly (spec §9 Open Question).
func (g *Gate) ResetDaily() {
	g.state.SessionPnL = 0
	g.state.ConsecutiveLosses = 0
	g.state.TradeCount = 0
	g.state.CooldownUntil = time.Time{}
	if !g.state.Sticky {
		g.state.Halted = false
		g.state.HaltReason = HaltNone
	}
}
