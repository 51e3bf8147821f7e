// Package engine implements the core state machine (spec §4.5): the bar
// loop, the Idle/Entering/Open/Exiting transitions, restart reconciliation,
// and graceful shutdown with forced flatten. It is the conductor that wires
// RollingStats, SignalGenerator, Ledger, RiskGate, Store, Broker, Calendar,
// and Alerts together.
//
// Concurrency mirrors the teacher's trader.go: a mutex guards in-memory
// state, released around broker I/O so a slow fill never blocks the rest
// of the process, while spec §5's single-writer-per-symbol rule keeps bars
// processed strictly in order on one goroutine.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meanrevert/internal/alert"
	"meanrevert/internal/broker"
	"meanrevert/internal/calendar"
	"meanrevert/internal/ledger"
	"meanrevert/internal/market"
	"meanrevert/internal/metrics"
	"meanrevert/internal/risk"
	"meanrevert/internal/signal"
	"meanrevert/internal/stats"
	"meanrevert/internal/store"
)

// Kind enumerates the four engine states (spec §4.5). Idle and Open are the
// only stable states; Entering and Exiting are transient, held only while
// awaiting a fill.
type Kind int

const (
	Idle Kind = iota
	Entering
	Open
	Exiting
)

func (k Kind) String() string {
	switch k {
	case Entering:
		return "Entering"
	case Open:
		return "Open"
	case Exiting:
		return "Exiting"
	default:
		return "Idle"
	}
}

// State is the full state-machine value: a Kind plus, for the three
// position-bearing kinds, which side it concerns.
type State struct {
	Kind Kind
	Side ledger.Side
}

func (s State) String() string {
	if s.Kind == Idle {
		return "Idle"
	}
	return fmt.Sprintf("%s{%s}", s.Kind, s.Side)
}

var (
	// ErrOutOfOrderBar is returned when a bar's timestamp does not strictly
	// advance past the last processed bar (spec §4.5 step 1).
	ErrOutOfOrderBar = errors.New("engine: out-of-order bar rejected")
	// ErrBrokerFillTimeout is returned internally when a submitted intent's
	// fill does not arrive within Config.BrokerFillTimeout.
	ErrBrokerFillTimeout = errors.New("engine: broker fill timeout")
)

// Config holds the orchestration-level configuration surface from spec §6
// that is not already owned by a collaborator's own Config (RollingStats,
// SignalGenerator, RiskGate, and Ledger each validate their own slice).
type Config struct {
	Symbol                string
	Size                  int64
	StopLossAmount        float64 // dollars; 0 disables
	TakeProfitAmount      float64 // dollars; 0 disables
	ShutdownFlattenTimeout time.Duration
	BrokerFillTimeout      time.Duration
	SnapshotEveryBar       bool // if false, snapshot only on state transitions
}

// Engine wires every core component together and drives the per-bar
// procedure spec §4.5 specifies.
type Engine struct {
	cfg      Config
	stats    *stats.RollingStats
	signal   *signal.Generator
	risk     *risk.Gate
	ledger   *ledger.Ledger
	store    *store.Store
	broker   broker.Broker
	calendar *calendar.Calendar
	alerts   alert.Notifier
	log      zerolog.Logger

	fingerprint string

	mu                 sync.Mutex
	state              State
	lastProcessedBarTS time.Time
	lastSessionCheck   time.Time
	pendingIntent      broker.IntentId
	pendingCh          chan broker.Fill
}

// Collaborators bundles every dependency New needs, keeping the
// constructor signature from sprawling across a dozen positional params.
type Collaborators struct {
	Stats    *stats.RollingStats
	Signal   *signal.Generator
	Risk     *risk.Gate
	Ledger   *ledger.Ledger
	Store    *store.Store
	Broker   broker.Broker
	Calendar *calendar.Calendar
	Alerts   alert.Notifier
	Log      zerolog.Logger
}

// New constructs an Engine in the Idle state and registers its fill
// callback with the broker.
func New(cfg Config, signalCfg signal.Config, riskCfg risk.Config, c Collaborators) *Engine {
	if c.Alerts == nil {
		c.Alerts = alert.NoOp{}
	}
	e := &Engine{
		cfg:      cfg,
		stats:    c.Stats,
		signal:   c.Signal,
		risk:     c.Risk,
		ledger:   c.Ledger,
		store:    c.Store,
		broker:   c.Broker,
		calendar: c.Calendar,
		alerts:   c.Alerts,
		log:      c.Log,
		state:    State{Kind: Idle},
	}
	e.fingerprint = computeFingerprint(cfg, signalCfg, riskCfg)
	if e.broker != nil {
		e.broker.SetOnFill(e.onFill)
	}
	return e
}

// ConfigFingerprint returns the content hash of the configuration that
// produced this Engine, used to gate snapshot restoration (spec §4.5).
func (e *Engine) ConfigFingerprint() string { return e.fingerprint }

func computeFingerprint(cfg Config, sc signal.Config, rc risk.Config) string {
	h := sha256.New()
	fmt.Fprintf(h, "%+v|%+v|%+v", cfg, sc, rc)
	return hex.EncodeToString(h.Sum(nil))
}

// State returns a copy of the current engine state. As a side effect it
// refreshes the engine_state gauge, which is cheap enough to do on every
// read and keeps metrics/internal state from ever drifting apart.
func (e *Engine) State() State {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	metrics.SetEngineState(st.Kind.String())
	return st
}

// ProcessBar runs the full per-bar procedure from spec §4.5.
func (e *Engine) ProcessBar(ctx context.Context, bar market.Bar) (err error) {
	if err := bar.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if !e.lastProcessedBarTS.IsZero() && !bar.Time.After(e.lastProcessedBarTS) {
		e.mu.Unlock()
		return fmt.Errorf("%w: bar=%s last=%s", ErrOutOfOrderBar, bar.Time, e.lastProcessedBarTS)
	}
	e.lastProcessedBarTS = bar.Time
	newSession := e.calendar != nil && !e.lastSessionCheck.IsZero() && e.calendar.IsNewSession(e.lastSessionCheck, bar.Time)
	closedSessionEnd := e.lastSessionCheck
	if newSession {
		e.risk.ResetDaily()
	}
	e.lastSessionCheck = bar.Time
	e.mu.Unlock()

	if newSession {
		e.finalizeDailySummary(ctx, closedSessionEnd, bar.Time)
	}

	marketOpen := e.calendar == nil || e.calendar.IsOpen(bar.Time)

	sig, err := e.signal.OnBar(bar)
	if err != nil {
		return err
	}
	metrics.ObserveSignal(sig.Kind.String())
	metrics.SetZScore(sig.Z)

	// Persist exactly one Signal row per bar (spec §4.5 step 9), deferred so
	// applySignal can first populate SuppressedReason when the risk gate
	// denies it - the row always reflects the bar's final outcome.
	defer func() {
		if appendErr := e.store.AppendSignal(ctx, sig); appendErr != nil && err == nil {
			err = fmt.Errorf("engine: signal append failed, halting consumption: %w", appendErr)
		}
		if e.cfg.SnapshotEveryBar {
			e.persistSnapshot(ctx)
		}
	}()

	if !marketOpen {
		return nil
	}

	e.mu.Lock()
	st := e.state
	e.mu.Unlock()

	if st.Kind == Open {
		pos := e.ledger.Position()
		if pos != nil {
			if e.risk.CheckDuration(pos.EntryTime, bar.Time) {
				return e.scheduleForceClose(ctx, bar, ledger.ReasonDurationCap, sig.Z)
			}
			unrealized, _ := e.ledger.Mark(bar.Close)
			if e.cfg.StopLossAmount > 0 && unrealized <= -e.cfg.StopLossAmount {
				return e.scheduleForceClose(ctx, bar, ledger.ReasonStopLoss, sig.Z)
			}
			if e.cfg.TakeProfitAmount > 0 && unrealized >= e.cfg.TakeProfitAmount {
				return e.scheduleForceClose(ctx, bar, ledger.ReasonTakeProfit, sig.Z)
			}
		}
	}

	return e.applySignal(ctx, bar, &sig)
}

// applySignal mutates sig.SuppressedReason in place when the risk gate
// denies acting on an entry/exit intent, so the deferred AppendSignal in
// ProcessBar persists the denial reason alongside the Signal row (spec §6).
func (e *Engine) applySignal(ctx context.Context, bar market.Bar, sig *signal.Signal) error {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()

	switch sig.Kind {
	case signal.Hold:
		return nil

	case signal.EnterLong, signal.EnterShort:
		if st.Kind != Idle {
			return nil
		}
		decision := e.risk.CanTrade(bar.Time)
		if !decision.Allow {
			sig.SuppressedReason = decision.Reason.String()
			e.log.Info().Str("reason", decision.Reason.String()).Msg("engine: entry suppressed by risk gate")
			return nil
		}
		side := ledger.SideLong
		orderSide := broker.SideBuy
		if sig.Kind == signal.EnterShort {
			side = ledger.SideShort
			orderSide = broker.SideSell
		}
		return e.submitEntry(ctx, bar, side, orderSide, sig.Z)

	case signal.ExitLong, signal.ExitShort:
		if st.Kind != Open {
			return nil
		}
		decision := e.risk.CanTrade(bar.Time)
		if !decision.Allow {
			sig.SuppressedReason = decision.Reason.String()
			e.log.Info().Str("reason", decision.Reason.String()).Msg("engine: exit suppressed by risk gate")
			return nil
		}
		return e.submitExit(ctx, bar, ledger.ReasonZExit, sig.Z)
	}
	return nil
}

func (e *Engine) scheduleForceClose(ctx context.Context, bar market.Bar, reason ledger.CloseReason, z float64) error {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	if st.Kind != Open {
		return nil
	}
	return e.submitExit(ctx, bar, reason, z)
}

func (e *Engine) submitEntry(ctx context.Context, bar market.Bar, side ledger.Side, orderSide broker.Side, zOnEntry float64) error {
	intent := broker.IntentId(uuid.New().String())

	e.mu.Lock()
	e.state = State{Kind: Entering, Side: side}
	e.mu.Unlock()
	e.persistSnapshot(ctx)

	fillTimeout := e.cfg.BrokerFillTimeout
	if fillTimeout <= 0 {
		fillTimeout = 30 * time.Second
	}
	fill, err := e.submitAndAwaitFill(ctx, orderSide, e.cfg.Size, intent, fillTimeout)
	if err != nil {
		e.risk.Halt(risk.HaltBrokerTimeout, false)
		e.alerts.Notify(alert.KindCircuitBreaker, map[string]any{"reason": "BrokerTimeout"})
		return err
	}

	// Stop/take are enforced in dollar terms via Ledger.Mark in ProcessBar,
	// not as absolute price levels, so the Position's stop/take fields stay
	// zero; MaxDuration is likewise enforced live via risk.CheckDuration
	// rather than stored as a deadline on the Position.
	entryPrice := e.ledger.EntryFillPrice(side, fill.Price)
	if _, err := e.ledger.Open(side, e.cfg.Size, entryPrice, fill.Time, zOnEntry, 0, 0, 0); err != nil {
		return err
	}
	e.signal.SetPosition(ledger.ViewFromSide(side))

	e.mu.Lock()
	e.state = State{Kind: Open, Side: side}
	e.mu.Unlock()
	e.alerts.Notify(alert.KindTradeEntry, map[string]any{"side": side.String(), "price": entryPrice})
	e.persistSnapshot(ctx)
	return nil
}

func (e *Engine) submitExit(ctx context.Context, bar market.Bar, reason ledger.CloseReason, zOnExit float64) error {
	pos := e.ledger.Position()
	if pos == nil {
		return nil
	}
	side := pos.Side
	orderSide := broker.SideSell
	if side == ledger.SideShort {
		orderSide = broker.SideBuy
	}

	intent := broker.IntentId(uuid.New().String())
	e.mu.Lock()
	e.state = State{Kind: Exiting, Side: side}
	e.mu.Unlock()
	e.persistSnapshot(ctx)

	fillTimeout := e.cfg.BrokerFillTimeout
	if fillTimeout <= 0 {
		fillTimeout = 30 * time.Second
	}
	fill, err := e.submitAndAwaitFill(ctx, orderSide, pos.Size, intent, fillTimeout)
	if err != nil {
		e.risk.Halt(risk.HaltBrokerTimeout, false)
		e.alerts.Notify(alert.KindCircuitBreaker, map[string]any{"reason": "BrokerTimeout"})
		return err
	}

	exitPrice := e.ledger.ExitFillPrice(side, fill.Price)
	trade, err := e.ledger.Close(exitPrice, fill.Time, reason, zOnExit)
	if err != nil {
		return err
	}
	e.signal.SetPosition(signal.Flat)
	e.risk.Record(trade, fill.Time)
	if err := e.store.AppendTrade(ctx, trade); err != nil {
		return fmt.Errorf("engine: trade append failed, halting consumption: %w", err)
	}
	observeTrade(trade)

	e.mu.Lock()
	e.state = State{Kind: Idle}
	e.mu.Unlock()
	e.alerts.Notify(alert.KindTradeExit, map[string]any{"side": side.String(), "price": exitPrice, "reason": string(reason)})
	e.persistSnapshot(ctx)
	return nil
}

// submitAndAwaitFill places an order and blocks until the broker's OnFill
// callback delivers the matching intent or the timeout elapses.
func (e *Engine) submitAndAwaitFill(ctx context.Context, side broker.Side, size int64, intent broker.IntentId, timeout time.Duration) (broker.Fill, error) {
	ch := make(chan broker.Fill, 1)
	e.mu.Lock()
	e.pendingIntent = intent
	e.pendingCh = ch
	e.mu.Unlock()

	if _, err := e.broker.PlaceMarketOrder(ctx, e.cfg.Symbol, side, size, intent); err != nil {
		e.clearPending(intent)
		return broker.Fill{}, err
	}

	select {
	case f := <-ch:
		return f, nil
	case <-time.After(timeout):
		e.clearPending(intent)
		return broker.Fill{}, ErrBrokerFillTimeout
	case <-ctx.Done():
		e.clearPending(intent)
		return broker.Fill{}, ctx.Err()
	}
}

func (e *Engine) clearPending(intent broker.IntentId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pendingIntent == intent {
		e.pendingIntent = ""
		e.pendingCh = nil
	}
}

func (e *Engine) onFill(f broker.Fill) {
	e.mu.Lock()
	ch := e.pendingCh
	match := ch != nil && e.pendingIntent == f.Intent
	if match {
		e.pendingIntent = ""
		e.pendingCh = nil
	}
	e.mu.Unlock()
	if match {
		ch <- f
	}
}

// snapshotPayload is the JSON body persisted alongside each EngineSnapshot
// row; it carries just enough to resume without replaying the whole bar
// history (RollingStats is rebuilt from Store.RecentCloses instead).
type snapshotPayload struct {
	Position *ledger.Position `json:"position,omitempty"`
	Risk     risk.State       `json:"risk"`
	LastBar  time.Time        `json:"last_bar"`
}

func (e *Engine) persistSnapshot(ctx context.Context) {
	e.mu.Lock()
	st := e.state
	lastBar := e.lastProcessedBarTS
	e.mu.Unlock()

	payload, err := json.Marshal(snapshotPayload{
		Position: e.ledger.Position(),
		Risk:     e.risk.State(),
		LastBar:  lastBar,
	})
	if err != nil {
		e.log.Error().Err(err).Msg("engine: snapshot marshal failed")
		return
	}
	snap := store.Snapshot{
		Time:              lastBar,
		ConfigFingerprint: e.fingerprint,
		State:             st.String(),
		Payload:           payload,
	}
	if err := e.store.AppendSnapshot(ctx, snap); err != nil {
		e.log.Error().Err(err).Msg("engine: snapshot append failed")
	}
}

// finalizeDailySummary rolls up every trade closed during the session that
// just ended (boundary up to, but not including, the new session's start)
// into a DailySummary row, keyed by the TradingCalendar's session date
// rather than wall-clock midnight (spec §9's resolution of that Open
// Question). Best-effort: a failure here never blocks bar processing.
func (e *Engine) finalizeDailySummary(ctx context.Context, sessionEnd, newSessionBarTime time.Time) {
	sessionDate := e.calendar.SessionDate(sessionEnd)
	from := e.calendar.SessionStart(sessionEnd)
	to := e.calendar.SessionStart(newSessionBarTime)

	trades, err := e.store.TradesInRange(ctx, from, to)
	if err != nil {
		e.log.Error().Err(err).Str("session", sessionDate).Msg("engine: daily summary: load trades failed")
		return
	}
	if len(trades) == 0 {
		return
	}

	summary := store.DailySummary{SessionDate: sessionDate}
	var equity, peak float64
	for _, t := range trades {
		if !t.CloseTime.Before(to) {
			continue // closed at the new session's start: not part of this one
		}
		summary.TradeCount++
		pnl, _ := t.RealizedPnL.Float64()
		summary.RealizedPnL += pnl
		if pnl > 0 {
			summary.WinCount++
		} else if pnl < 0 {
			summary.LossCount++
		}
		equity += pnl
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > summary.MaxDrawdown {
			summary.MaxDrawdown = dd
		}
	}
	if summary.TradeCount == 0 {
		return
	}

	if err := e.store.UpsertDailySummary(ctx, summary); err != nil {
		e.log.Error().Err(err).Str("session", sessionDate).Msg("engine: daily summary: upsert failed")
	}
}

// Shutdown flattens any open position (waiting up to
// Config.ShutdownFlattenTimeout), persists a final snapshot, and returns.
// A flatten that doesn't complete in time escalates to a sticky
// RiskHalt{ForceFlatten} and is surfaced via the Alerts collaborator (spec
// §5).
func (e *Engine) Shutdown(ctx context.Context) error {
	e.alerts.Notify(alert.KindShutdown, nil)

	st := e.State()
	if st.Kind == Open {
		shutCtx := ctx
		var cancel context.CancelFunc
		if e.cfg.ShutdownFlattenTimeout > 0 {
			shutCtx, cancel = context.WithTimeout(ctx, e.cfg.ShutdownFlattenTimeout)
			defer cancel()
		}
		pos := e.ledger.Position()
		var lastPrice float64
		if pos != nil {
			lastPrice = pos.EntryPrice
		}
		if err := e.submitExit(shutCtx, market.Bar{Time: time.Now().UTC(), Close: lastPrice}, ledger.ReasonForceFlatten, 0); err != nil {
			e.risk.Halt(risk.HaltForceFlatten, true)
			e.alerts.Notify(alert.KindCircuitBreaker, map[string]any{"reason": "ForceFlatten", "error": err.Error()})
			e.persistSnapshot(ctx)
			return fmt.Errorf("engine: shutdown flatten failed: %w", err)
		}
	}
	e.persistSnapshot(ctx)
	return nil
}

// Reconcile implements the three-way restart reconciliation spec §4.5
// describes: persisted snapshot vs live broker truth.
//   - snapshot Open, broker matches    -> resume as-is
//   - snapshot Open, broker flat       -> accept broker truth, synthesize a
//     close with reason=ForceFlatten using the last known mark
//   - snapshot flat, broker has a position -> schedule a flatten; never
//     infer an entry price/time that was never actually observed
func (e *Engine) Reconcile(ctx context.Context) error {
	snap, ok, err := e.store.LatestSnapshot(ctx, e.fingerprint)
	if err != nil {
		return fmt.Errorf("engine: reconcile: load snapshot: %w", err)
	}
	if !ok {
		e.log.Warn().Msg("engine: no matching snapshot, cold starting")
		return e.seedRollingStats(ctx)
	}

	var payload snapshotPayload
	if err := json.Unmarshal(snap.Payload, &payload); err != nil {
		return fmt.Errorf("engine: reconcile: unmarshal snapshot: %w", err)
	}
	e.risk.Restore(payload.Risk)

	report, err := e.broker.Positions(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("engine: reconcile: broker positions: %w", err)
	}

	snapshotOpen := payload.Position != nil

	switch {
	case snapshotOpen && !report.Flat:
		e.mu.Lock()
		e.state = State{Kind: Open, Side: payload.Position.Side}
		e.mu.Unlock()
		if _, err := e.ledger.Open(payload.Position.Side, payload.Position.Size, payload.Position.EntryPrice,
			payload.Position.EntryTime, payload.Position.ZOnEntry, payload.Position.StopPrice, payload.Position.TakePrice, payload.Position.MaxDuration); err != nil {
			return err
		}
		e.signal.SetPosition(ledger.ViewFromSide(payload.Position.Side))

	case snapshotOpen && report.Flat:
		e.log.Warn().Msg("engine: snapshot open but broker flat, synthesizing ForceFlatten close")
		if _, err := e.ledger.Open(payload.Position.Side, payload.Position.Size, payload.Position.EntryPrice,
			payload.Position.EntryTime, payload.Position.ZOnEntry, payload.Position.StopPrice, payload.Position.TakePrice, payload.Position.MaxDuration); err != nil {
			return err
		}
		markPrice := report.Price
		if markPrice <= 0 {
			markPrice = payload.Position.EntryPrice
		}
		trade, err := e.ledger.Close(markPrice, time.Now().UTC(), ledger.ReasonForceFlatten, 0)
		if err != nil {
			return err
		}
		e.signal.SetPosition(signal.Flat)
		e.risk.Record(trade, time.Now().UTC())
		if err := e.store.AppendTrade(ctx, trade); err != nil {
			return err
		}
		observeTrade(trade)
		e.mu.Lock()
		e.state = State{Kind: Idle}
		e.mu.Unlock()

	case !snapshotOpen && !report.Flat:
		e.log.Warn().Msg("engine: broker has a position the snapshot doesn't know about, scheduling a safe-default flatten")
		e.mu.Lock()
		e.state = State{Kind: Open, Side: ledger.SideFromView(sideFromBroker(report.Side))}
		e.mu.Unlock()
		// We never infer an entry time/price that was never observed: open
		// the position at the broker's reported mark as both entry and
		// current price, so the upcoming flatten realizes ~zero P&L drift.
		if _, err := e.ledger.Open(ledger.SideFromView(sideFromBroker(report.Side)), report.Size, report.Price, time.Now().UTC(), 0, 0, 0, 0); err != nil {
			return err
		}
		e.signal.SetPosition(sideFromBroker(report.Side))
		return e.Shutdown(ctx)

	default:
		e.mu.Lock()
		e.state = State{Kind: Idle}
		e.mu.Unlock()
	}

	return e.seedRollingStats(ctx)
}

// OpenPosition exposes the ledger's current position, if any, for callers
// that need to reason about it without going through the bar loop (the
// BacktestDriver uses this to evaluate stop/take levels against a bar's
// full OHLC range).
func (e *Engine) OpenPosition() *ledger.Position {
	return e.ledger.Position()
}

// ForceExitAt closes any open position immediately at the given price,
// bypassing the broker fill-wait path entirely. It exists for the
// BacktestDriver, which can see a bar's full High/Low range and so detects
// stop/take hits the live Engine cannot (ProcessBar only ever sees a bar's
// Close). Callers must invoke this before calling ProcessBar for the same
// bar, so RollingStats and the signal generator still observe that bar's
// Close exactly once through the normal path.
func (e *Engine) ForceExitAt(ctx context.Context, price float64, at time.Time, reason ledger.CloseReason) error {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	if st.Kind != Open {
		return nil
	}
	pos := e.ledger.Position()
	if pos == nil {
		return nil
	}
	side := pos.Side
	exitPrice := e.ledger.ExitFillPrice(side, price)
	trade, err := e.ledger.Close(exitPrice, at, reason, 0)
	if err != nil {
		return err
	}
	e.signal.SetPosition(signal.Flat)
	e.risk.Record(trade, at)
	if err := e.store.AppendTrade(ctx, trade); err != nil {
		return fmt.Errorf("engine: trade append failed, halting consumption: %w", err)
	}
	observeTrade(trade)
	e.mu.Lock()
	e.state = State{Kind: Idle}
	e.mu.Unlock()
	e.alerts.Notify(alert.KindTradeExit, map[string]any{"side": side.String(), "price": exitPrice, "reason": string(reason)})
	e.persistSnapshot(ctx)
	return nil
}

// observeTrade feeds a closed trade into the trades_total counter, labeled
// by win/loss outcome and close reason.
func observeTrade(trade ledger.Trade) {
	result := "loss"
	if trade.RealizedPnL.Sign() > 0 {
		result = "win"
	}
	metrics.ObserveTrade(result, string(trade.CloseReason))
}

func sideFromBroker(s broker.Side) signal.PositionView {
	if s == broker.SideSell {
		return signal.Short
	}
	return signal.Long
}

// seedRollingStats rebuilds the RollingStats window from the last L closes
// recorded in the Store, falling back to a cold start if none are present
// (spec §4.5).
func (e *Engine) seedRollingStats(ctx context.Context) error {
	closes, err := e.store.RecentCloses(ctx, e.stats.Lookback())
	if err != nil {
		return fmt.Errorf("engine: seed rolling stats: %w", err)
	}
	if len(closes) == 0 {
		return nil
	}
	e.stats.Reset()
	for _, c := range closes {
		if _, _, err := e.stats.Update(c); err != nil {
			return err
		}
	}
	return nil
}
