// Package store implements the append-only durable Store (spec §4.8):
// record kinds Trade, Signal, EngineSnapshot, and DailySummary, backed by
// modernc.org/sqlite (pure Go, no cgo) the way the teacher's pack-mate
// polybot's internal/adapters/storage/sqlite.go is, generalized from a
// single-table upsert cache to the append-only, multi-kind log this
// domain needs. Writes are synchronous and PRAGMA synchronous=FULL so a
// commit returning nil genuinely means durable-on-disk before the Engine
// acknowledges a state transition (spec §5).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"meanrevert/internal/ledger"
	"meanrevert/internal/signal"
)

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("store: parse decimal %q: %w", s, err)
	}
	return d, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	open_time        DATETIME NOT NULL,
	close_time       DATETIME NOT NULL,
	side             TEXT NOT NULL,
	size             INTEGER NOT NULL,
	entry_price      REAL NOT NULL,
	exit_price       REAL NOT NULL,
	realized_pnl     TEXT NOT NULL,
	z_on_entry       REAL NOT NULL,
	z_on_exit        REAL NOT NULL,
	close_reason     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);

CREATE TABLE IF NOT EXISTS signals (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	time                DATETIME NOT NULL,
	kind                TEXT NOT NULL,
	price               REAL NOT NULL,
	z                   REAL NOT NULL,
	volume              INTEGER NOT NULL,
	suppressed_reason   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_signals_time ON signals(time);

CREATE TABLE IF NOT EXISTS engine_snapshots (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	time                DATETIME NOT NULL,
	config_fingerprint  TEXT NOT NULL,
	state               TEXT NOT NULL,
	payload_json        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_fp_time ON engine_snapshots(config_fingerprint, time DESC);

CREATE TABLE IF NOT EXISTS daily_summaries (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	session_date         TEXT NOT NULL UNIQUE,
	trade_count          INTEGER NOT NULL,
	win_count            INTEGER NOT NULL,
	loss_count           INTEGER NOT NULL,
	realized_pnl         TEXT NOT NULL,
	max_drawdown         REAL NOT NULL
);
`

// Snapshot is the persisted EngineSnapshot record (spec §6): enough to
// resume the state machine and risk state after a restart, gated by
// ConfigFingerprint matching the running config. It does not hold the
// RollingStats window; the Engine rebuilds that from RecentCloses.
type Snapshot struct {
	Time               time.Time
	ConfigFingerprint  string
	State              string // Engine state name, e.g. "Open{Long}"
	Payload            json.RawMessage
}

// DailySummary is the persisted daily rollup (spec §6), keyed by the
// TradingCalendar-defined session date (not wall-clock date).
type DailySummary struct {
	SessionDate  string
	TradeCount   int
	WinCount     int
	LossCount    int
	RealizedPnL  float64
	MaxDrawdown  float64
}

// Store is a single-writer, many-reader append-only log.
type Store struct {
	db *sql.DB
}

// Open creates or opens a sqlite-backed Store at path, applying the schema
// and capping to one connection the way polybot's SQLiteStorage does,
// since sqlite itself is single-writer.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=FULL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// AppendTrade durably persists a closed Trade. A nil error return means the
// Engine may acknowledge the Exiting->Idle transition (spec §5).
func (s *Store) AppendTrade(ctx context.Context, t ledger.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (open_time, close_time, side, size, entry_price, exit_price,
			realized_pnl, z_on_entry, z_on_exit, close_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OpenTime.UTC(), t.CloseTime.UTC(), t.Side.String(), t.Size, t.EntryPrice, t.ExitPrice,
		t.RealizedPnL.String(), t.ZOnEntry, t.ZOnExit, string(t.CloseReason))
	if err != nil {
		return fmt.Errorf("store: append trade: %w", err)
	}
	return nil
}

// AppendSignal durably persists a Signal event (every bar, not just
// state-changing ones — spec §4.5 step 9), including SuppressedReason when
// the RiskGate denied acting on it.
func (s *Store) AppendSignal(ctx context.Context, sig signal.Signal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (time, kind, price, z, volume, suppressed_reason) VALUES (?, ?, ?, ?, ?, ?)`,
		sig.Timestamp.UTC(), sig.Kind.String(), sig.Price, sig.Z, sig.Volume, sig.SuppressedReason)
	if err != nil {
		return fmt.Errorf("store: append signal: %w", err)
	}
	return nil
}

// AppendSnapshot durably persists an EngineSnapshot, at least once per
// state transition (spec §4.5 step 9).
func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engine_snapshots (time, config_fingerprint, state, payload_json)
		VALUES (?, ?, ?, ?)`,
		snap.Time.UTC(), snap.ConfigFingerprint, snap.State, string(snap.Payload))
	if err != nil {
		return fmt.Errorf("store: append snapshot: %w", err)
	}
	return nil
}

// UpsertDailySummary writes or replaces the rollup for a session date.
func (s *Store) UpsertDailySummary(ctx context.Context, d DailySummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_summaries (session_date, trade_count, win_count, loss_count, realized_pnl, max_drawdown)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_date) DO UPDATE SET
			trade_count  = excluded.trade_count,
			win_count    = excluded.win_count,
			loss_count   = excluded.loss_count,
			realized_pnl = excluded.realized_pnl,
			max_drawdown = excluded.max_drawdown`,
		d.SessionDate, d.TradeCount, d.WinCount, d.LossCount, d.RealizedPnL, d.MaxDrawdown)
	if err != nil {
		return fmt.Errorf("store: upsert daily summary: %w", err)
	}
	return nil
}

// RecentTrades returns the most recent n trades, most recent first.
func (s *Store) RecentTrades(ctx context.Context, n int) ([]ledger.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, close_time, side, size, entry_price, exit_price,
			realized_pnl, z_on_entry, z_on_exit, close_reason
		FROM trades ORDER BY close_time DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// TradesInRange returns trades closed within [from, to], ascending by
// close time.
func (s *Store) TradesInRange(ctx context.Context, from, to time.Time) ([]ledger.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, close_time, side, size, entry_price, exit_price,
			realized_pnl, z_on_entry, z_on_exit, close_reason
		FROM trades WHERE close_time BETWEEN ? AND ? ORDER BY close_time ASC`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: trades in range: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]ledger.Trade, error) {
	var out []ledger.Trade
	for rows.Next() {
		var t ledger.Trade
		var side, pnl, reason string
		if err := rows.Scan(&t.OpenTime, &t.CloseTime, &side, &t.Size, &t.EntryPrice, &t.ExitPrice,
			&pnl, &t.ZOnEntry, &t.ZOnExit, &reason); err != nil {
			return nil, fmt.Errorf("store: scan trade: %w", err)
		}
		if side == "Short" {
			t.Side = ledger.SideShort
		} else {
			t.Side = ledger.SideLong
		}
		dec, err := parseDecimal(pnl)
		if err != nil {
			return nil, err
		}
		t.RealizedPnL = dec
		t.CloseReason = ledger.CloseReason(reason)
		out = append(out, t)
	}
	return out, rows.Err()
}

// DailyAggregate returns the persisted DailySummary for sessionDate, or
// false if none has been written.
func (s *Store) DailyAggregate(ctx context.Context, sessionDate string) (DailySummary, bool, error) {
	var d DailySummary
	err := s.db.QueryRowContext(ctx, `
		SELECT session_date, trade_count, win_count, loss_count, realized_pnl, max_drawdown
		FROM daily_summaries WHERE session_date = ?`, sessionDate).
		Scan(&d.SessionDate, &d.TradeCount, &d.WinCount, &d.LossCount, &d.RealizedPnL, &d.MaxDrawdown)
	if err == sql.ErrNoRows {
		return DailySummary{}, false, nil
	}
	if err != nil {
		return DailySummary{}, false, fmt.Errorf("store: daily aggregate: %w", err)
	}
	return d, true, nil
}

// LatestSnapshot returns the most recent EngineSnapshot matching
// configFingerprint, or false if none exists (a cold start).
func (s *Store) LatestSnapshot(ctx context.Context, configFingerprint string) (Snapshot, bool, error) {
	var snap Snapshot
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT time, config_fingerprint, state, payload_json
		FROM engine_snapshots WHERE config_fingerprint = ?
		ORDER BY time DESC, id DESC LIMIT 1`, configFingerprint).
		Scan(&snap.Time, &snap.ConfigFingerprint, &snap.State, &payload)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("store: latest snapshot: %w", err)
	}
	snap.Payload = json.RawMessage(payload)
	return snap, true, nil
}

// RecentSignals returns the most recent n Signal events, most recent first,
// including SuppressedReason so risk-gate denials are queryable (spec §6).
func (s *Store) RecentSignals(ctx context.Context, n int) ([]signal.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, kind, price, z, volume, suppressed_reason
		FROM signals ORDER BY time DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent signals: %w", err)
	}
	defer rows.Close()

	var out []signal.Signal
	for rows.Next() {
		var sig signal.Signal
		var kind string
		if err := rows.Scan(&sig.Timestamp, &kind, &sig.Price, &sig.Z, &sig.Volume, &sig.SuppressedReason); err != nil {
			return nil, fmt.Errorf("store: scan signal: %w", err)
		}
		sig.Kind = parseSignalKind(kind)
		out = append(out, sig)
	}
	return out, rows.Err()
}

func parseSignalKind(s string) signal.Kind {
	switch s {
	case "EnterLong":
		return signal.EnterLong
	case "EnterShort":
		return signal.EnterShort
	case "ExitLong":
		return signal.ExitLong
	case "ExitShort":
		return signal.ExitShort
	default:
		return signal.Hold
	}
}

// RecentCloses returns the last n bar closes recorded as Signal events, in
// chronological order, used to rebuild RollingStats on restart (spec §4.5:
// "preferred" path before falling back to a cold start).
func (s *Store) RecentCloses(ctx context.Context, n int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT price FROM signals ORDER BY time DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent closes: %w", err)
	}
	defer rows.Close()
	var rev []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("store: scan close: %w", err)
		}
		rev = append(rev, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(rev))
	for i, p := range rev {
		out[len(rev)-1-i] = p
	}
	return out, nil
}
