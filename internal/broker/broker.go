// Package broker defines the Broker collaborator (spec §6): connect/
// disconnect/subscribe, place/cancel orders, and report fills via callback.
// It is owned exclusively by the Engine (spec §5: "Broker owned by Engine,
// not shared").
//
// Two concrete implementations are provided: PaperBroker, an in-memory
// simulator grounded on the teacher's broker_paper.go, and BridgeBroker, an
// HTTP client grounded on the teacher's broker_bridge.go. Guarded wraps
// either behind a sony/gobreaker circuit breaker for transport failures,
// which is a distinct concern from internal/risk.Gate's business-rule
// circuit breaker.
package broker

import (
	"context"
	"errors"
	"time"

	"meanrevert/internal/market"
)

// Side is the order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// IntentId identifies a submitted order idempotently: a reconnect must not
// cause a duplicate order to be placed for the same IntentId (spec §6).
type IntentId string

// Fill reports an order's execution back to the Engine.
type Fill struct {
	Intent    IntentId
	Price     float64
	Time      time.Time
	Size      int64
}

// OnFill is invoked once per fill. Implementations of Broker must deliver
// exactly one Fill per accepted order intent.
type OnFill func(Fill)

// PositionReport mirrors what a real broker would report for
// reconciliation on restart (spec §4.5).
type PositionReport struct {
	Flat  bool
	Side  Side // meaningful only when !Flat
	Size  int64
	Price float64 // broker's last known mark, used to synthesize a ForceFlatten close
}

// ErrNotConnected is returned by operations attempted while disconnected.
var ErrNotConnected = errors.New("broker: not connected")

// Broker is the minimal surface the Engine needs to operate (spec §6).
// Disconnections are pauses, not terminal failures: Connect may be called
// again, and no duplicate intents must result from a reconnect.
type Broker interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	SubscribeBars(ctx context.Context, symbol string) (<-chan market.Bar, error)

	// PlaceMarketOrder submits a market order and returns an idempotent
	// IntentId. The fill arrives asynchronously via the OnFill callback
	// registered with SetOnFill.
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, size int64, intent IntentId) (IntentId, error)
	CancelOrder(ctx context.Context, intent IntentId) error

	// Positions reports the broker's live view of open positions, used by
	// the Engine's restart reconciliation (spec §4.5).
	Positions(ctx context.Context, symbol string) (PositionReport, error)

	SetOnFill(OnFill)
}
