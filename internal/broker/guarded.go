package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sony/gobreaker"

	"meanrevert/internal/market"
)

// Guarded wraps a Broker with a sony/gobreaker circuit breaker around order
// submission, tripping after repeated transport failures so the Engine
// stops hammering a broken sidecar/exchange connection. This is distinct
// from internal/risk.Gate, which denies trades for business reasons even
// when the broker is healthy.
type Guarded struct {
	inner Broker
	cb    *gobreaker.CircuitBreaker[any]
}

// NewGuarded wraps inner with a breaker that opens after consecutiveFailures
// transport errors in a row and stays open for openFor before probing again.
func NewGuarded(inner Broker, consecutiveFailures uint32, openFor time.Duration) *Guarded {
	st := gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
	}
	return &Guarded{inner: inner, cb: gobreaker.NewCircuitBreaker[any](st)}
}

// State exposes the breaker's current state for metrics/logging.
func (g *Guarded) State() gobreaker.State { return g.cb.State() }

func (g *Guarded) Connect(ctx context.Context) error {
	_, err := g.cb.Execute(func() (any, error) { return nil, g.inner.Connect(ctx) })
	return err
}

func (g *Guarded) Disconnect(ctx context.Context) error { return g.inner.Disconnect(ctx) }
func (g *Guarded) IsConnected() bool                     { return g.inner.IsConnected() }

func (g *Guarded) SubscribeBars(ctx context.Context, symbol string) (<-chan market.Bar, error) {
	return g.inner.SubscribeBars(ctx, symbol)
}

func (g *Guarded) PlaceMarketOrder(ctx context.Context, symbol string, side Side, size int64, intent IntentId) (IntentId, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.inner.PlaceMarketOrder(ctx, symbol, side, size, intent)
	})
	if err != nil {
		return "", err
	}
	return res.(IntentId), nil
}

func (g *Guarded) CancelOrder(ctx context.Context, intent IntentId) error {
	_, err := g.cb.Execute(func() (any, error) { return nil, g.inner.CancelOrder(ctx, intent) })
	return err
}

func (g *Guarded) Positions(ctx context.Context, symbol string) (PositionReport, error) {
	res, err := g.cb.Execute(func() (any, error) { return g.inner.Positions(ctx, symbol) })
	if err != nil {
		return PositionReport{}, err
	}
	return res.(PositionReport), nil
}

func (g *Guarded) SetOnFill(cb OnFill) { g.inner.SetOnFill(cb) }

// ReconnectLoop retries Connect with a jpillora/backoff exponential
// schedule until it succeeds, ctx is done (returning ctx.Err()), or
// maxAttempts attempts have failed when maxAttempts > 0 (returning the last
// Connect error, wrapped). The Engine does not call it.
func ReconnectLoop(ctx context.Context, b Broker, min, max time.Duration, maxAttempts int) error {
	bo := &backoff.Backoff{Min: min, Max: max, Factor: 2, Jitter: true}
	var lastErr error
	for attempt := 0; maxAttempts <= 0 || attempt < maxAttempts; attempt++ {
		if err := b.Connect(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.Duration()):
		}
	}
	return fmt.Errorf("broker: reconnect exhausted attempts: %w", lastErr)
}
