package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"meanrevert/internal/market"
)

// PaperBroker simulates fills at the last fed bar's close, timestamped with
// that bar's time. It applies no slippage itself (the Ledger does). It never
// touches any external system, keeping it grounded on the teacher's
// broker_paper.go: in-memory, no I/O.
type PaperBroker struct {
	mu          sync.Mutex
	connected   bool
	lastPrice   float64
	lastTime    time.Time
	position    PositionReport
	onFill      OnFill
	seenIntents map[IntentId]struct{}
	bars        chan market.Bar
}

// NewPaperBroker constructs a disconnected PaperBroker.
func NewPaperBroker() *PaperBroker {
	return &PaperBroker{
		position:    PositionReport{Flat: true},
		seenIntents: make(map[IntentId]struct{}),
	}
}

func (p *PaperBroker) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *PaperBroker) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

func (p *PaperBroker) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// SubscribeBars returns a channel the caller can feed via Feed (this broker
// has no external market-data source of its own; the backtest driver or a
// live adapter pushes bars onto it).
func (p *PaperBroker) SubscribeBars(ctx context.Context, symbol string) (<-chan market.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ErrNotConnected
	}
	if p.bars == nil {
		p.bars = make(chan market.Bar, 64)
	}
	return p.bars, nil
}

// Feed pushes a bar into the subscription channel and records its close and
// time as the simulated last trade, used by PlaceMarketOrder.
func (p *PaperBroker) Feed(bar market.Bar) {
	p.mu.Lock()
	p.lastPrice = bar.Close
	p.lastTime = bar.Time
	ch := p.bars
	p.mu.Unlock()
	if ch != nil {
		ch <- bar
	}
}

// PlaceMarketOrder simulates an immediate fill at the last fed price and
// bar time (wall-clock time if no bar has been fed yet). If
// intent has already been seen (idempotent resubmission after a simulated
// reconnect) it returns the same IntentId without firing a second Fill.
func (p *PaperBroker) PlaceMarketOrder(ctx context.Context, symbol string, side Side, size int64, intent IntentId) (IntentId, error) {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return "", ErrNotConnected
	}
	if intent == "" {
		intent = IntentId(uuid.New().String())
	}
	if _, seen := p.seenIntents[intent]; seen {
		p.mu.Unlock()
		return intent, nil
	}
	p.seenIntents[intent] = struct{}{}
	price := p.lastPrice
	fillTime := p.lastTime
	cb := p.onFill
	p.mu.Unlock()

	if price <= 0 {
		return "", errors.New("broker: paper broker has no price yet")
	}
	if fillTime.IsZero() {
		fillTime = time.Now().UTC()
	}
	if cb != nil {
		cb(Fill{Intent: intent, Price: price, Time: fillTime, Size: size})
	}
	return intent, nil
}

func (p *PaperBroker) CancelOrder(ctx context.Context, intent IntentId) error {
	// Market orders fill synchronously above; nothing to cancel.
	return nil
}

func (p *PaperBroker) Positions(ctx context.Context, symbol string) (PositionReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

// SetPosition lets the Engine (or a test) set the simulated broker-truth
// position, used to exercise restart reconciliation scenarios.
func (p *PaperBroker) SetPosition(pr PositionReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = pr
}

func (p *PaperBroker) SetOnFill(cb OnFill) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFill = cb
}
