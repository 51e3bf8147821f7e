package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"meanrevert/internal/market"
)

// BridgeBroker talks to an execution sidecar over HTTP, generalizing the
// teacher's broker_bridge.go from a spot-crypto quote/base order model to
// the futures market/size order model spec §6 requires.
type BridgeBroker struct {
	base string
	hc   *http.Client

	mu        sync.Mutex
	connected bool
	onFill    OnFill
}

// NewBridgeBroker constructs a BridgeBroker against the given sidecar base
// URL, trimming trailing whitespace/comments the way the teacher's
// NewBridgeBroker does for values read out of a loosely-formatted env file.
func NewBridgeBroker(base string) *BridgeBroker {
	base = strings.TrimSpace(base)
	if i := strings.IndexAny(base, " \t#"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if base == "" {
		base = "http://127.0.0.1:8787"
	}
	base = strings.TrimRight(base, "/")
	return &BridgeBroker{base: base, hc: &http.Client{Timeout: 15 * time.Second}}
}

func (b *BridgeBroker) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s/health", b.base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := b.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("broker: sidecar health %d: %s", res.StatusCode, string(body))
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return nil
}

func (b *BridgeBroker) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}

func (b *BridgeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// SubscribeBars polls the sidecar's candle endpoint on a fixed interval and
// pushes new bars onto the returned channel, closing it when ctx is done.
func (b *BridgeBroker) SubscribeBars(ctx context.Context, symbol string) (<-chan market.Bar, error) {
	if !b.IsConnected() {
		return nil, ErrNotConnected
	}
	out := make(chan market.Bar, 16)
	go func() {
		defer close(out)
		var lastTime time.Time
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				bars, err := b.fetchCandles(ctx, symbol, 5)
				if err != nil {
					continue
				}
				for _, bar := range bars {
					if bar.Time.After(lastTime) {
						lastTime = bar.Time
						out <- bar
					}
				}
			}
		}
	}()
	return out, nil
}

func (b *BridgeBroker) fetchCandles(ctx context.Context, symbol string, limit int) ([]market.Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(limit))
	u := fmt.Sprintf("%s/candles?%s", b.base, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := b.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("broker: candles %d: %s", res.StatusCode, string(body))
	}

	var raw []struct {
		Time   string  `json:"time"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]market.Bar, 0, len(raw))
	for _, r := range raw {
		t, err := time.Parse(time.RFC3339, r.Time)
		if err != nil {
			continue
		}
		out = append(out, market.Bar{Time: t, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
	}
	return out, nil
}

// PlaceMarketOrder posts {symbol, side, size, intent} to the sidecar's
// order endpoint, tolerating a flexible response shape the way the
// teacher's broker_bridge.go does for its PlacedOrder fields.
func (b *BridgeBroker) PlaceMarketOrder(ctx context.Context, symbol string, side Side, size int64, intent IntentId) (IntentId, error) {
	if !b.IsConnected() {
		return "", ErrNotConnected
	}
	if intent == "" {
		intent = IntentId(uuid.New().String())
	}

	body := map[string]any{
		"symbol": symbol,
		"side":   string(side),
		"size":   size,
		"intent": string(intent),
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/order/market", b.base)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bs))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		respBody, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("broker: order %d: %s", res.StatusCode, string(respBody))
	}

	var out struct {
		Price float64 `json:"price"`
		Size  int64   `json:"size"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}

	b.mu.Lock()
	cb := b.onFill
	b.mu.Unlock()
	if cb != nil {
		cb(Fill{Intent: intent, Price: out.Price, Time: time.Now().UTC(), Size: out.Size})
	}
	return intent, nil
}

func (b *BridgeBroker) CancelOrder(ctx context.Context, intent IntentId) error {
	u := fmt.Sprintf("%s/order/%s", b.base, url.PathEscape(string(intent)))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	res, err := b.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		respBody, _ := io.ReadAll(res.Body)
		return fmt.Errorf("broker: cancel %d: %s", res.StatusCode, string(respBody))
	}
	return nil
}

func (b *BridgeBroker) Positions(ctx context.Context, symbol string) (PositionReport, error) {
	u := fmt.Sprintf("%s/positions?symbol=%s", b.base, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return PositionReport{}, err
	}
	res, err := b.hc.Do(req)
	if err != nil {
		return PositionReport{}, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		respBody, _ := io.ReadAll(res.Body)
		return PositionReport{}, fmt.Errorf("broker: positions %d: %s", res.StatusCode, string(respBody))
	}

	var out struct {
		Flat  bool    `json:"flat"`
		Side  string  `json:"side"`
		Size  int64   `json:"size"`
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return PositionReport{}, err
	}
	return PositionReport{Flat: out.Flat, Side: Side(out.Side), Size: out.Size, Price: out.Price}, nil
}

func (b *BridgeBroker) SetOnFill(cb OnFill) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFill = cb
}
