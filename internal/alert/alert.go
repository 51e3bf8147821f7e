// Package alert implements the fire-and-forget Alerts collaborator (spec
// §6): notify(kind, payload), with a Kind for startup/shutdown, trade
// entry/exit, circuit breaker activation, broker disconnect/reconnect, and
// daily summary. The Engine sends shutdown, trade entry/exit and circuit
// breaker alerts; nothing in this module sends the startup, broker
// disconnect/reconnect or daily summary kinds.
// Alert failures must never block the Engine, mirroring the teacher's
// trader.go: postSlack, which ignores every error it can encounter.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Kind enumerates the alert-worthy events spec §6 calls out.
type Kind string

const (
	KindStartup            Kind = "startup"
	KindShutdown            Kind = "shutdown"
	KindTradeEntry          Kind = "trade_entry"
	KindTradeExit           Kind = "trade_exit"
	KindCircuitBreaker      Kind = "circuit_breaker"
	KindBrokerDisconnected  Kind = "broker_disconnected"
	KindBrokerReconnected   Kind = "broker_reconnected"
	KindDailySummary        Kind = "daily_summary"
)

// Notifier is the Alerts collaborator. Implementations must never return an
// error that the caller is expected to act on — notify is best-effort.
type Notifier interface {
	Notify(kind Kind, payload map[string]any)
}

// NoOp discards every alert. Used in backtests and tests where no external
// channel should be exercised.
type NoOp struct{}

// Notify implements Notifier by doing nothing.
func (NoOp) Notify(Kind, map[string]any) {}

// Webhook posts a JSON payload to a configured URL (e.g. a Slack incoming
// webhook), generalizing the teacher's postSlack to the full Kind/payload
// shape spec §6 describes instead of a single free-text message.
type Webhook struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
	Log     zerolog.Logger
}

// NewWebhook constructs a Webhook notifier. An empty url makes Notify a
// no-op, mirroring the teacher's "no SLACK_WEBHOOK configured" behavior.
func NewWebhook(url string, log zerolog.Logger) *Webhook {
	return &Webhook{
		URL:     url,
		Client:  http.DefaultClient,
		Timeout: 3 * time.Second,
		Log:     log,
	}
}

// Notify posts {"kind":..., "payload":...} to the configured webhook URL.
// Errors are logged, never propagated — spec §6 requires alert failures to
// never block the Engine.
func (w *Webhook) Notify(kind Kind, payload map[string]any) {
	if w.URL == "" {
		return
	}
	body := map[string]any{"kind": string(kind), "payload": payload, "time": time.Now().UTC()}
	bs, err := json.Marshal(body)
	if err != nil {
		w.Log.Warn().Err(err).Str("kind", string(kind)).Msg("alert: marshal failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(bs))
	if err != nil {
		w.Log.Warn().Err(err).Str("kind", string(kind)).Msg("alert: build request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		w.Log.Warn().Err(err).Str("kind", string(kind)).Msg("alert: post failed")
		return
	}
	defer resp.Body.Close()
}
