package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpDoesNothing(t *testing.T) {
	var n Notifier = NoOp{}
	assert.NotPanics(t, func() { n.Notify(KindStartup, nil) })
}

func TestWebhookPostsJSONPayload(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, zerolog.Nop())
	w.Notify(KindTradeEntry, map[string]any{"side": "Long", "price": 100.5})

	assert.Equal(t, "trade_entry", gotBody["kind"])
	payload, ok := gotBody["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Long", payload["side"])
}

func TestWebhookEmptyURLIsNoOp(t *testing.T) {
	w := NewWebhook("", zerolog.Nop())
	assert.NotPanics(t, func() { w.Notify(KindShutdown, nil) })
}

func TestWebhookUnreachableDoesNotPanic(t *testing.T) {
	w := NewWebhook("http://127.0.0.1:0", zerolog.Nop())
	assert.NotPanics(t, func() { w.Notify(KindBrokerDisconnected, nil) })
}
