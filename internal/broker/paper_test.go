package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meanrevert/internal/market"
)

func TestPaperBrokerRequiresConnectBeforeOrder(t *testing.T) {
	p := NewPaperBroker()
	_, err := p.PlaceMarketOrder(context.Background(), "MES", SideBuy, 1, "")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPaperBrokerFillsAtLastFedPrice(t *testing.T) {
	p := NewPaperBroker()
	require.NoError(t, p.Connect(context.Background()))
	_, err := p.SubscribeBars(context.Background(), "MES")
	require.NoError(t, err)

	var got Fill
	p.SetOnFill(func(f Fill) { got = f })

	p.Feed(market.Bar{Time: time.Now(), Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10})

	intent, err := p.PlaceMarketOrder(context.Background(), "MES", SideBuy, 1, "")
	require.NoError(t, err)
	assert.NotEmpty(t, intent)
	assert.Equal(t, 100.5, got.Price)
}

func TestPaperBrokerIdempotentIntentDoesNotDoubleFill(t *testing.T) {
	p := NewPaperBroker()
	require.NoError(t, p.Connect(context.Background()))
	p.Feed(market.Bar{Time: time.Now(), Open: 100, High: 101, Low: 99, Close: 100, Volume: 10})

	fillCount := 0
	p.SetOnFill(func(Fill) { fillCount++ })

	_, err := p.PlaceMarketOrder(context.Background(), "MES", SideBuy, 1, "dup-1")
	require.NoError(t, err)
	_, err = p.PlaceMarketOrder(context.Background(), "MES", SideBuy, 1, "dup-1")
	require.NoError(t, err)
	assert.Equal(t, 1, fillCount)
}

func TestPaperBrokerPositionsReportsConfiguredTruth(t *testing.T) {
	p := NewPaperBroker()
	p.SetPosition(PositionReport{Flat: false, Side: SideBuy, Size: 2, Price: 105})
	pr, err := p.Positions(context.Background(), "MES")
	require.NoError(t, err)
	assert.False(t, pr.Flat)
	assert.Equal(t, int64(2), pr.Size)
}
