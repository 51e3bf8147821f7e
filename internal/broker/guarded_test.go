package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBroker struct {
	PaperBroker
	failConnect int
}

func (f *failingBroker) Connect(ctx context.Context) error {
	if f.failConnect > 0 {
		f.failConnect--
		return errors.New("simulated transport failure")
	}
	return f.PaperBroker.Connect(ctx)
}

func TestGuardedTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &failingBroker{failConnect: 5}
	g := NewGuarded(inner, 2, time.Minute)

	err1 := g.Connect(context.Background())
	assert.Error(t, err1)
	err2 := g.Connect(context.Background())
	assert.Error(t, err2)

	assert.Equal(t, gobreaker.StateOpen, g.State())

	err3 := g.Connect(context.Background())
	require.Error(t, err3)
}

func TestGuardedPassesThroughSuccess(t *testing.T) {
	inner := NewPaperBroker()
	g := NewGuarded(inner, 3, time.Minute)
	require.NoError(t, g.Connect(context.Background()))
	assert.True(t, g.IsConnected())
}
