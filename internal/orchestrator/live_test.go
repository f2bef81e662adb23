package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"anchor-rebalancer/internal/broker"
	"anchor-rebalancer/internal/market"
)

// A SIGINT-style cancellation is a clean shutdown and must not surface as
// an error to the caller.
func TestLiveRunReturnsNilOnCancel(t *testing.T) {
	core, _, _ := newTestCore(broker.NewSimBroker())
	pos := simPosition(10, 6000, 100)
	core.RegisterPosition(&pos)

	provider := market.NewStaticProvider()
	provider.SetQuote(regularQuote(100, time.Now()))

	live := NewLive(core, provider, RealClock{}, LiveConfig{
		PollInterval: 2 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- live.Run(ctx) }()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after cancel: %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
