package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/market"
	"anchor-rebalancer/internal/models"
	"anchor-rebalancer/pkg/utils"
)

// LiveConfig holds live-loop settings.
type LiveConfig struct {
	PollInterval  time.Duration
	QuoteMaxAge   time.Duration
	RetryAttempts int
}

// Live polls the market on a fixed interval and evaluates every registered
// position once per interval. Positions are independent and evaluated
// concurrently; each position's evaluation is serialized by the core.
type Live struct {
	core     *Core
	provider market.DataProvider
	clock    Clock
	cfg      LiveConfig
	logger   zerolog.Logger
}

// NewLive creates the live orchestrator.
func NewLive(core *Core, provider market.DataProvider, clock Clock, cfg LiveConfig, logger zerolog.Logger) *Live {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	return &Live{core: core, provider: provider, clock: clock, cfg: cfg, logger: logger}
}

// Core exposes the shared orchestration state, e.g. for manual anchor
// resets.
func (l *Live) Core() *Core { return l.core }

// Run drives the polling loop until the context is cancelled. One worker
// per position; cancellation lands between ticks, never mid-mutation. A
// clean cancellation is a normal shutdown, not an error.
func (l *Live) Run(ctx context.Context) error {
	l.core.mu.Lock()
	ids := make([]string, 0, len(l.core.positions))
	symbols := make(map[string]string, len(l.core.positions))
	for id, pos := range l.core.positions {
		ids = append(ids, id)
		symbols[id] = pos.Symbol
	}
	l.core.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(positionID, symbol string) {
			defer wg.Done()
			l.pollLoop(ctx, positionID, symbol)
		}(id, symbols[id])
	}
	wg.Wait()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (l *Live) pollLoop(ctx context.Context, positionID, symbol string) {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.tickOnce(ctx, positionID, symbol); err != nil {
				switch {
				case errors.Is(err, errors.ErrStaleQuote):
					l.logger.Debug().Str("position", positionID).Err(err).Msg("Skipping tick on stale quote")
				case errors.Is(err, errors.ErrInvalidConfig):
					l.logger.Error().Str("position", positionID).Err(err).Msg("Tick aborted on invalid config")
				default:
					l.logger.Error().Str("position", positionID).Err(err).Msg("Tick failed")
				}
			}
		}
	}
}

// tickOnce fetches a quote with bounded-backoff retry on transient errors
// and runs one evaluation. Stale quotes skip the tick; the next poll
// re-attempts.
func (l *Live) tickOnce(ctx context.Context, positionID, symbol string) error {
	retryCfg := utils.RetryConfig{
		MaxAttempts:   l.cfg.RetryAttempts,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		IsRetryable:   errors.IsTransient,
	}
	quote, err := utils.RetryWithResult(ctx, retryCfg, func() (*models.Quote, error) {
		return l.provider.GetQuote(ctx, symbol)
	})
	if err != nil {
		return err
	}

	if err := market.CheckFresh(quote, l.clock.Now(), l.cfg.QuoteMaxAge); err != nil {
		return err
	}

	_, err = l.core.Tick(ctx, positionID, *quote)
	return err
}
