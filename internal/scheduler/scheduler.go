// Package scheduler drives the market clock with cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/pricing"
)

// Market is the part of the price engine the scheduler drives.
type Market interface {
	Tick(ctx context.Context) ([]model.StockQuote, error)
	EndRound(ctx context.Context) (model.RoundState, error)
	Round(ctx context.Context) (model.RoundState, error)
}

// Scheduler runs the price tick on a cron spec. When AutoEnd is set, a round
// is closed once it has seen ticksPerRound ticks.
type Scheduler struct {
	cron          *cron.Cron
	market        Market
	ctx           context.Context
	ticksPerRound int
	autoEnd       bool

	mu          sync.Mutex
	tickedRound int
	ticks       int
}

// New creates a scheduler. Specs use six fields, seconds first.
func New(ctx context.Context, market Market, ticksPerRound int, autoEnd bool) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithSeconds()),
		market:        market,
		ctx:           ctx,
		ticksPerRound: ticksPerRound,
		autoEnd:       autoEnd,
	}
}

// Register adds the tick job.
func (s *Scheduler) Register(tickSpec string) error {
	if _, err := s.cron.AddFunc(tickSpec, s.tick); err != nil {
		return fmt.Errorf("register tick %q: %w", tickSpec, err)
	}
	slog.Info("market tick registered", "spec", tickSpec, "ticks_per_round", s.ticksPerRound, "auto_end", s.autoEnd)
	return nil
}

// Run starts the cron loop and blocks until ctx is done, then waits for a
// running tick to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	slog.Info("scheduler started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tick() {
	quotes, err := s.market.Tick(s.ctx)
	if errors.Is(err, pricing.ErrRoundClosed) {
		return
	}
	if err != nil {
		slog.Error("market tick failed", "err", err)
		return
	}

	if !s.autoEnd || s.ticksPerRound <= 0 {
		return
	}
	state, err := s.market.Round(s.ctx)
	if err != nil {
		slog.Error("read round after tick", "err", err)
		return
	}

	s.mu.Lock()
	if state.Round != s.tickedRound {
		s.tickedRound = state.Round
		s.ticks = 0
	}
	s.ticks++
	done := s.ticks >= s.ticksPerRound
	s.mu.Unlock()

	if !done {
		return
	}
	if _, err := s.market.EndRound(s.ctx); err != nil && !errors.Is(err, pricing.ErrRoundClosed) {
		slog.Error("auto end round failed", "round", state.Round, "err", err)
		return
	}
	slog.Info("round closed after final tick", "round", state.Round, "stocks", len(quotes))
}
