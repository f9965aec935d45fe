package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/atmx/ledger-engine/internal/config"
	"github.com/atmx/ledger-engine/internal/ledger"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/store"
	"github.com/atmx/ledger-engine/internal/valuation"
)

// env is everything a command needs, opened from the shared config.
type env struct {
	cfg    *config.Config
	store  store.Store
	ledger *ledger.Ledger
	close  func()
}

func openEnv(ctx context.Context) (*env, error) {
	// Keep stdout for command output.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	st, cleanup, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:    cfg,
		store:  st,
		ledger: ledger.New(st, ledger.WithPolicy(cfg.Policy())),
		close:  cleanup,
	}, nil
}

// describe renders one entry as a single log line.
func describe(e model.LedgerEntry, currency string) string {
	head := fmt.Sprintf("#%-5d %s %-12s", e.Serial, e.Time.Local().Format("15:04:05"), e.Actor)
	switch e.Kind {
	case model.KindTransfer:
		return fmt.Sprintf("%s team %d -> team %d  %s  (%s -> %s | %s -> %s)", head,
			e.Team, e.CounterTeam, valuation.FormatCash(e.Amount, currency),
			valuation.FormatCash(e.Before, currency), valuation.FormatCash(e.After, currency),
			valuation.FormatCash(e.CounterBefore, currency), valuation.FormatCash(e.CounterAfter, currency))
	case model.KindStockChange:
		return fmt.Sprintf("%s team %d %s %d lot(s) of %s  %s", head,
			e.Team, e.Side, e.Lots, e.Stock, valuation.FormatCash(e.Amount, currency))
	default:
		return fmt.Sprintf("%s team %d deposit %s -> %s", head,
			e.Team, valuation.FormatCash(e.Before, currency), valuation.FormatCash(e.After, currency))
	}
}
