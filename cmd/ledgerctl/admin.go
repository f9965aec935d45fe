package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/atmx/ledger-engine/internal/pricing"
)

type resetCmd struct {
	teams    int
	cash     int64
	market   bool
	clearLog bool
	yes      bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "recreate every team account with starting cash" }
func (*resetCmd) Usage() string {
	return `ledgerctl reset -yes [-teams <n>] [-cash <amount>] [-market] [-clear-log]

  Replaces all accounts with teams 1..n plus the testing team n+1. The
  server should be stopped first; it caches serials and prices in memory.
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.teams, "teams", 0, "Number of teams (defaults to game.teams).")
	f.Int64Var(&c.cash, "cash", 0, "Starting cash per team (defaults to game.starter_cash).")
	f.BoolVar(&c.market, "market", false, "Also reset prices and return to round 0.")
	f.BoolVar(&c.clearLog, "clear-log", false, "Also clear the audit log.")
	f.BoolVar(&c.yes, "yes", false, "Confirm the reset.")
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(os.Stderr, "refusing to reset without -yes")
		return subcommands.ExitUsageError
	}
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.close()

	if c.teams == 0 {
		c.teams = e.cfg.Game.Teams
	}
	if c.cash == 0 {
		c.cash = e.cfg.Game.StarterCash
	}
	if err := e.ledger.Reset(ctx, c.teams, c.cash); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if c.market {
		cat, err := e.cfg.Catalog()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		engine, err := pricing.NewEngine(cat, e.store, pricing.Config{
			Seed:          e.cfg.Market.Seed,
			TicksPerRound: e.cfg.Market.TicksPerRound,
			FinalRound:    e.cfg.Game.FinalRound,
		}, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		if err := engine.ResetMarket(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
	}

	if c.clearLog {
		if err := e.ledger.ClearLog(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
	}

	fmt.Printf("reset %d teams (plus testing team %d) with %d each\n", c.teams, c.teams+1, c.cash)
	return subcommands.ExitSuccess
}

type clearLogCmd struct {
	yes bool
}

func (*clearLogCmd) Name() string     { return "clear-log" }
func (*clearLogCmd) Synopsis() string { return "discard the audit log and restart serials at 0" }
func (*clearLogCmd) Usage() string {
	return `ledgerctl clear-log -yes
`
}

func (c *clearLogCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm clearing the log.")
}

func (c *clearLogCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(os.Stderr, "refusing to clear the log without -yes")
		return subcommands.ExitUsageError
	}
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.close()

	if err := e.ledger.ClearLog(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println("log cleared")
	return subcommands.ExitSuccess
}
