package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/valuation"
)

type accountsCmd struct {
	asJSON bool
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list every team's deposit, revenue and holdings" }
func (*accountsCmd) Usage() string {
	return `ledgerctl accounts [-json]

  Prints one row per team, valued at the stored prices, followed by the
  revenue ranking.
`
}

func (c *accountsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "Print the account summaries as JSON.")
}

func (c *accountsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.close()

	accounts, err := e.ledger.Accounts(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	quotes, err := e.store.ListQuotes(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	summaries := make([]valuation.Summary, len(accounts))
	for i, a := range accounts {
		summaries[i] = valuation.Summarize(a, quotes, e.cfg.Game.Currency)
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	cur := e.cfg.Game.Currency
	fmt.Println("| Team | Deposit | Revenue | Unrealized | Net worth | Holdings |")
	fmt.Println("|-----:|--------:|--------:|-----------:|----------:|----------|")
	for _, s := range summaries {
		holdings := make([]string, 0, len(s.Positions))
		for _, p := range s.Positions {
			holdings = append(holdings, fmt.Sprintf("%s x%d", p.Label, p.Lots))
		}
		fmt.Printf("| %d | %s | %s | %s | %s | %s |\n", s.Team,
			s.DepositDisplay, valuation.FormatCash(s.Revenue, cur),
			valuation.FormatCash(s.TotalUnrealized, cur), valuation.FormatCash(s.NetWorth, cur),
			strings.Join(holdings, ", "))
	}

	fmt.Println()
	for _, r := range valuation.RevenueRanking(accounts) {
		fmt.Printf("%d. team %d  %s\n", r.Rank, r.Team, valuation.FormatCash(r.Revenue, cur))
	}
	return subcommands.ExitSuccess
}

type logCmd struct {
	n    int
	team int
}

func (*logCmd) Name() string     { return "log" }
func (*logCmd) Synopsis() string { return "display the audit log in serial order" }
func (*logCmd) Usage() string {
	return `ledgerctl log [-n <count>] [-team <team>]

  Prints the most recent entries, or every entry touching one team.
`
}

func (c *logCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.n, "n", 20, "Number of recent entries to show (0 for all).")
	f.IntVar(&c.team, "team", 0, "Only show entries touching this team.")
}

func (c *logCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.close()

	var entries []model.LedgerEntry
	if c.team > 0 {
		entries, err = e.ledger.TeamLog(ctx, c.team)
	} else {
		entries, err = e.ledger.RecentLog(ctx, c.n)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if len(entries) == 0 {
		fmt.Println("log is empty")
		return subcommands.ExitSuccess
	}
	for _, entry := range entries {
		fmt.Println(describe(entry, e.cfg.Game.Currency))
	}
	return subcommands.ExitSuccess
}

type marketCmd struct{}

func (*marketCmd) Name() string     { return "market" }
func (*marketCmd) Synopsis() string { return "show the current round and stock quotes" }
func (*marketCmd) Usage() string {
	return `ledgerctl market
`
}

func (*marketCmd) SetFlags(*flag.FlagSet) {}

func (*marketCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.close()

	round, err := e.store.GetRound(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	quotes, err := e.store.ListQuotes(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	status := "closed"
	if round.TradingOpen() {
		status = "open"
	}
	fmt.Printf("round %d, trading %s\n\n", round.Round, status)
	fmt.Println("| # | Stock | Price | Close | Lot cost |")
	fmt.Println("|--:|-------|------:|------:|---------:|")
	for _, q := range quotes {
		fmt.Printf("| %d | %s | %s | %s | %d |\n", q.Index, q.Label(),
			q.Price.StringFixed(2), q.Close.StringFixed(2), q.UnitCost())
	}
	return subcommands.ExitSuccess
}
