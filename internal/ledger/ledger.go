// Package ledger owns every mutation of team accounts: deposit adjustments,
// inter-team transfers and stock trades. Each mutation is committed to the
// store together with exactly one audit entry carrying the next global
// serial.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/ledger-engine/internal/metrics"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/store"
)

// Mode selects how AdjustDeposit applies its amount.
type Mode string

const (
	Increase Mode = "increase"
	Decrease Mode = "decrease"
	SetTo    Mode = "set"
)

// ParseMode accepts the mode names case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Increase, Decrease, SetTo:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Policy controls which balance checks the ledger enforces.
type Policy string

const (
	// PolicyStrict rejects non-positive amounts, same-team transfers and any
	// mutation that would leave a negative deposit.
	PolicyStrict Policy = "strict"
	// PolicyPermissive applies amounts as given. Deposits may go negative.
	PolicyPermissive Policy = "permissive"
)

// ParsePolicy returns the policy named by s. Empty means strict.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyStrict, nil
	case PolicyStrict, PolicyPermissive:
		return p, nil
	}
	return "", fmt.Errorf("ledger: unknown policy %q", s)
}

// Change is a deposit before and after a mutation.
type Change struct {
	Before int64 `json:"before"`
	After  int64 `json:"after"`
}

// Observer is called with each entry after it is committed, in serial order.
// It must not block.
type Observer func(model.LedgerEntry)

// Option configures a Ledger.
type Option func(*Ledger)

// WithPolicy sets the balance policy. The default is PolicyStrict.
func WithPolicy(p Policy) Option {
	return func(l *Ledger) { l.policy = p }
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithObserver registers a callback for committed entries.
func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observers = append(l.observers, o) }
}

// Ledger serializes mutations per team and commits them through the store.
// Transfers hold both team locks, taken in ascending team order. Serial
// assignment and the store commit happen under one ledger-wide mutex so the
// serial order is the commit order.
type Ledger struct {
	store     store.Store
	policy    Policy
	now       func() time.Time
	observers []Observer

	teamsMu sync.Mutex
	teams   map[int]*sync.Mutex

	commitMu     sync.Mutex
	nextSerial   int64
	serialLoaded bool
}

// New creates a ledger over st.
func New(st store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  st,
		policy: PolicyStrict,
		now:    time.Now,
		teams:  make(map[int]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the configured balance policy.
func (l *Ledger) Policy() Policy {
	return l.policy
}

func (l *Ledger) strict() bool {
	return l.policy != PolicyPermissive
}

// AdjustDeposit changes one team's deposit.
//
// Increase adds amount and, unless liquidation is set, adds it to revenue
// too. Decrease subtracts amount and leaves revenue alone. SetTo replaces the
// deposit and moves revenue by the same delta, in either direction.
func (l *Ledger) AdjustDeposit(ctx context.Context, team int, mode Mode, amount int64, actor string, liquidation bool) (Change, error) {
	switch mode {
	case Increase, Decrease:
		if l.strict() && amount <= 0 {
			return Change{}, l.reject("amount", fmt.Errorf("%w: %d", ErrInvalidAmount, amount))
		}
	case SetTo:
		if l.strict() && amount < 0 {
			return Change{}, l.reject("amount", fmt.Errorf("%w: %d", ErrInvalidAmount, amount))
		}
	default:
		return Change{}, l.reject("mode", fmt.Errorf("%w: %q", ErrInvalidMode, mode))
	}

	// Once started, a mutation runs to completion even if the caller leaves.
	ctx = context.WithoutCancel(ctx)
	unlock := l.lockTeams(team)
	defer unlock()

	acct, err := l.loadAccount(ctx, team)
	if err != nil {
		return Change{}, err
	}

	before := acct.Deposit
	switch mode {
	case Increase:
		acct.Deposit += amount
		if !liquidation {
			acct.Revenue += amount
		}
	case Decrease:
		if l.strict() && before < amount {
			return Change{}, l.reject("funds", fmt.Errorf("%w: team %d has %d, needs %d",
				ErrInsufficientFunds, team, before, amount))
		}
		acct.Deposit -= amount
	case SetTo:
		acct.Deposit = amount
		acct.Revenue += amount - before
	}

	entry := &model.LedgerEntry{
		Kind:   model.KindDepositChange,
		Actor:  actor,
		Team:   team,
		Before: before,
		After:  acct.Deposit,
		Amount: amount,
	}
	if err := l.commit(ctx, entry, *acct); err != nil {
		return Change{}, err
	}

	slog.Info("deposit adjusted",
		"entry", entry.ID,
		"serial", entry.Serial,
		"team", team,
		"mode", string(mode),
		"before", before,
		"after", acct.Deposit,
		"liquidation", liquidation,
		"actor", actor,
	)
	return Change{Before: before, After: acct.Deposit}, nil
}

// Transfer moves amount from one team's deposit to another's. Revenue is
// untouched. One Transfer entry is written under the source team with the
// destination as counter team.
func (l *Ledger) Transfer(ctx context.Context, from, to int, amount int64, actor string) (Change, Change, error) {
	if l.strict() {
		if amount <= 0 {
			return Change{}, Change{}, l.reject("amount", fmt.Errorf("%w: %d", ErrInvalidAmount, amount))
		}
		if from == to {
			return Change{}, Change{}, l.reject("transfer", fmt.Errorf("%w: team %d to itself", ErrInvalidTransfer, from))
		}
	}

	ctx = context.WithoutCancel(ctx)
	unlock := l.lockTeams(from, to)
	defer unlock()

	src, err := l.loadAccount(ctx, from)
	if err != nil {
		return Change{}, Change{}, err
	}

	var dst *model.TeamAccount
	if from == to {
		// Debit and credit cancel out on the same account.
		dst = src
	} else if dst, err = l.loadAccount(ctx, to); err != nil {
		return Change{}, Change{}, err
	}

	if l.strict() && src.Deposit < amount {
		return Change{}, Change{}, l.reject("funds", fmt.Errorf("%w: team %d has %d, needs %d",
			ErrInsufficientFunds, from, src.Deposit, amount))
	}

	srcChange := Change{Before: src.Deposit}
	dstChange := Change{Before: dst.Deposit}
	accounts := []model.TeamAccount{*src}
	if from == to {
		srcChange.After = src.Deposit
		dstChange.After = src.Deposit
	} else {
		src.Deposit -= amount
		dst.Deposit += amount
		srcChange.After = src.Deposit
		dstChange.After = dst.Deposit
		accounts = []model.TeamAccount{*src, *dst}
	}

	entry := &model.LedgerEntry{
		Kind:          model.KindTransfer,
		Actor:         actor,
		Team:          from,
		CounterTeam:   to,
		Before:        srcChange.Before,
		After:         srcChange.After,
		CounterBefore: dstChange.Before,
		CounterAfter:  dstChange.After,
		Amount:        amount,
	}
	if err := l.commit(ctx, entry, accounts...); err != nil {
		return Change{}, Change{}, err
	}

	slog.Info("transfer committed",
		"entry", entry.ID,
		"serial", entry.Serial,
		"from", from,
		"to", to,
		"amount", amount,
		"actor", actor,
	)
	return srcChange, dstChange, nil
}

// TradeStock buys or sells whole lots of one stock at its current price.
//
// A buy appends one lot per unit at the current unit cost and returns the
// total cost. A sell removes the oldest lots first, credits the proceeds and
// returns proceeds minus the cost of the lots removed. Only a positive result
// is added to revenue.
func (l *Ledger) TradeStock(ctx context.Context, team int, side model.Side, stock, lots int, actor string) (int64, error) {
	if side != model.Buy && side != model.Sell {
		return 0, l.reject("side", fmt.Errorf("%w: %q", ErrInvalidSide, side))
	}
	if lots <= 0 {
		return 0, l.reject("amount", fmt.Errorf("%w: %d lots", ErrInvalidAmount, lots))
	}

	ctx = context.WithoutCancel(ctx)
	unlock := l.lockTeams(team)
	defer unlock()

	acct, err := l.loadAccount(ctx, team)
	if err != nil {
		return 0, err
	}
	quote, err := l.store.GetQuote(ctx, stock)
	if err != nil {
		return 0, l.storeErr(fmt.Errorf("stock %d: %w", stock, err))
	}

	unit := quote.UnitCost()
	total := unit * int64(lots)
	var display int64

	switch side {
	case model.Buy:
		if l.strict() && acct.Deposit < total {
			return 0, l.reject("funds", fmt.Errorf("%w: team %d has %d, needs %d",
				ErrInsufficientFunds, team, acct.Deposit, total))
		}
		held := acct.Holdings[stock]
		for i := 0; i < lots; i++ {
			held = append(held, unit)
		}
		acct.Holdings[stock] = held
		acct.Deposit -= total
		display = total

	case model.Sell:
		held := acct.Holdings[stock]
		if lots > len(held) {
			return 0, l.reject("holdings", fmt.Errorf("%w: team %d holds %d lots of %s, selling %d",
				ErrInsufficientHoldings, team, len(held), quote.Label(), lots))
		}
		var cost int64
		for _, c := range held[:lots] {
			cost += c
		}
		if rest := held[lots:]; len(rest) > 0 {
			acct.Holdings[stock] = append([]int64(nil), rest...)
		} else {
			delete(acct.Holdings, stock)
		}
		acct.Deposit += total
		display = total - cost
		if display > 0 {
			acct.Revenue += display
		}
	}

	entry := &model.LedgerEntry{
		Kind:       model.KindStockChange,
		Actor:      actor,
		Team:       team,
		Side:       side,
		StockIndex: stock,
		Stock:      quote.Label(),
		Lots:       lots,
		Amount:     display,
	}
	if err := l.commit(ctx, entry, *acct); err != nil {
		return 0, err
	}

	metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	metrics.TradeLots.WithLabelValues(quote.Symbol, string(side)).Add(float64(lots))

	slog.Info("trade executed",
		"entry", entry.ID,
		"serial", entry.Serial,
		"team", team,
		"side", string(side),
		"stock", quote.Label(),
		"lots", lots,
		"unit_cost", unit,
		"value", display,
		"actor", actor,
	)
	return display, nil
}

// Reset replaces every account with teams 1..teams plus one extra testing
// team, each holding starterCash and nothing else. The audit log is kept.
func (l *Ledger) Reset(ctx context.Context, teams int, starterCash int64) error {
	if teams <= 0 || starterCash < 0 {
		return fmt.Errorf("%w: %d teams, %d starter cash", ErrInvalidAmount, teams, starterCash)
	}

	ctx = context.WithoutCancel(ctx)
	existing, err := l.store.ListAccounts(ctx)
	if err != nil {
		return l.storeErr(err)
	}

	locked := make([]int, 0, teams+1+len(existing))
	for t := 1; t <= teams+1; t++ {
		locked = append(locked, t)
	}
	for _, a := range existing {
		locked = append(locked, a.Team)
	}
	unlock := l.lockTeams(locked...)
	defer unlock()

	accounts := make([]model.TeamAccount, 0, teams+1)
	for t := 1; t <= teams+1; t++ {
		accounts = append(accounts, model.NewTeamAccount(t, starterCash))
	}
	if err := l.store.ResetAccounts(ctx, accounts); err != nil {
		return l.storeErr(err)
	}

	slog.Info("accounts reset", "teams", teams, "testing_team", teams+1, "starter_cash", starterCash)
	return nil
}

// Account returns one team's account.
func (l *Ledger) Account(ctx context.Context, team int) (*model.TeamAccount, error) {
	return l.loadAccount(ctx, team)
}

// Accounts returns every account ordered by team.
func (l *Ledger) Accounts(ctx context.Context) ([]model.TeamAccount, error) {
	accounts, err := l.store.ListAccounts(ctx)
	if err != nil {
		return nil, l.storeErr(err)
	}
	return accounts, nil
}

// RecentLog returns the last n entries in ascending serial order. n <= 0
// returns the whole log.
func (l *Ledger) RecentLog(ctx context.Context, n int) ([]model.LedgerEntry, error) {
	entries, err := l.store.RecentEntries(ctx, n)
	if err != nil {
		return nil, l.storeErr(err)
	}
	return entries, nil
}

// TeamLog returns every entry that touched team, including transfers into it.
func (l *Ledger) TeamLog(ctx context.Context, team int) ([]model.LedgerEntry, error) {
	entries, err := l.store.EntriesByTeam(ctx, team)
	if err != nil {
		return nil, l.storeErr(err)
	}
	return entries, nil
}

// ClearLog discards the audit log and restarts serials at 0.
func (l *Ledger) ClearLog(ctx context.Context) error {
	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	if err := l.store.ClearLog(context.WithoutCancel(ctx)); err != nil {
		l.serialLoaded = false
		return l.storeErr(err)
	}
	l.nextSerial = 0
	l.serialLoaded = true
	slog.Info("ledger log cleared")
	return nil
}

// commit stamps entry with the next serial, an id and the time, then hands
// it to the store together with the updated accounts. On failure the serial
// is not consumed and is re-read from the store on the next commit.
func (l *Ledger) commit(ctx context.Context, entry *model.LedgerEntry, accounts ...model.TeamAccount) error {
	start := time.Now()

	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	if !l.serialLoaded {
		serial, err := l.store.LogSerial(ctx)
		if err != nil {
			metrics.StoreFailures.Inc()
			return l.storeErr(err)
		}
		l.nextSerial = serial
		l.serialLoaded = true
	}

	entry.Serial = l.nextSerial
	entry.ID = uuid.New().String()
	entry.Time = l.now().UTC()

	if err := l.store.Commit(ctx, entry, accounts...); err != nil {
		l.serialLoaded = false
		metrics.StoreFailures.Inc()
		slog.Error("ledger commit failed",
			"kind", string(entry.Kind),
			"team", entry.Team,
			"serial", entry.Serial,
			"err", err,
		)
		return l.storeErr(err)
	}
	l.nextSerial++

	metrics.LedgerEntriesTotal.WithLabelValues(string(entry.Kind)).Inc()
	metrics.CommitLatency.WithLabelValues(string(entry.Kind)).Observe(time.Since(start).Seconds())

	for _, o := range l.observers {
		o(*entry)
	}
	return nil
}

func (l *Ledger) loadAccount(ctx context.Context, team int) (*model.TeamAccount, error) {
	acct, err := l.store.GetAccount(ctx, team)
	if err != nil {
		return nil, l.storeErr(err)
	}
	if acct.Holdings == nil {
		acct.Holdings = make(map[int][]int64)
	}
	return acct, nil
}

// storeErr maps a store failure into the ledger's error set, keeping the
// original in the chain.
func (l *Ledger) storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (l *Ledger) reject(reason string, err error) error {
	metrics.RejectedOperations.WithLabelValues(reason).Inc()
	return err
}

// lockTeams takes the per-team mutexes in ascending team order and returns
// a func that releases them.
func (l *Ledger) lockTeams(teams ...int) func() {
	ids := append([]int(nil), teams...)
	sort.Ints(ids)

	var mus []*sync.Mutex
	l.teamsMu.Lock()
	for i, t := range ids {
		if i > 0 && ids[i-1] == t {
			continue
		}
		mu, ok := l.teams[t]
		if !ok {
			mu = &sync.Mutex{}
			l.teams[t] = mu
		}
		mus = append(mus, mu)
	}
	l.teamsMu.Unlock()

	for _, mu := range mus {
		mu.Lock()
	}
	return func() {
		for i := len(mus) - 1; i >= 0; i-- {
			mus[i].Unlock()
		}
	}
}
