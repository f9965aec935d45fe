// Package model defines the core domain types shared across the ledger engine.
// Cash balances are whole integers; share prices use shopspring/decimal, never
// float64.
package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LotSize is the number of underlying shares in one tradable lot.
const LotSize = 1000

// PriceScale is the number of decimal places prices are rounded to before
// they are turned into a lot cost.
const PriceScale int32 = 2

// EntryKind identifies the kind of mutation a LedgerEntry records.
type EntryKind string

const (
	KindDepositChange EntryKind = "DepositChange"
	KindTransfer      EntryKind = "Transfer"
	KindStockChange   EntryKind = "StockChange"
)

// Side is the direction of a stock trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// TeamAccount is the cash, holdings and realized revenue of one team.
//
// Holdings maps a stock index to the acquisition cost of each lot held, in
// purchase order. A stock whose lot list becomes empty is removed.
type TeamAccount struct {
	Team     int             `json:"team"`
	Deposit  int64           `json:"deposit"`
	Holdings map[int][]int64 `json:"holdings"`
	Revenue  int64           `json:"revenue"`
}

// NewTeamAccount returns a fresh account with the given starting cash.
func NewTeamAccount(team int, deposit int64) TeamAccount {
	return TeamAccount{
		Team:     team,
		Deposit:  deposit,
		Holdings: make(map[int][]int64),
	}
}

// Clone returns a deep copy so callers can mutate without aliasing the
// holdings slices of the original.
func (a TeamAccount) Clone() TeamAccount {
	c := a
	c.Holdings = make(map[int][]int64, len(a.Holdings))
	for idx, lots := range a.Holdings {
		c.Holdings[idx] = append([]int64(nil), lots...)
	}
	return c
}

// Lots returns the number of lots held of a stock.
func (a TeamAccount) Lots(stock int) int {
	return len(a.Holdings[stock])
}

// HeldStocks returns the held stock indices in ascending order.
func (a TeamAccount) HeldStocks() []int {
	idx := make([]int, 0, len(a.Holdings))
	for s := range a.Holdings {
		idx = append(idx, s)
	}
	sort.Ints(idx)
	return idx
}

// StockQuote is the market state of one stock.
type StockQuote struct {
	Index       int             `json:"index"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Close       decimal.Decimal `json:"close"` // previous round's closing price
	EPSQoQ      decimal.Decimal `json:"eps_qoq"`
	AdjustRatio decimal.Decimal `json:"adjust_ratio"`
	RandomRatio decimal.Decimal `json:"random_ratio"`
}

// Label is the display identity used in audit entries, e.g. "TSMC 2330".
func (q StockQuote) Label() string {
	if q.Symbol == "" {
		return q.Name
	}
	return q.Name + " " + q.Symbol
}

// UnitCost is the cost of one lot at the current price, rounded to cents
// per share first.
func (q StockQuote) UnitCost() int64 {
	return q.Price.Round(PriceScale).Mul(decimal.NewFromInt(LotSize)).IntPart()
}

// LedgerEntry is an immutable audit record of one completed mutation.
// Serial is the global total order across all teams.
//
// DepositChange uses Team/Before/After. Transfer additionally uses
// CounterTeam/CounterBefore/CounterAfter for the receiving team. StockChange
// uses Team, Side, StockIndex, Stock and Lots.
type LedgerEntry struct {
	Serial        int64     `json:"serial"`
	ID            string    `json:"id"`
	Kind          EntryKind `json:"kind"`
	Time          time.Time `json:"time"`
	Actor         string    `json:"actor"`
	Team          int       `json:"team"`
	CounterTeam   int       `json:"counter_team,omitempty"`
	Before        int64     `json:"before"`
	After         int64     `json:"after"`
	CounterBefore int64     `json:"counter_before,omitempty"`
	CounterAfter  int64     `json:"counter_after,omitempty"`
	Side          Side      `json:"side,omitempty"`
	StockIndex    int       `json:"stock_index,omitempty"`
	Stock         string    `json:"stock,omitempty"`
	Lots          int       `json:"lots,omitempty"`
	Amount        int64     `json:"amount,omitempty"` // trade display value or transfer amount
}

// RoundState is the trading round gate. Round 0 is preparation.
type RoundState struct {
	Round     int       `json:"round"`
	InRound   bool      `json:"in_round"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TradingOpen reports whether teams may trade.
func (r RoundState) TradingOpen() bool {
	return r.InRound
}

// MarketSnapshot is the full quote list ordered by stock index.
type MarketSnapshot struct {
	Quotes []StockQuote `json:"quotes"`
	Round  RoundState   `json:"round"`
}
