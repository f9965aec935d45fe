package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

// entryColumns is the column list of ledger_entries. Order must match
// scanLedgerEntries and entryArgs.
const entryColumns = `serial, id, kind, created_at, actor, team, counter_team,
	balance_before, balance_after, counter_before, counter_after,
	side, stock_index, stock, lots, amount`

const quoteColumns = `idx, name, symbol, price, close, eps_qoq, adjust_ratio, random_ratio`

// rowScanner is satisfied by both pgx.Rows and *sql.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func entryArgs(e *model.LedgerEntry) []interface{} {
	return []interface{}{
		e.Serial, e.ID, string(e.Kind), e.Time.UnixNano(), e.Actor, e.Team, e.CounterTeam,
		e.Before, e.After, e.CounterBefore, e.CounterAfter,
		string(e.Side), e.StockIndex, e.Stock, e.Lots, e.Amount,
	}
}

func scanLedgerEntries(rows rowScanner) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var kind, side string
		var createdAt int64

		if err := rows.Scan(&e.Serial, &e.ID, &kind, &createdAt, &e.Actor, &e.Team, &e.CounterTeam,
			&e.Before, &e.After, &e.CounterBefore, &e.CounterAfter,
			&side, &e.StockIndex, &e.Stock, &e.Lots, &e.Amount); err != nil {
			return nil, err
		}
		e.Kind = model.EntryKind(kind)
		e.Side = model.Side(side)
		e.Time = time.Unix(0, createdAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanAccounts(rows rowScanner) ([]model.TeamAccount, error) {
	var accounts []model.TeamAccount
	for rows.Next() {
		var a model.TeamAccount
		var holdings []byte
		if err := rows.Scan(&a.Team, &a.Deposit, &a.Revenue, &holdings); err != nil {
			return nil, err
		}
		if err := decodeHoldings(holdings, &a); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanQuotes(rows rowScanner) ([]model.StockQuote, error) {
	var quotes []model.StockQuote
	for rows.Next() {
		var q model.StockQuote
		var price, closeS, eps, adjust, random string
		if err := rows.Scan(&q.Index, &q.Name, &q.Symbol, &price, &closeS, &eps, &adjust, &random); err != nil {
			return nil, err
		}
		q.Price, _ = decimal.NewFromString(price)
		q.Close, _ = decimal.NewFromString(closeS)
		q.EPSQoQ, _ = decimal.NewFromString(eps)
		q.AdjustRatio, _ = decimal.NewFromString(adjust)
		q.RandomRatio, _ = decimal.NewFromString(random)
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func quoteArgs(q model.StockQuote) []interface{} {
	return []interface{}{
		q.Index, q.Name, q.Symbol,
		q.Price.String(), q.Close.String(),
		q.EPSQoQ.String(), q.AdjustRatio.String(), q.RandomRatio.String(),
	}
}

func encodeHoldings(a model.TeamAccount) ([]byte, error) {
	holdings := a.Holdings
	if holdings == nil {
		holdings = map[int][]int64{}
	}
	data, err := json.Marshal(holdings)
	if err != nil {
		return nil, fmt.Errorf("encode holdings for team %d: %w", a.Team, err)
	}
	return data, nil
}

func decodeHoldings(data []byte, a *model.TeamAccount) error {
	a.Holdings = make(map[int][]int64)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &a.Holdings); err != nil {
		return fmt.Errorf("decode holdings for team %d: %w", a.Team, err)
	}
	return nil
}

// reverseEntries flips a DESC-ordered page into ascending serial order.
func reverseEntries(entries []model.LedgerEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
