// Package store defines the persistence interface for the ledger engine.
// Implementations include PostgreSQL and SQLite (transactional), Redis
// (read-through cache over another store), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/ledger-engine/internal/model"
)

var (
	// ErrNotFound is returned when a team account or stock quote does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrSerialConflict is returned by Commit when the entry serial is not
	// the next value of the stored log counter.
	ErrSerialConflict = errors.New("store: serial conflict")
)

// Store is the persistence interface. The ledger is its only writer of team
// accounts and log entries; the price engine is the only writer of quotes
// and round state.
type Store interface {
	// --- Team accounts ---

	// GetAccount retrieves one team's account.
	GetAccount(ctx context.Context, team int) (*model.TeamAccount, error)

	// ListAccounts returns all accounts ordered by team number.
	ListAccounts(ctx context.Context) ([]model.TeamAccount, error)

	// ResetAccounts replaces the whole account set.
	ResetAccounts(ctx context.Context, accounts []model.TeamAccount) error

	// --- Audit log ---

	// Commit atomically replaces the given accounts, appends entry and
	// advances the log counter to entry.Serial+1. Either everything is
	// persisted or nothing is.
	Commit(ctx context.Context, entry *model.LedgerEntry, accounts ...model.TeamAccount) error

	// LogSerial returns the serial the next appended entry must carry.
	LogSerial(ctx context.Context) (int64, error)

	// RecentEntries returns the last n entries in ascending serial order.
	RecentEntries(ctx context.Context, n int) ([]model.LedgerEntry, error)

	// EntriesByTeam returns every entry involving a team, ascending by serial.
	EntriesByTeam(ctx context.Context, team int) ([]model.LedgerEntry, error)

	// ClearLog discards all entries and resets the counter to 0.
	ClearLog(ctx context.Context) error

	// --- Market snapshot ---

	// GetQuote retrieves the quote for a stock index.
	GetQuote(ctx context.Context, index int) (*model.StockQuote, error)

	// ListQuotes returns all quotes ordered by index.
	ListQuotes(ctx context.Context) ([]model.StockQuote, error)

	// SaveQuotes replaces the market snapshot.
	SaveQuotes(ctx context.Context, quotes []model.StockQuote) error

	// GetRound returns the round state; a zero state if none was saved.
	GetRound(ctx context.Context) (*model.RoundState, error)

	// SaveRound replaces the round state.
	SaveRound(ctx context.Context, state *model.RoundState) error
}

// tail returns the last n elements of entries (all of them if n <= 0 or
// n exceeds the length).
func tail(entries []model.LedgerEntry, n int) []model.LedgerEntry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}
