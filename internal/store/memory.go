package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/ledger-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[int]model.TeamAccount
	entries  []model.LedgerEntry
	serial   int64
	quotes   []model.StockQuote
	round    model.RoundState
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[int]model.TeamAccount),
	}
}

func (s *MemoryStore) GetAccount(_ context.Context, team int) (*model.TeamAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[team]
	if !ok {
		return nil, fmt.Errorf("team %d: %w", team, ErrNotFound)
	}
	c := a.Clone()
	return &c, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.TeamAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.TeamAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, a.Clone())
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Team < accounts[j].Team })
	return accounts, nil
}

func (s *MemoryStore) ResetAccounts(_ context.Context, accounts []model.TeamAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[int]model.TeamAccount, len(accounts))
	for _, a := range accounts {
		s.accounts[a.Team] = a.Clone()
	}
	return nil
}

func (s *MemoryStore) Commit(_ context.Context, entry *model.LedgerEntry, accounts ...model.TeamAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Serial != s.serial {
		return fmt.Errorf("entry serial %d, log at %d: %w", entry.Serial, s.serial, ErrSerialConflict)
	}
	// Validate everything before applying anything.
	for _, a := range accounts {
		if _, ok := s.accounts[a.Team]; !ok {
			return fmt.Errorf("team %d: %w", a.Team, ErrNotFound)
		}
	}

	for _, a := range accounts {
		s.accounts[a.Team] = a.Clone()
	}
	s.entries = append(s.entries, *entry)
	s.serial = entry.Serial + 1
	return nil
}

func (s *MemoryStore) LogSerial(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serial, nil
}

func (s *MemoryStore) RecentEntries(_ context.Context, n int) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Entries are appended in serial order already.
	return append([]model.LedgerEntry(nil), tail(s.entries, n)...), nil
}

func (s *MemoryStore) EntriesByTeam(_ context.Context, team int) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.entries {
		if e.Team == team || (e.Kind == model.KindTransfer && e.CounterTeam == team) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) ClearLog(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.serial = 0
	return nil
}

func (s *MemoryStore) GetQuote(_ context.Context, index int) (*model.StockQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.quotes) {
		return nil, fmt.Errorf("stock %d: %w", index, ErrNotFound)
	}
	q := s.quotes[index]
	return &q, nil
}

func (s *MemoryStore) ListQuotes(_ context.Context) ([]model.StockQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.StockQuote(nil), s.quotes...), nil
}

func (s *MemoryStore) SaveQuotes(_ context.Context, quotes []model.StockQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quotes = append([]model.StockQuote(nil), quotes...)
	return nil
}

func (s *MemoryStore) GetRound(_ context.Context) (*model.RoundState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.round
	return &r, nil
}

func (s *MemoryStore) SaveRound(_ context.Context, state *model.RoundState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.round = *state
	return nil
}
