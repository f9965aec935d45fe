package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/ledger-engine/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache for
// account and quote reads. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary. The audit
// log and serial counter are never cached.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) ResetAccounts(ctx context.Context, accounts []model.TeamAccount) error {
	// Drop cached accounts before and after, so a reader racing the reset
	// cannot repopulate stale data for long.
	s.invalidateAccounts(ctx)
	if err := s.primary.ResetAccounts(ctx, accounts); err != nil {
		return err
	}
	s.invalidateAccounts(ctx)
	return nil
}

func (s *CachedStore) Commit(ctx context.Context, entry *model.LedgerEntry, accounts ...model.TeamAccount) error {
	if err := s.primary.Commit(ctx, entry, accounts...); err != nil {
		return err
	}
	keys := make([]string, 0, len(accounts))
	for _, a := range accounts {
		keys = append(keys, accountKey(a.Team))
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

func (s *CachedStore) SaveQuotes(ctx context.Context, quotes []model.StockQuote) error {
	if err := s.primary.SaveQuotes(ctx, quotes); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, quotesKey)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, team int) (*model.TeamAccount, error) {
	data, err := s.rdb.Get(ctx, accountKey(team)).Bytes()
	if err == nil {
		var a model.TeamAccount
		if json.Unmarshal(data, &a) == nil {
			if a.Holdings == nil {
				a.Holdings = make(map[int][]int64)
			}
			return &a, nil
		}
	}

	// Cache miss: read from primary.
	a, err := s.primary.GetAccount(ctx, team)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(team), data, s.ttl)
	}
	return a, nil
}

func (s *CachedStore) ListQuotes(ctx context.Context) ([]model.StockQuote, error) {
	data, err := s.rdb.Get(ctx, quotesKey).Bytes()
	if err == nil {
		var quotes []model.StockQuote
		if json.Unmarshal(data, &quotes) == nil {
			return quotes, nil
		}
	}

	quotes, err := s.primary.ListQuotes(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(quotes); err == nil {
		s.rdb.Set(ctx, quotesKey, data, s.ttl)
	}
	return quotes, nil
}

func (s *CachedStore) GetQuote(ctx context.Context, index int) (*model.StockQuote, error) {
	quotes, err := s.ListQuotes(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(quotes) || quotes[index].Index != index {
		// Snapshot not dense; ask the primary directly.
		return s.primary.GetQuote(ctx, index)
	}
	q := quotes[index]
	return &q, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.TeamAccount, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) LogSerial(ctx context.Context) (int64, error) {
	return s.primary.LogSerial(ctx)
}

func (s *CachedStore) RecentEntries(ctx context.Context, n int) ([]model.LedgerEntry, error) {
	return s.primary.RecentEntries(ctx, n)
}

func (s *CachedStore) EntriesByTeam(ctx context.Context, team int) ([]model.LedgerEntry, error) {
	return s.primary.EntriesByTeam(ctx, team)
}

func (s *CachedStore) ClearLog(ctx context.Context) error {
	return s.primary.ClearLog(ctx)
}

func (s *CachedStore) GetRound(ctx context.Context) (*model.RoundState, error) {
	return s.primary.GetRound(ctx)
}

func (s *CachedStore) SaveRound(ctx context.Context, state *model.RoundState) error {
	return s.primary.SaveRound(ctx, state)
}

// --- Cache helpers ---

func (s *CachedStore) invalidateAccounts(ctx context.Context) {
	iter := s.rdb.Scan(ctx, 0, accountKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
}

const (
	accountKeyPrefix = "account:"
	quotesKey        = "market:quotes"
)

func accountKey(team int) string { return fmt.Sprintf("%s%d", accountKeyPrefix, team) }
