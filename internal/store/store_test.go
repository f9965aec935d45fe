package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ledger-engine/internal/model"
)

// storeFactories lists the implementations every behavior test runs against.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"sqlite": func() Store {
			st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
			require.NoError(t, err)
			t.Cleanup(func() { st.Close() })
			return st
		},
	}
}

func seedAccounts(t *testing.T, st Store, n int) {
	t.Helper()
	accounts := make([]model.TeamAccount, 0, n)
	for team := 1; team <= n; team++ {
		accounts = append(accounts, model.NewTeamAccount(team, 10000))
	}
	require.NoError(t, st.ResetAccounts(context.Background(), accounts))
}

func depositEntry(serial int64, team int, before, after int64) *model.LedgerEntry {
	return &model.LedgerEntry{
		Serial: serial,
		ID:     "entry-" + string(rune('a'+serial)),
		Kind:   model.KindDepositChange,
		Time:   time.Date(2026, 3, 2, 10, 0, int(serial), 0, time.UTC),
		Actor:  "gm",
		Team:   team,
		Before: before,
		After:  after,
	}
}

func TestStore_AccountsRoundTrip(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			st := newStore()
			ctx := context.Background()

			a := model.NewTeamAccount(2, 7000)
			a.Revenue = 300
			a.Holdings[0] = []int64{58500, 59000}
			a.Holdings[4] = []int64{16800}
			require.NoError(t, st.ResetAccounts(ctx, []model.TeamAccount{model.NewTeamAccount(1, 10000), a}))

			got, err := st.GetAccount(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, a, *got)

			all, err := st.ListAccounts(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, 1, all[0].Team)
			assert.NotNil(t, all[0].Holdings)

			_, err = st.GetAccount(ctx, 9)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_CommitAppliesEverything(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			st := newStore()
			ctx := context.Background()
			seedAccounts(t, st, 3)

			src := model.NewTeamAccount(1, 8000)
			dst := model.NewTeamAccount(2, 12000)
			entry := &model.LedgerEntry{
				Serial:        0,
				ID:            "t-1",
				Kind:          model.KindTransfer,
				Time:          time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
				Actor:         "gm",
				Team:          1,
				CounterTeam:   2,
				Before:        10000,
				After:         8000,
				CounterBefore: 10000,
				CounterAfter:  12000,
				Amount:        2000,
			}
			require.NoError(t, st.Commit(ctx, entry, src, dst))

			serial, err := st.LogSerial(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), serial)

			got, err := st.GetAccount(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, int64(12000), got.Deposit)

			entries, err := st.RecentEntries(ctx, 10)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, *entry, entries[0])

			byDst, err := st.EntriesByTeam(ctx, 2)
			require.NoError(t, err)
			assert.Len(t, byDst, 1)
			byOther, err := st.EntriesByTeam(ctx, 3)
			require.NoError(t, err)
			assert.Empty(t, byOther)
		})
	}
}

func TestStore_CommitRejectsWithoutSideEffects(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			st := newStore()
			ctx := context.Background()
			seedAccounts(t, st, 2)

			// Wrong serial.
			err := st.Commit(ctx, depositEntry(5, 1, 10000, 1), model.NewTeamAccount(1, 1))
			assert.True(t, errors.Is(err, ErrSerialConflict), "got %v", err)

			// Unknown team alongside a valid one.
			err = st.Commit(ctx, depositEntry(0, 1, 10000, 1),
				model.NewTeamAccount(1, 1), model.NewTeamAccount(7, 1))
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			a, err := st.GetAccount(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(10000), a.Deposit)

			serial, err := st.LogSerial(ctx)
			require.NoError(t, err)
			assert.Zero(t, serial)

			entries, err := st.RecentEntries(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestStore_RecentEntriesAndClear(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			st := newStore()
			ctx := context.Background()
			seedAccounts(t, st, 1)

			deposit := int64(10000)
			for i := int64(0); i < 5; i++ {
				entry := depositEntry(i, 1, deposit, deposit+100)
				deposit += 100
				require.NoError(t, st.Commit(ctx, entry, model.NewTeamAccount(1, deposit)))
			}

			last, err := st.RecentEntries(ctx, 3)
			require.NoError(t, err)
			require.Len(t, last, 3)
			assert.Equal(t, []int64{2, 3, 4}, []int64{last[0].Serial, last[1].Serial, last[2].Serial})

			all, err := st.RecentEntries(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, all, 5)

			require.NoError(t, st.ClearLog(ctx))
			serial, err := st.LogSerial(ctx)
			require.NoError(t, err)
			assert.Zero(t, serial)
			all, err = st.RecentEntries(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, all)

			// Accounts survive a log clear.
			a, err := st.GetAccount(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(10500), a.Deposit)

			require.NoError(t, st.Commit(ctx, depositEntry(0, 1, 10500, 10600), model.NewTeamAccount(1, 10600)))
		})
	}
}

func TestStore_QuotesAndRound(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			st := newStore()
			ctx := context.Background()

			quotes := []model.StockQuote{
				{Index: 0, Name: "TSMC", Symbol: "2330", Price: decimal.RequireFromString("58.5"),
					Close: decimal.RequireFromString("57.1"), EPSQoQ: decimal.RequireFromString("0.12"),
					AdjustRatio: decimal.RequireFromString("0.8"), RandomRatio: decimal.RequireFromString("0.01")},
				{Index: 1, Name: "MediaTek", Symbol: "2454", Price: decimal.RequireFromString("92"),
					Close: decimal.RequireFromString("92")},
			}
			require.NoError(t, st.SaveQuotes(ctx, quotes))

			got, err := st.GetQuote(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, "TSMC 2330", got.Label())
			assert.True(t, got.Price.Equal(quotes[0].Price))
			assert.True(t, got.EPSQoQ.Equal(quotes[0].EPSQoQ))

			list, err := st.ListQuotes(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "2454", list[1].Symbol)

			_, err = st.GetQuote(ctx, 2)
			assert.ErrorIs(t, err, ErrNotFound)

			r, err := st.GetRound(ctx)
			require.NoError(t, err)
			assert.Equal(t, model.RoundState{}, *r)

			state := model.RoundState{Round: 2, InRound: true, UpdatedAt: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)}
			require.NoError(t, st.SaveRound(ctx, &state))
			r, err = st.GetRound(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, r.Round)
			assert.True(t, r.InRound)
			assert.True(t, r.UpdatedAt.Equal(state.UpdatedAt))
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	st, err := NewSQLiteStore(path)
	require.NoError(t, err)
	seedAccounts(t, st, 2)
	require.NoError(t, st.Commit(ctx, depositEntry(0, 2, 10000, 9000), model.NewTeamAccount(2, 9000)))
	require.NoError(t, st.Close())

	st, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer st.Close()

	serial, err := st.LogSerial(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), serial)

	a, err := st.GetAccount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), a.Deposit)
}
