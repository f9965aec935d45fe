package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/ledger-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Prices are stored as NUMERIC for exact decimal precision; Commit runs in
// a single transaction guarded by the ledger_meta serial row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS team_accounts (
		team     INTEGER PRIMARY KEY,
		deposit  BIGINT NOT NULL,
		revenue  BIGINT NOT NULL DEFAULT 0,
		holdings JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		serial         BIGINT PRIMARY KEY,
		id             TEXT NOT NULL,
		kind           TEXT NOT NULL,
		created_at     BIGINT NOT NULL,
		actor          TEXT NOT NULL,
		team           INTEGER NOT NULL,
		counter_team   INTEGER NOT NULL DEFAULT 0,
		balance_before BIGINT NOT NULL DEFAULT 0,
		balance_after  BIGINT NOT NULL DEFAULT 0,
		counter_before BIGINT NOT NULL DEFAULT 0,
		counter_after  BIGINT NOT NULL DEFAULT 0,
		side           TEXT NOT NULL DEFAULT '',
		stock_index    INTEGER NOT NULL DEFAULT 0,
		stock          TEXT NOT NULL DEFAULT '',
		lots           INTEGER NOT NULL DEFAULT 0,
		amount         BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_team ON ledger_entries(team)`,
	`CREATE TABLE IF NOT EXISTS ledger_meta (
		id     INTEGER PRIMARY KEY,
		serial BIGINT NOT NULL
	)`,
	`INSERT INTO ledger_meta (id, serial) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS market_quotes (
		idx          INTEGER PRIMARY KEY,
		name         TEXT NOT NULL,
		symbol       TEXT NOT NULL,
		price        NUMERIC NOT NULL,
		close        NUMERIC NOT NULL,
		eps_qoq      NUMERIC NOT NULL,
		adjust_ratio NUMERIC NOT NULL,
		random_ratio NUMERIC NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS round_state (
		id         INTEGER PRIMARY KEY,
		round      INTEGER NOT NULL,
		in_round   BOOLEAN NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, team int) (*model.TeamAccount, error) {
	var a model.TeamAccount
	var holdings []byte

	err := s.pool.QueryRow(ctx,
		`SELECT team, deposit, revenue, holdings::TEXT FROM team_accounts WHERE team = $1`, team).
		Scan(&a.Team, &a.Deposit, &a.Revenue, &holdings)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("team %d: %w", team, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", team, err)
	}
	if err := decodeHoldings(holdings, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.TeamAccount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT team, deposit, revenue, holdings::TEXT FROM team_accounts ORDER BY team`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAccounts(rows)
}

func (s *PostgresStore) ResetAccounts(ctx context.Context, accounts []model.TeamAccount) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM team_accounts`); err != nil {
		return err
	}
	for _, a := range accounts {
		holdings, err := encodeHoldings(a)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO team_accounts (team, deposit, revenue, holdings) VALUES ($1, $2, $3, $4::JSONB)`,
			a.Team, a.Deposit, a.Revenue, string(holdings)); err != nil {
			return fmt.Errorf("insert account %d: %w", a.Team, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Commit(ctx context.Context, entry *model.LedgerEntry, accounts ...model.TeamAccount) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE ledger_meta SET serial = $1 WHERE id = 1 AND serial = $2`,
		entry.Serial+1, entry.Serial)
	if err != nil {
		return fmt.Errorf("advance serial: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry serial %d: %w", entry.Serial, ErrSerialConflict)
	}

	for _, a := range accounts {
		holdings, err := encodeHoldings(a)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE team_accounts SET deposit = $2, revenue = $3, holdings = $4::JSONB WHERE team = $1`,
			a.Team, a.Deposit, a.Revenue, string(holdings))
		if err != nil {
			return fmt.Errorf("update account %d: %w", a.Team, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("team %d: %w", a.Team, ErrNotFound)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		entryArgs(entry)...); err != nil {
		return fmt.Errorf("insert ledger entry %d: %w", entry.Serial, err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) LogSerial(ctx context.Context) (int64, error) {
	var serial int64
	err := s.pool.QueryRow(ctx, `SELECT serial FROM ledger_meta WHERE id = 1`).Scan(&serial)
	return serial, err
}

func (s *PostgresStore) RecentEntries(ctx context.Context, n int) ([]model.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries ORDER BY serial DESC`
	args := []interface{}{}
	if n > 0 {
		query += ` LIMIT $1`
		args = append(args, n)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, err
	}
	reverseEntries(entries)
	return entries, nil
}

func (s *PostgresStore) EntriesByTeam(ctx context.Context, team int) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE team = $1 OR (kind = $2 AND counter_team = $1)
		 ORDER BY serial`, team, string(model.KindTransfer))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) ClearLog(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM ledger_entries`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE ledger_meta SET serial = 0 WHERE id = 1`); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetQuote(ctx context.Context, index int) (*model.StockQuote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT idx, name, symbol, price::TEXT, close::TEXT, eps_qoq::TEXT,
		        adjust_ratio::TEXT, random_ratio::TEXT
		 FROM market_quotes WHERE idx = $1`, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotes, err := scanQuotes(rows)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("stock %d: %w", index, ErrNotFound)
	}
	return &quotes[0], nil
}

func (s *PostgresStore) ListQuotes(ctx context.Context) ([]model.StockQuote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT idx, name, symbol, price::TEXT, close::TEXT, eps_qoq::TEXT,
		        adjust_ratio::TEXT, random_ratio::TEXT
		 FROM market_quotes ORDER BY idx`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanQuotes(rows)
}

func (s *PostgresStore) SaveQuotes(ctx context.Context, quotes []model.StockQuote) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM market_quotes`); err != nil {
		return err
	}
	for _, q := range quotes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO market_quotes (`+quoteColumns+`)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC)`,
			quoteArgs(q)...); err != nil {
			return fmt.Errorf("insert quote %d: %w", q.Index, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetRound(ctx context.Context) (*model.RoundState, error) {
	var r model.RoundState
	err := s.pool.QueryRow(ctx,
		`SELECT round, in_round, updated_at FROM round_state WHERE id = 1`).
		Scan(&r.Round, &r.InRound, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.RoundState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get round: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) SaveRound(ctx context.Context, state *model.RoundState) error {
	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO round_state (id, round, in_round, updated_at) VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET round = EXCLUDED.round, in_round = EXCLUDED.in_round,
		     updated_at = EXCLUDED.updated_at`,
		state.Round, state.InRound, updated)
	return err
}
