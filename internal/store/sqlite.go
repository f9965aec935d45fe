package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atmx/ledger-engine/internal/model"
)

// SQLiteStore implements Store on a single SQLite file. It is the
// single-host option: one writer connection, WAL journal, transactional
// Commit.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("sqlite store opened", "path", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS team_accounts (
			team     INTEGER PRIMARY KEY,
			deposit  INTEGER NOT NULL,
			revenue  INTEGER NOT NULL DEFAULT 0,
			holdings TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			serial         INTEGER PRIMARY KEY,
			id             TEXT NOT NULL,
			kind           TEXT NOT NULL,
			created_at     INTEGER NOT NULL,
			actor          TEXT NOT NULL,
			team           INTEGER NOT NULL,
			counter_team   INTEGER NOT NULL DEFAULT 0,
			balance_before INTEGER NOT NULL DEFAULT 0,
			balance_after  INTEGER NOT NULL DEFAULT 0,
			counter_before INTEGER NOT NULL DEFAULT 0,
			counter_after  INTEGER NOT NULL DEFAULT 0,
			side           TEXT NOT NULL DEFAULT '',
			stock_index    INTEGER NOT NULL DEFAULT 0,
			stock          TEXT NOT NULL DEFAULT '',
			lots           INTEGER NOT NULL DEFAULT 0,
			amount         INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_team ON ledger_entries(team)`,
		`CREATE TABLE IF NOT EXISTS ledger_meta (
			id     INTEGER PRIMARY KEY,
			serial INTEGER NOT NULL
		)`,
		`INSERT OR IGNORE INTO ledger_meta (id, serial) VALUES (1, 0)`,
		`CREATE TABLE IF NOT EXISTS market_quotes (
			idx          INTEGER PRIMARY KEY,
			name         TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			price        TEXT NOT NULL,
			close        TEXT NOT NULL,
			eps_qoq      TEXT NOT NULL,
			adjust_ratio TEXT NOT NULL,
			random_ratio TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS round_state (
			id         INTEGER PRIMARY KEY,
			round      INTEGER NOT NULL,
			in_round   INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, team int) (*model.TeamAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT team, deposit, revenue, holdings FROM team_accounts WHERE team = ?`, team)
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", team, err)
	}
	defer rows.Close()

	accounts, err := scanAccounts(rows)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("team %d: %w", team, ErrNotFound)
	}
	return &accounts[0], nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]model.TeamAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT team, deposit, revenue, holdings FROM team_accounts ORDER BY team`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAccounts(rows)
}

func (s *SQLiteStore) ResetAccounts(ctx context.Context, accounts []model.TeamAccount) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_accounts`); err != nil {
		return err
	}
	for _, a := range accounts {
		holdings, err := encodeHoldings(a)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO team_accounts (team, deposit, revenue, holdings) VALUES (?, ?, ?, ?)`,
			a.Team, a.Deposit, a.Revenue, string(holdings)); err != nil {
			return fmt.Errorf("insert account %d: %w", a.Team, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Commit(ctx context.Context, entry *model.LedgerEntry, accounts ...model.TeamAccount) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_meta SET serial = ? WHERE id = 1 AND serial = ?`,
		entry.Serial+1, entry.Serial)
	if err != nil {
		return fmt.Errorf("advance serial: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entry serial %d: %w", entry.Serial, ErrSerialConflict)
	}

	for _, a := range accounts {
		holdings, err := encodeHoldings(a)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE team_accounts SET deposit = ?, revenue = ?, holdings = ? WHERE team = ?`,
			a.Deposit, a.Revenue, string(holdings), a.Team)
		if err != nil {
			return fmt.Errorf("update account %d: %w", a.Team, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("team %d: %w", a.Team, ErrNotFound)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entryArgs(entry)...); err != nil {
		return fmt.Errorf("insert ledger entry %d: %w", entry.Serial, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) LogSerial(ctx context.Context) (int64, error) {
	var serial int64
	err := s.db.QueryRowContext(ctx, `SELECT serial FROM ledger_meta WHERE id = 1`).Scan(&serial)
	return serial, err
}

func (s *SQLiteStore) RecentEntries(ctx context.Context, n int) ([]model.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries ORDER BY serial DESC`
	args := []interface{}{}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) EntriesByTeam(ctx context.Context, team int) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE team = ? OR (kind = ? AND counter_team = ?)
		 ORDER BY serial`, team, string(model.KindTransfer), team)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *SQLiteStore) ClearLog(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_meta SET serial = 0 WHERE id = 1`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetQuote(ctx context.Context, index int) (*model.StockQuote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+quoteColumns+` FROM market_quotes WHERE idx = ?`, index)
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

func (s *SQLiteStore) ListQuotes(ctx context.Context) ([]model.StockQuote, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+quoteColumns+` FROM market_quotes ORDER BY idx`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanQuotes(rows)
}

func (s *SQLiteStore) SaveQuotes(ctx context.Context, quotes []model.StockQuote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM market_quotes`); err != nil {
		return err
	}
	for _, q := range quotes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO market_quotes (`+quoteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			quoteArgs(q)...); err != nil {
			return fmt.Errorf("insert quote %d: %w", q.Index, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetRound(ctx context.Context) (*model.RoundState, error) {
	var r model.RoundState
	var inRound int
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT round, in_round, updated_at FROM round_state WHERE id = 1`).
		Scan(&r.Round, &inRound, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.RoundState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get round: %w", err)
	}
	r.InRound = inRound != 0
	r.UpdatedAt = time.Unix(0, updated).UTC()
	return &r, nil
}

func (s *SQLiteStore) SaveRound(ctx context.Context, state *model.RoundState) error {
	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	inRound := 0
	if state.InRound {
		inRound = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO round_state (id, round, in_round, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET round = excluded.round, in_round = excluded.in_round,
		     updated_at = excluded.updated_at`,
		state.Round, inRound, updated.UnixNano())
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	slog.Info("closing sqlite store")
	return s.db.Close()
}
