package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    date TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    saved_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    date TEXT NOT NULL REFERENCES snapshots(date) ON DELETE CASCADE,
    broker TEXT NOT NULL,
    account TEXT NOT NULL,
    key TEXT NOT NULL,
    symbol TEXT NOT NULL,
    quantity TEXT NOT NULL,
    price TEXT NOT NULL,
    currency TEXT NOT NULL,
    price_source TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_date ON positions(date);
CREATE INDEX IF NOT EXISTS idx_positions_key ON positions(key);

CREATE TABLE IF NOT EXISTS audit (
    date TEXT NOT NULL,
    run_id TEXT NOT NULL,
    body TEXT NOT NULL,
    saved_at TEXT NOT NULL,
    PRIMARY KEY (date)
);
`

// SQLiteStore keeps snapshots in a SQLite database. The full snapshot is
// stored as JSON; positions are also flattened into a table for ad hoc
// queries.
type SQLiteStore struct {
	db       *sql.DB
	registry *fundmate.Registry
	log      zerolog.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, reg *fundmate.Registry, log zerolog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every connection of a memory database is a distinct database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db, registry: reg, log: log.With().Str("store", "sqlite").Logger()}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, p *fundmate.Portfolio) error {
	if p.Date.IsZero() {
		return errors.New("cannot save an undated portfolio")
	}
	var body bytes.Buffer
	if err := fundmate.EncodePortfolio(&body, p); err != nil {
		return err
	}
	on := p.Date.String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE date = ?`, on); err != nil {
		return fmt.Errorf("failed to clear positions of %s: %w", on, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (date, body, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET body = excluded.body, saved_at = excluded.saved_at
	`, on, body.String(), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to save snapshot of %s: %w", on, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (date, broker, account, key, symbol, quantity, price, currency, price_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare position insert: %w", err)
	}
	defer stmt.Close()
	for _, a := range p.Accounts {
		for _, pos := range a.Positions {
			_, err := stmt.ExecContext(ctx, on, a.Broker, a.Account, string(pos.Key()), pos.Symbol,
				pos.Quantity.String(), pos.Price.Decimal().String(), pos.Price.Currency(), string(pos.PriceSource))
			if err != nil {
				return fmt.Errorf("failed to save position %s of %s: %w", pos.Key(), a.ID(), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot of %s: %w", on, err)
	}
	s.log.Info().Str("date", on).Int("positions", p.Positions()).Msg("portfolio saved")
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, on date.Date) (*fundmate.Portfolio, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE date = ?`, on.String()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, on)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot of %s: %w", on, err)
	}
	return fundmate.DecodePortfolio(strings.NewReader(body), s.registry)
}

func (s *SQLiteStore) Dates(ctx context.Context) ([]date.Date, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date FROM snapshots ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dates: %w", err)
	}
	defer rows.Close()

	var dates []date.Date
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		on, err := date.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid stored date %q: %w", v, err)
		}
		dates = append(dates, on)
	}
	return dates, rows.Err()
}

func (s *SQLiteStore) SaveAudit(ctx context.Context, on date.Date, runID string, records []fundmate.AuditRecord) error {
	var body bytes.Buffer
	if err := fundmate.EncodeAudit(&body, records); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit (date, run_id, body, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET run_id = excluded.run_id, body = excluded.body, saved_at = excluded.saved_at
	`, on.String(), runID, body.String(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save audit of %s: %w", on, err)
	}
	return nil
}

func (s *SQLiteStore) LoadAudit(ctx context.Context, on date.Date) ([]fundmate.AuditRecord, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM audit WHERE date = ?`, on.String()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no audit for %s", ErrNotFound, on)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load audit of %s: %w", on, err)
	}
	return fundmate.DecodeAudit(strings.NewReader(body))
}

// Holders returns, per stored date, the total quantity of an instrument
// across accounts.
func (s *SQLiteStore) Holders(ctx context.Context, key fundmate.InstrumentKey) (map[date.Date]fundmate.Quantity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, quantity FROM positions WHERE key = ?`, string(key))
	if err != nil {
		return nil, fmt.Errorf("failed to query positions of %s: %w", key, err)
	}
	defer rows.Close()

	out := make(map[date.Date]fundmate.Quantity)
	for rows.Next() {
		var d, q string
		if err := rows.Scan(&d, &q); err != nil {
			return nil, err
		}
		on, err := date.Parse(d)
		if err != nil {
			return nil, err
		}
		qty, err := fundmate.ParseQuantity(q)
		if err != nil {
			return nil, err
		}
		out[on] = out[on].Add(qty)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
