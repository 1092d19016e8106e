// Package sqlite keeps a manifest of completed periods and their artifacts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver

	"github.com/couchcryptid/era5-city-etl/internal/domain"
)

// Manifest records which periods completed and which artifacts they wrote.
type Manifest struct {
	db *sql.DB
}

// PeriodRecord is one manifest row.
type PeriodRecord struct {
	Period      domain.Period
	Artifacts   int
	Skipped     int
	CompletedAt time.Time
}

// Open opens (creating if needed) the manifest database at path and
// migrates it. Use ":memory:" for an ephemeral manifest.
func Open(path string) (*Manifest, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create manifest dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	// one connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping manifest: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	m := &Manifest{db: db}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate manifest: %w", err)
	}
	return m, nil
}

func (m *Manifest) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS periods (
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			artifacts INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			completed_at TEXT NOT NULL,
			PRIMARY KEY (year, month)
		);`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			key TEXT NOT NULL,
			PRIMARY KEY (year, month, key)
		);`,
	}
	for _, q := range queries {
		if _, err := m.db.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}
	return nil
}

// RecordPeriod replaces the manifest entry for r.Period in one transaction.
func (m *Manifest) RecordPeriod(ctx context.Context, r domain.PeriodResult) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	y, mo := r.Period.Year, r.Period.Month
	if _, err := tx.ExecContext(ctx, "DELETE FROM artifacts WHERE year = ? AND month = ?", y, mo); err != nil {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	completed := r.CompletedAt
	if completed.IsZero() {
		completed = domain.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO periods (year, month, artifacts, skipped, completed_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(year, month) DO UPDATE SET
			artifacts = excluded.artifacts,
			skipped = excluded.skipped,
			completed_at = excluded.completed_at`,
		y, mo, r.Written(), r.Skipped, completed.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("upsert period: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO artifacts (year, month, key) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare artifacts: %w", err)
	}
	defer stmt.Close()
	for _, key := range r.Artifacts {
		if _, err := stmt.ExecContext(ctx, y, mo, key); err != nil {
			return fmt.Errorf("insert artifact %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Period returns the record for p, or a *domain.NotFoundError.
func (m *Manifest) Period(ctx context.Context, p domain.Period) (PeriodRecord, error) {
	var (
		rec       = PeriodRecord{Period: p}
		completed string
	)
	err := m.db.QueryRowContext(ctx,
		"SELECT artifacts, skipped, completed_at FROM periods WHERE year = ? AND month = ?",
		p.Year, p.Month,
	).Scan(&rec.Artifacts, &rec.Skipped, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return PeriodRecord{}, &domain.NotFoundError{Kind: "period", Name: p.String()}
	}
	if err != nil {
		return PeriodRecord{}, fmt.Errorf("query period %s: %w", p, err)
	}
	if rec.CompletedAt, err = time.Parse(time.RFC3339, completed); err != nil {
		return PeriodRecord{}, fmt.Errorf("parse completed_at %q: %w", completed, err)
	}
	return rec, nil
}

// Artifacts returns the artifact keys recorded for p, sorted.
func (m *Manifest) Artifacts(ctx context.Context, p domain.Period) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT key FROM artifacts WHERE year = ? AND month = ? ORDER BY key", p.Year, p.Month)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Periods lists every recorded period, oldest first.
func (m *Manifest) Periods(ctx context.Context) ([]PeriodRecord, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT year, month, artifacts, skipped, completed_at FROM periods ORDER BY year, month")
	if err != nil {
		return nil, fmt.Errorf("query periods: %w", err)
	}
	defer rows.Close()

	var out []PeriodRecord
	for rows.Next() {
		var (
			rec       PeriodRecord
			completed string
		)
		if err := rows.Scan(&rec.Period.Year, &rec.Period.Month, &rec.Artifacts, &rec.Skipped, &completed); err != nil {
			return nil, err
		}
		if rec.CompletedAt, err = time.Parse(time.RFC3339, completed); err != nil {
			return nil, fmt.Errorf("parse completed_at %q: %w", completed, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ping checks the database connection.
func (m *Manifest) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close closes the database.
func (m *Manifest) Close() error {
	return m.db.Close()
}
