// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

// Package sqlite implements store.LearningStore backed by a single SQLite
// database file. All writes are single-statement upserts, which keeps
// per-key read-modify-write cycles atomic under concurrent batch workers.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gatefix-dev/gatefix/internal/store"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", func(path string) (store.LearningStore, error) {
		return NewLearningStore(path)
	})
}

// Compile-time interface check.
var _ store.LearningStore = (*LearningStore)(nil)

// LearningStore implements store.LearningStore backed by SQLite.
type LearningStore struct {
	db *sql.DB
}

// NewLearningStore opens (or creates) a SQLite database at dbPath and
// initialises the strategy_bandit, quarantine_stats and global_quarantine
// tables.
func NewLearningStore(dbPath string) (*LearningStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, gferr.Errorf(gferr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, gferr.Errorf(gferr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, gferr.Errorf(gferr.CodeStoreDatabaseFailure, "migrating sqlite db: %w", err)
	}

	return &LearningStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS strategy_bandit (
	context_key  TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	tries        INTEGER NOT NULL DEFAULT 0,
	wins         INTEGER NOT NULL DEFAULT 0,
	regressions  INTEGER NOT NULL DEFAULT 0,
	alpha        REAL NOT NULL DEFAULT 1.0,
	beta         REAL NOT NULL DEFAULT 1.0,
	total_reward REAL NOT NULL DEFAULT 0.0,
	updated_at   TEXT NOT NULL,
	PRIMARY KEY (context_key, strategy)
);

CREATE TABLE IF NOT EXISTS quarantine_stats (
	context_key        TEXT NOT NULL,
	strategy           TEXT NOT NULL,
	total_tries        INTEGER NOT NULL DEFAULT 0,
	successes          INTEGER NOT NULL DEFAULT 0,
	regressions        INTEGER NOT NULL DEFAULT 0,
	last_regression_ts TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (context_key, strategy)
);

CREATE TABLE IF NOT EXISTS global_quarantine (
	strategy       TEXT PRIMARY KEY,
	quarantined_at TEXT NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *LearningStore) Close() error {
	return s.db.Close()
}

func (s *LearningStore) GetArm(ctx context.Context, contextKey, strategy string) (*store.BanditArm, error) {
	const q = `SELECT context_key, strategy, tries, wins, regressions, alpha, beta, total_reward, updated_at
FROM strategy_bandit WHERE context_key = ? AND strategy = ?`

	arm, err := scanArm(s.db.QueryRowContext(ctx, q, contextKey, strategy))
	if err == sql.ErrNoRows {
		return nil, gferr.New(gferr.CodeStoreKeyNotFound, "bandit arm not found",
			gferr.FieldContextKey(contextKey), gferr.FieldStrategy(strategy))
	}
	if err != nil {
		return nil, gferr.Errorf(gferr.CodeStoreDatabaseFailure, "getting bandit arm: %w", err)
	}
	return arm, nil
}

func (s *LearningStore) ListArms(ctx context.Context, contextKey string) ([]*store.BanditArm, error) {
	const q = `SELECT context_key, strategy, tries, wins, regressions, alpha, beta, total_reward, updated_at
FROM strategy_bandit WHERE context_key = ? ORDER BY strategy`

	rows, err := s.db.QueryContext(ctx, q, contextKey)
	if err != nil {
		return nil, gferr.Errorf(gferr.CodeStoreDatabaseFailure, "listing bandit arms: %w", err)
	}
	defer rows.Close()

	var arms []*store.BanditArm
	for rows.Next() {
		arm, err := scanArm(rows)
		if err != nil {
			return nil, gferr.Errorf(gferr.CodeStoreDatabaseFailure, "scanning bandit arm row: %w", err)
		}
		arms = append(arms, arm)
	}
	return arms, rows.Err()
}

func (s *LearningStore) UpsertArm(ctx context.Context, arm *store.BanditArm) error {
	if arm == nil || arm.Strategy == "" {
		return gferr.New(gferr.CodeStoreInvalidInput, "bandit arm requires a strategy name")
	}

	const q = `INSERT INTO strategy_bandit (context_key, strategy, tries, wins, regressions, alpha, beta, total_reward, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (context_key, strategy) DO UPDATE SET
	tries = excluded.tries,
	wins = excluded.wins,
	regressions = excluded.regressions,
	alpha = excluded.alpha,
	beta = excluded.beta,
	total_reward = excluded.total_reward,
	updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, q,
		arm.ContextKey,
		arm.Strategy,
		arm.Tries,
		arm.Wins,
		arm.Regressions,
		arm.Alpha,
		arm.Beta,
		arm.TotalReward,
		formatTime(arm.UpdatedAt),
	)
	if err != nil {
		return gferr.Errorf(gferr.CodeStoreDatabaseFailure, "upserting bandit arm %s/%s: %w",
			arm.ContextKey, arm.Strategy, err)
	}
	return nil
}

func (s *LearningStore) GetQuarantine(ctx context.Context, contextKey, strategy string) (*store.QuarantineRecord, error) {
	const q = `SELECT context_key, strategy, total_tries, successes, regressions, last_regression_ts
FROM quarantine_stats WHERE context_key = ? AND strategy = ?`

	rec, err := scanQuarantine(s.db.QueryRowContext(ctx, q, contextKey, strategy))
	if err == sql.ErrNoRows {
		return nil, gferr.New(gferr.CodeStoreKeyNotFound, "quarantine record not found",
			gferr.FieldContextKey(contextKey), gferr.FieldStrategy(strategy))
	}
	if err != nil {
		return nil, gferr.Errorf(gferr.CodeStoreDatabaseFailure, "getting quarantine record: %w", err)
	}
	return rec, nil
}

func (s *LearningStore) ListQuarantine(ctx context.Context, contextKey string) ([]*store.QuarantineRecord, error) {
	const q = `SELECT context_key, strategy, total_tries, successes, regressions, last_regression_ts
FROM quarantine_stats WHERE context_key = ? ORDER BY strategy`

	rows, err := s.db.QueryContext(ctx, q, contextKey)
	if err != nil {
		return nil, gferr.Errorf(gferr.CodeStoreDatabaseFailure, "listing quarantine records: %w", err)
	}
	defer rows.Close()

	var recs []*store.QuarantineRecord
	for rows.Next() {
		rec, err := scanQuarantine(rows)
		if err != nil {
			return nil, gferr.Errorf(gferr.CodeStoreDatabaseFailure, "scanning quarantine row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *LearningStore) UpsertQuarantine(ctx context.Context, rec *store.QuarantineRecord) error {
	if rec == nil || rec.Strategy == "" {
		return gferr.New(gferr.CodeStoreInvalidInput, "quarantine record requires a strategy name")
	}

	const q = `INSERT INTO quarantine_stats (context_key, strategy, total_tries, successes, regressions, last_regression_ts)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (context_key, strategy) DO UPDATE SET
	total_tries = excluded.total_tries,
	successes = excluded.successes,
	regressions = excluded.regressions,
	last_regression_ts = excluded.last_regression_ts`

	_, err := s.db.ExecContext(ctx, q,
		rec.ContextKey,
		rec.Strategy,
		rec.TotalTries,
		rec.Successes,
		rec.Regressions,
		formatTime(rec.LastRegression),
	)
	if err != nil {
		return gferr.Errorf(gferr.CodeStoreDatabaseFailure, "upserting quarantine record %s/%s: %w",
			rec.ContextKey, rec.Strategy, err)
	}
	return nil
}

func (s *LearningStore) GlobalQuarantine(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT strategy FROM global_quarantine ORDER BY strategy`)
	if err != nil {
		return nil, gferr.Errorf(gferr.CodeStoreDatabaseFailure, "listing global quarantine: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, gferr.Errorf(gferr.CodeStoreDatabaseFailure, "scanning global quarantine row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *LearningStore) SetGlobalQuarantine(ctx context.Context, strategy string, quarantined bool) error {
	if strategy == "" {
		return gferr.New(gferr.CodeStoreInvalidInput, "strategy name required")
	}

	var err error
	if quarantined {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO global_quarantine (strategy, quarantined_at) VALUES (?, ?)
ON CONFLICT (strategy) DO UPDATE SET quarantined_at = excluded.quarantined_at`,
			strategy, formatTime(time.Now()))
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM global_quarantine WHERE strategy = ?`, strategy)
	}
	if err != nil {
		return gferr.Errorf(gferr.CodeStoreDatabaseFailure, "setting global quarantine for %s: %w", strategy, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArm(row rowScanner) (*store.BanditArm, error) {
	var arm store.BanditArm
	var updatedAt string
	if err := row.Scan(
		&arm.ContextKey,
		&arm.Strategy,
		&arm.Tries,
		&arm.Wins,
		&arm.Regressions,
		&arm.Alpha,
		&arm.Beta,
		&arm.TotalReward,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	arm.UpdatedAt = parseTime(updatedAt)
	return &arm, nil
}

func scanQuarantine(row rowScanner) (*store.QuarantineRecord, error) {
	var rec store.QuarantineRecord
	var lastRegression string
	if err := row.Scan(
		&rec.ContextKey,
		&rec.Strategy,
		&rec.TotalTries,
		&rec.Successes,
		&rec.Regressions,
		&lastRegression,
	); err != nil {
		return nil, err
	}
	rec.LastRegression = parseTime(lastRegression)
	return &rec, nil
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
