// Package store persists end-of-game session results so the leaderboard
// surfaces have something to read. The schema is intentionally minimal: one
// row per rig session, mirroring what the firmware publishes on
// session/{sessionId}/result.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/fitfighter/rigbridge/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SessionResult is one finished game session.
type SessionResult struct {
	SessionID   string
	Game        string
	ReturnCode  int
	DurationSec int
	FinishedAt  time.Time
}

// Store wraps the SQLite database holding session results.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, logging.WrapError(err, "open database")
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return logging.WrapError(err, "load migrations")
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return logging.WrapError(err, "init migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return logging.WrapError(err, "init migrations")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return logging.WrapError(err, "apply migrations")
	}
	return nil
}

// RecordResult upserts a session result. The result topic is delivered
// at-least-once, so replays of the same session overwrite rather than
// duplicate.
func (s *Store) RecordResult(ctx context.Context, res SessionResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_results (session_id, game, return_code, duration_sec, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			game = excluded.game,
			return_code = excluded.return_code,
			duration_sec = excluded.duration_sec,
			finished_at = excluded.finished_at`,
		res.SessionID, res.Game, res.ReturnCode, res.DurationSec, res.FinishedAt.UTC())
	if err != nil {
		return logging.WrapError(err, "record session result")
	}
	return nil
}

// RecentResults returns up to limit results, most recent first.
func (s *Store) RecentResults(ctx context.Context, limit int) ([]SessionResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, game, return_code, duration_sec, finished_at
		FROM session_results
		ORDER BY finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, logging.WrapError(err, "query session results")
	}
	defer rows.Close()

	var results []SessionResult
	for rows.Next() {
		var res SessionResult
		if err := rows.Scan(&res.SessionID, &res.Game, &res.ReturnCode, &res.DurationSec, &res.FinishedAt); err != nil {
			return nil, logging.WrapError(err, "scan session result")
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
