package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"meetme/internal/agenda"
	"meetme/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores schedules in a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at dbPath and applies migrations.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A :memory: database lives on a single connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			time_window TEXT NOT NULL,
			last_date TEXT NOT NULL,
			free TEXT NOT NULL DEFAULT '[]',
			participants INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_last_date ON schedules(last_date)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// FindByID loads a schedule, returning ErrNotFound when it does not exist.
func (s *SQLite) FindByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	var (
		sched        = &models.Schedule{}
		rawID        string
		window, free string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, time_window, free, participants, created_at, updated_at FROM schedules WHERE id = ?`,
		id.String(),
	).Scan(&rawID, &window, &free, &sched.Participants, &sched.CreatedAt, &sched.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query schedule %s: %w", id, err)
	}

	if sched.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("decode schedule id %q: %w", rawID, err)
	}
	if err := json.Unmarshal([]byte(window), &sched.Window); err != nil {
		return nil, fmt.Errorf("decode window of %s: %w", id, err)
	}
	sched.Free = &agenda.Agenda{}
	if err := json.Unmarshal([]byte(free), sched.Free); err != nil {
		return nil, fmt.Errorf("decode free time of %s: %w", id, err)
	}
	return sched, nil
}

// Upsert inserts or replaces sched. CreatedAt and UpdatedAt are filled in when zero.
func (s *SQLite) Upsert(ctx context.Context, sched *models.Schedule) error {
	window, err := json.Marshal(sched.Window)
	if err != nil {
		return fmt.Errorf("encode window: %w", err)
	}
	free, err := json.Marshal(sched.Free)
	if err != nil {
		return fmt.Errorf("encode free time: %w", err)
	}

	now := time.Now().UTC()
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = now
	}
	if sched.UpdatedAt.IsZero() || sched.UpdatedAt.Before(sched.CreatedAt) {
		sched.UpdatedAt = now
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, time_window, last_date, free, participants, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			time_window = excluded.time_window,
			last_date = excluded.last_date,
			free = excluded.free,
			participants = excluded.participants,
			updated_at = excluded.updated_at`,
		sched.ID.String(), string(window), sched.Window.Last.String(), string(free),
		sched.Participants, sched.CreatedAt.UTC(), sched.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert schedule %s: %w", sched.ID, err)
	}
	return nil
}

// DeleteExpired removes schedules whose window ended before the given date.
func (s *SQLite) DeleteExpired(ctx context.Context, before agenda.Date) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE last_date < ?`, before.String())
	if err != nil {
		return 0, fmt.Errorf("delete expired schedules: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted schedules: %w", err)
	}
	return n, nil
}
