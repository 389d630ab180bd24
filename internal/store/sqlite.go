package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mverhagen/memberhub/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SetFlag writes a durable flag. Flag writes are best-effort from the
// caller's point of view; the error is returned for logging, not retried.
func (s *SQLiteStore) SetFlag(ctx context.Context, key string, value bool) error {
	v := 0
	if value {
		v = 1
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO flags (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, v,
	)
	if err != nil {
		return fmt.Errorf("setting flag %q: %w", key, err)
	}
	return nil
}

// GetFlag reads a durable flag; present is false when the key was never set.
func (s *SQLiteStore) GetFlag(ctx context.Context, key string) (bool, bool, error) {
	var v int
	err := s.db.GetContext(ctx, &v, "SELECT value FROM flags WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("getting flag %q: %w", key, err)
	}
	return v != 0, true, nil
}

// activityRow is the database shape of a snapshot activity.
type activityRow struct {
	ID        string    `db:"id"`
	Kind      string    `db:"kind"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	GroupName string    `db:"group_name"`
	Unread    int       `db:"unread"`
	CreatedAt time.Time `db:"created_at"`
	Position  int       `db:"position"`
}

// SaveActivities replaces the offline snapshot with the given list,
// preserving its order.
func (s *SQLiteStore) SaveActivities(ctx context.Context, activities []model.Activity) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM activities"); err != nil {
		return fmt.Errorf("clearing activity snapshot: %w", err)
	}

	for i, a := range activities {
		unread := 0
		if a.Unread {
			unread = 1
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO activities (id, kind, title, body, group_name, unread, created_at, position)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Kind, a.Title, a.Body, a.GroupName, unread, a.CreatedAt, i,
		)
		if err != nil {
			return fmt.Errorf("inserting activity %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing activity snapshot: %w", err)
	}
	return nil
}

// GetActivities returns the offline snapshot in its saved order.
func (s *SQLiteStore) GetActivities(ctx context.Context, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []activityRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT id, kind, title, body, group_name, unread, created_at, position
FROM activities ORDER BY position ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading activity snapshot: %w", err)
	}

	activities := make([]model.Activity, 0, len(rows))
	for _, r := range rows {
		activities = append(activities, model.Activity{
			ID:        r.ID,
			Kind:      r.Kind,
			Title:     r.Title,
			Body:      r.Body,
			GroupName: r.GroupName,
			Unread:    r.Unread != 0,
			CreatedAt: r.CreatedAt,
		})
	}
	return activities, nil
}
