// SPDX-License-Identifier: MIT

// Package library persists finished downloads. The daemon restarts often
// enough that history cannot live in the download manager, and users expect
// "what did I download last week" to survive a reboot.
package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/streamsift/streamsift/internal/download"
)

// Store provides SQLite persistence for the download history.
type Store struct {
	db *sql.DB
}

// Entry is one finished download.
type Entry struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Path       string    `json:"path,omitempty"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// NewStore opens the history database and runs migrations. WAL mode plus a
// busy timeout keeps concurrent readers off the writer's back.
func NewStore(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS download_history (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL CHECK(outcome IN ('success', 'error', 'canceled')),
		detail TEXT NOT NULL DEFAULT '',
		enqueued_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_download_history_finished ON download_history(finished_at);
	CREATE INDEX IF NOT EXISTS idx_download_history_url ON download_history(url);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record stores one terminal download result. Re-recording the same job ID
// overwrites, so a replayed terminal event cannot duplicate history.
func (s *Store) Record(ctx context.Context, res download.Result) error {
	query := `
	INSERT INTO download_history (id, url, title, path, outcome, detail, enqueued_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		outcome = excluded.outcome,
		detail = excluded.detail,
		path = excluded.path,
		finished_at = excluded.finished_at
	`

	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		res.Job.ID,
		res.Job.URL,
		res.Job.Title,
		res.Job.Path,
		res.Outcome.String(),
		res.Detail,
		res.Job.EnqueuedAt.UTC().Format(time.RFC3339),
		finished.UTC().Format(time.RFC3339),
	)
	return err
}

// Recent retrieves finished downloads, newest first, with the total count
// for pagination.
func (s *Store) Recent(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM download_history`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
	SELECT id, url, title, path, outcome, detail, enqueued_at, finished_at
	FROM download_history
	ORDER BY finished_at DESC, id
	LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// LastForURL retrieves the most recent entry for a URL, or nil when the URL
// was never downloaded.
func (s *Store) LastForURL(ctx context.Context, url string) (*Entry, error) {
	query := `
	SELECT id, url, title, path, outcome, detail, enqueued_at, finished_at
	FROM download_history
	WHERE url = ?
	ORDER BY finished_at DESC, id
	LIMIT 1
	`

	row := s.db.QueryRowContext(ctx, query, url)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Prune deletes entries older than the retention window and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `DELETE FROM download_history WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var enqueuedStr, finishedStr string
	if err := row.Scan(&e.ID, &e.URL, &e.Title, &e.Path, &e.Outcome, &e.Detail, &enqueuedStr, &finishedStr); err != nil {
		return Entry{}, err
	}
	e.EnqueuedAt, _ = time.Parse(time.RFC3339, enqueuedStr)
	e.FinishedAt, _ = time.Parse(time.RFC3339, finishedStr)
	return e, nil
}
