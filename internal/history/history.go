// Package history records recently played tracks in a local SQLite database.
// Recording is best-effort: a history failure must never affect playback.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/brickaudio/brick/internal/engine"
)

const defaultMaxEntries = 500

type Store struct {
	db         *sql.DB
	maxEntries int
}

var _ engine.PlayRecorder = (*Store)(nil)

// Open creates or opens the history database at path, creating parent
// directories as needed.
func Open(path string, maxEntries int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Store{db: db, maxEntries: maxEntries}, nil
}

// OpenMemory opens an in-memory history store, used in tests and when
// persistence is disabled.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, maxEntries: defaultMaxEntries}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			artist TEXT NOT NULL DEFAULT '',
			cover_url TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			played_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_plays_played_at ON plays(played_at DESC);
		CREATE INDEX IF NOT EXISTS idx_plays_track_id ON plays(track_id);
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordPlay appends a play and prunes the oldest rows past the entry cap.
func (s *Store) RecordPlay(ctx context.Context, rec engine.PlayRecord) error {
	playedAt := rec.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plays (track_id, title, artist, cover_url, url, played_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.TrackID, rec.Title, rec.Artist, rec.CoverURL, rec.URL, playedAt)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM plays WHERE id NOT IN (
			SELECT id FROM plays ORDER BY played_at DESC, id DESC LIMIT ?
		)`, s.maxEntries)
	return err
}

// Play is one row of the recently-played list.
type Play struct {
	TrackID  string
	Title    string
	Artist   string
	CoverURL string
	URL      string
	PlayedAt time.Time
}

// Recent returns the most recent plays, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Play, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, title, artist, cover_url, url, played_at
		FROM plays ORDER BY played_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		var p Play
		if err := rows.Scan(&p.TrackID, &p.Title, &p.Artist, &p.CoverURL, &p.URL, &p.PlayedAt); err != nil {
			return nil, err
		}
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

// PlayCount returns how many times a track appears in the retained history.
func (s *Store) PlayCount(ctx context.Context, trackID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plays WHERE track_id = ?`, trackID).Scan(&count)
	return count, err
}
