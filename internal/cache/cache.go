// Package cache stores generated step lists in SQLite so repeated requests
// for the same video skip the transcript download and the model call.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS generations (
	video_id       TEXT NOT NULL,
	model          TEXT NOT NULL,
	prompt_version TEXT NOT NULL,
	content        TEXT NOT NULL,
	language       TEXT NOT NULL DEFAULT '',
	truncated      INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL,
	PRIMARY KEY (video_id, model, prompt_version)
);
CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at);
`

// Key identifies one generation. A changed prompt or model is a miss.
type Key struct {
	VideoID       string
	Model         string
	PromptVersion string
}

// Entry is a stored generation.
type Entry struct {
	Content   string
	Language  string
	Truncated bool
	CreatedAt time.Time
}

// Store is a SQLite-backed generation cache.
type Store struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open creates or opens the cache database at path. Entries older than ttl
// are treated as missing; a zero ttl keeps entries forever.
func Open(logger *slog.Logger, path string, ttl time.Duration) (*Store, error) {
	if path != ":memory:" {
		if err := ensureDir(logger, filepath.Dir(path)); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	logger.Debug("Opened cache", "path", path, "ttl", ttl)
	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns the entry for key. The boolean is false on a miss or when
// the entry has expired.
func (s *Store) Get(ctx context.Context, key Key) (Entry, bool, error) {
	var (
		entry     Entry
		truncated int
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT content, language, truncated, created_at FROM generations
		 WHERE video_id = ? AND model = ? AND prompt_version = ?`,
		key.VideoID, key.Model, key.PromptVersion,
	).Scan(&entry.Content, &entry.Language, &truncated, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache get %s: %w", key.VideoID, err)
	}
	entry.Truncated = truncated != 0
	entry.CreatedAt = time.Unix(createdAt, 0)
	if s.expired(entry.CreatedAt) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put stores entry under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key Key, entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	truncated := 0
	if entry.Truncated {
		truncated = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (video_id, model, prompt_version, content, language, truncated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (video_id, model, prompt_version) DO UPDATE SET
		   content = excluded.content,
		   language = excluded.language,
		   truncated = excluded.truncated,
		   created_at = excluded.created_at`,
		key.VideoID, key.Model, key.PromptVersion, entry.Content, entry.Language, truncated, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key.VideoID, err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.ttl).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE created_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) expired(createdAt time.Time) bool {
	return s.ttl > 0 && !s.now().Before(createdAt.Add(s.ttl))
}

func ensureDir(logger *slog.Logger, dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o750); err != nil {
		logger.Error("Failed to create directory", "path", dirPath, "error", err)
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	logger.Debug("Ensured directory exists", "path", dirPath)
	return nil
}
