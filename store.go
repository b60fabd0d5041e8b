package livequest

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested update does not exist.
var ErrNotFound = sql.ErrNoRows

// Store wraps a SQLite database holding every liveblog's updates.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL keeps snapshot reads concurrent with composer writes; the busy
	// timeout makes writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS updates (
    id TEXT PRIMARY KEY,
    liveblog_id TEXT NOT NULL,
    content TEXT,
    published_at TEXT,
    pinned INTEGER NOT NULL DEFAULT 0,
    deleted INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_updates_feed ON updates(liveblog_id, deleted, published_at);
`)
	return err
}

// ListFeed returns the published, non-deleted updates for one liveblog,
// pinned first then newest first, capped at limit rows. Drafts (null
// published_at) never reach the feed.
func (s *Store) ListFeed(liveblogID string, limit int) ([]StoredUpdate, error) {
	rows, err := s.db.Query(`
		SELECT id, content, published_at, pinned
		FROM updates
		WHERE liveblog_id = ? AND deleted = 0 AND published_at IS NOT NULL
		ORDER BY pinned DESC, published_at DESC, id
		LIMIT ?`, liveblogID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	updates := make([]StoredUpdate, 0, limit)
	for rows.Next() {
		var u StoredUpdate
		var content sql.NullString
		var publishedAt sql.NullString
		var pinned int
		if err := rows.Scan(&u.ID, &content, &publishedAt, &pinned); err != nil {
			return nil, err
		}
		u.LiveblogID = liveblogID
		u.Content = contentOrNull(content)
		if publishedAt.Valid {
			v := publishedAt.String
			u.PublishedAt = &v
		}
		u.Pinned = pinned == 1
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// GetUpdate returns a single update by id regardless of publish state.
func (s *Store) GetUpdate(id string) (StoredUpdate, error) {
	var u StoredUpdate
	var content, publishedAt sql.NullString
	var pinned, deleted int
	err := s.db.QueryRow(`
		SELECT id, liveblog_id, content, published_at, pinned, deleted
		FROM updates WHERE id = ?`, id).
		Scan(&u.ID, &u.LiveblogID, &content, &publishedAt, &pinned, &deleted)
	if err != nil {
		return StoredUpdate{}, err
	}
	u.Content = contentOrNull(content)
	if publishedAt.Valid {
		v := publishedAt.String
		u.PublishedAt = &v
	}
	u.Pinned = pinned == 1
	u.Deleted = deleted == 1
	return u, nil
}

// SaveUpdate upserts an update row. It reports whether the id already
// existed so callers can publish the right change notification.
func (s *Store) SaveUpdate(u StoredUpdate) (existed bool, err error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM updates WHERE id = ?`, u.ID).Scan(&n); err != nil {
		return false, err
	}
	pinned := 0
	if u.Pinned {
		pinned = 1
	}
	var content any
	if len(u.Content) > 0 && string(u.Content) != "null" {
		content = string(u.Content)
	}
	var publishedAt any
	if u.PublishedAt != nil {
		publishedAt = *u.PublishedAt
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO updates (id, liveblog_id, content, published_at, pinned, deleted)
		VALUES (?, ?, ?, ?, ?, 0)`,
		u.ID, u.LiveblogID, content, publishedAt, pinned)
	return n > 0, err
}

// DeleteUpdate soft-deletes an update so it drops out of every snapshot.
// Deleting an absent id is a no-op.
func (s *Store) DeleteUpdate(id string) error {
	_, err := s.db.Exec(`UPDATE updates SET deleted = 1 WHERE id = ?`, id)
	return err
}

// PublishedNow returns the current time formatted the way published_at rows
// are stored.
func PublishedNow() *string {
	v := time.Now().UTC().Format(time.RFC3339)
	return &v
}

func contentOrNull(v sql.NullString) json.RawMessage {
	if !v.Valid || v.String == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(v.String)
}
