package analytics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// activeWindow is how recently a session must have been seen to count as a
// live viewer. Widgets ping every 15s, so two missed beats means gone.
const activeWindow = 45 * time.Second

// Store provides database operations for viewer session tracking.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a new analytics store at dbPath.
func NewStore(dbPath string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create analytics dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT NOT NULL,
			liveblog_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			last_seen DATETIME NOT NULL,
			pings INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, liveblog_id)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_liveblog ON sessions(liveblog_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen);
	`)
	return err
}

// RecordStart registers a widget attaching to a liveblog. A repeated start
// for the same session refreshes last_seen and mode but keeps started_at.
func (s *Store) RecordStart(sessionID, liveblogID, mode string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, liveblog_id, mode, started_at, last_seen, pings)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(session_id, liveblog_id) DO UPDATE SET
			mode = excluded.mode,
			last_seen = excluded.last_seen`,
		sessionID, liveblogID, mode, now, now)
	return err
}

// RecordPing bumps a session's heartbeat. A ping for a session the store
// never saw starts one; widgets that outlive a server restart keep counting.
func (s *Store) RecordPing(sessionID, liveblogID, mode string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, liveblog_id, mode, started_at, last_seen, pings)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(session_id, liveblog_id) DO UPDATE SET
			last_seen = excluded.last_seen,
			pings = pings + 1`,
		sessionID, liveblogID, mode, now, now)
	return err
}

// GetStats summarizes viewer activity for one liveblog.
func (s *Store) GetStats(liveblogID string) (Stats, error) {
	st := Stats{LiveblogID: liveblogID}
	cutoff := time.Now().UTC().Add(-activeWindow)
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN last_seen > ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN mode = 'iframe' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN mode = 'native' THEN 1 ELSE 0 END), 0)
		FROM sessions WHERE liveblog_id = ?`, cutoff, liveblogID).
		Scan(&st.TotalSessions, &st.ActiveNow, &st.IframeCount, &st.NativeCount)
	return st, err
}

// CleanupOldSessions removes sessions not seen for retentionDays days.
func (s *Store) CleanupOldSessions(retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	_, err := s.db.Exec(`DELETE FROM sessions WHERE last_seen < ?`, cutoff)
	return err
}

// StartCleanupScheduler runs periodic cleanup of old sessions. Returns a
// stop function.
func (s *Store) StartCleanupScheduler(retentionDays int, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.CleanupOldSessions(retentionDays); err != nil {
					s.log.Error().Err(err).Msg("analytics cleanup failed")
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
