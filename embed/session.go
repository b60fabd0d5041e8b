package embed

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Telemetry event names understood by the track endpoint.
const (
	EventStart = "start"
	EventPing  = "ping"
)

// SessionStore persists per-liveblog session ids across page loads. Ids are
// scoped by liveblog id so sessions never leak between liveblogs.
type SessionStore interface {
	Get(liveblogID string) (string, error)
	Put(liveblogID, sessionID string) error
}

// FileSessionStore keeps session ids in one JSON file, keyed by liveblog id.
// It is the durable store for headless hosts.
type FileSessionStore struct {
	path string
	mu   sync.Mutex
}

// NewFileSessionStore stores sessions at path, creating parent directories
// on first write.
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// DefaultSessionPath returns the conventional per-user session file location.
func DefaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".livequest", "sessions.json")
}

func (s *FileSessionStore) Get(liveblogID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return "", err
	}
	return m[liveblogID], nil
}

func (s *FileSessionStore) Put(liveblogID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return err
	}
	m[liveblogID] = sessionID
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileSessionStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		// A corrupt session file is not worth breaking the embed over.
		return map[string]string{}, nil
	}
	return m, nil
}

// MemSessionStore is an in-memory SessionStore for tests and hosts without
// durable storage.
type MemSessionStore struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemSessionStore returns an empty in-memory store.
func NewMemSessionStore() *MemSessionStore {
	return &MemSessionStore{m: make(map[string]string)}
}

func (s *MemSessionStore) Get(liveblogID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[liveblogID], nil
}

func (s *MemSessionStore) Put(liveblogID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[liveblogID] = sessionID
	return nil
}

// trackRequest is the telemetry call body. Mode rides along on every call so
// the backend can distinguish embedding styles.
type trackRequest struct {
	SessionID string `json:"sessionId"`
	Event     string `json:"event"`
	Mode      string `json:"mode"`
}

// Tracker emits session lifecycle telemetry for one visitor of one liveblog.
// Every call is fire-and-forget: failures are logged at debug and swallowed,
// never surfaced and never allowed to block rendering or content fetches.
type Tracker struct {
	trackURL   string
	liveblogID string
	mode       Mode
	store      SessionStore
	client     *http.Client
	log        zerolog.Logger

	mu        sync.Mutex
	sessionID string
}

// NewTracker builds a tracker bound to one liveblog and embedding mode.
func NewTracker(trackURL, liveblogID string, mode Mode, store SessionStore, client *http.Client, log zerolog.Logger) *Tracker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if store == nil {
		store = NewMemSessionStore()
	}
	return &Tracker{
		trackURL:   trackURL,
		liveblogID: liveblogID,
		mode:       mode,
		store:      store,
		client:     client,
		log:        log,
	}
}

// SessionID returns the visitor's session id, creating and persisting a new
// one on first use. Persistence failures degrade to a per-mount id.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID != "" {
		return t.sessionID
	}
	id, err := t.store.Get(t.liveblogID)
	if err != nil {
		t.log.Debug().Err(err).Msg("session store read failed")
	}
	if id == "" {
		id = uuid.NewString()
		if err := t.store.Put(t.liveblogID, id); err != nil {
			t.log.Debug().Err(err).Msg("session store write failed")
		}
	}
	t.sessionID = id
	return id
}

// Start emits the once-per-mount start event.
func (t *Tracker) Start(ctx context.Context) {
	t.send(ctx, EventStart)
}

// Ping emits a recurring heartbeat event.
func (t *Tracker) Ping(ctx context.Context) {
	t.send(ctx, EventPing)
}

func (t *Tracker) send(ctx context.Context, event string) {
	body, err := json.Marshal(trackRequest{
		SessionID: t.SessionID(),
		Event:     event,
		Mode:      string(t.mode),
	})
	if err != nil {
		t.log.Debug().Err(err).Msg("encode track call")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.trackURL, bytes.NewReader(body))
	if err != nil {
		t.log.Debug().Err(err).Msg("build track call")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Debug().Err(err).Str("event", event).Msg("track call failed")
		return
	}
	resp.Body.Close()
}
