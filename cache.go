package livequest

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// FeedCache is a read-through cache of encoded feed snapshots with TTL. A
// crowd of polling widgets on the same liveblog collapses into one storage
// query per TTL window.
type FeedCache struct {
	mu      sync.RWMutex
	entries map[string]feedEntry
	ttl     time.Duration
	limit   int
	store   *Store
}

type feedEntry struct {
	body    []byte
	fetched time.Time
}

// NewFeedCache creates a FeedCache backed by the given Store. limit caps the
// number of updates per snapshot.
func NewFeedCache(s *Store, ttl time.Duration, limit int) *FeedCache {
	return &FeedCache{
		entries: make(map[string]feedEntry),
		ttl:     ttl,
		limit:   limit,
		store:   s,
	}
}

func (c *FeedCache) valid(e feedEntry) bool {
	return e.body != nil && time.Since(e.fetched) < c.ttl
}

// Invalidate clears one liveblog's snapshot so the next read triggers a
// fresh load. Called after every save or delete.
func (c *FeedCache) Invalidate(liveblogID string) {
	c.mu.Lock()
	delete(c.entries, liveblogID)
	c.mu.Unlock()
}

// Snapshot returns the encoded feed body for a liveblog, loading from the
// store when the cached copy is missing or stale. It tries a read lock
// first; only takes a write lock if a reload is needed.
func (c *FeedCache) Snapshot(liveblogID string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[liveblogID]
	c.mu.RUnlock()
	if ok && c.valid(e) {
		return e.body, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[liveblogID]; ok && c.valid(e) {
		return e.body, nil
	}
	updates, err := c.store.ListFeed(liveblogID, c.limit)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(feedResponse{Updates: updates})
	if err != nil {
		return nil, err
	}
	c.entries[liveblogID] = feedEntry{body: body, fetched: time.Now()}
	return body, nil
}
