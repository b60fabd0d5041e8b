package livequest

import "sync"

// Change notification events delivered to connected widgets. The payload is
// a discriminator only; clients re-fetch the snapshot on every event.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Event is the message pushed to every subscriber of a liveblog.
type Event struct {
	Event string `json:"event"`
}

// Hub fans change events out to the open stream connections of each
// liveblog. Slow subscribers are skipped rather than blocking the
// broadcaster; a dropped event only delays the client until the next one.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for one liveblog and returns its channel
// plus a cancel func. Cancel is idempotent and closes the channel.
func (h *Hub) Subscribe(liveblogID string) (<-chan Event, func()) {
	ch := make(chan Event, 8)
	h.mu.Lock()
	set, ok := h.subs[liveblogID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[liveblogID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[liveblogID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, liveblogID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Broadcast delivers ev to every subscriber of the liveblog without
// blocking on full buffers.
func (h *Hub) Broadcast(liveblogID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[liveblogID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports how many stream connections a liveblog currently has.
func (h *Hub) Subscribers(liveblogID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[liveblogID])
}
