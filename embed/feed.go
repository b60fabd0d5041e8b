package embed

import (
	"sort"
	"sync"
	"time"
)

// Order controls how the feed's derived view is sorted.
type Order string

const (
	OrderNewest Order = "newest"
	OrderOldest Order = "oldest"
)

// ParseOrder maps a declarative attribute value to an Order, defaulting to
// newest-first for anything unrecognized.
func ParseOrder(s string) Order {
	if Order(s) == OrderOldest {
		return OrderOldest
	}
	return OrderNewest
}

// entry pairs an update with its arrival sequence so ties on equal
// timestamps keep first-insertion order across re-sorts.
type entry struct {
	u   Update
	seq uint64
}

// Feed is the in-memory collection of updates for one liveblog instance.
// Mutations maintain the id uniqueness invariant; Sorted derives the
// display order without touching stored state.
type Feed struct {
	mu      sync.RWMutex
	entries []entry
	index   map[string]int
	nextSeq uint64
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{index: make(map[string]int)}
}

// ReplaceAll swaps the whole collection for a snapshot. Arrival order becomes
// the snapshot order; a duplicated id within the snapshot replaces in place.
func (f *Feed) ReplaceAll(updates []Update) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = f.entries[:0]
	f.index = make(map[string]int, len(updates))
	for _, u := range updates {
		if i, ok := f.index[u.ID]; ok {
			f.entries[i].u = u
			continue
		}
		f.index[u.ID] = len(f.entries)
		f.entries = append(f.entries, entry{u: u, seq: f.nextSeq})
		f.nextSeq++
	}
}

// Upsert inserts u at the most recent logical position if its id is unseen,
// otherwise replaces the existing entry in place, preserving the rest of the
// collection's relative order.
func (f *Feed) Upsert(u Update) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if i, ok := f.index[u.ID]; ok {
		seq := f.entries[i].seq
		f.entries[i] = entry{u: u, seq: seq}
		return
	}
	f.entries = append([]entry{{u: u, seq: f.nextSeq}}, f.entries...)
	f.nextSeq++
	f.reindex()
}

// Remove deletes an update by id. Removing an absent id is a no-op.
func (f *Feed) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i, ok := f.index[id]
	if !ok {
		return
	}
	f.entries = append(f.entries[:i], f.entries[i+1:]...)
	f.reindex()
}

// Len reports the number of stored updates.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Sorted returns the display view: pinned items always first regardless of
// order, then by publish time, descending for newest and ascending for oldest.
// Missing timestamps sort as the zero time. Ties keep first-insertion order.
func (f *Feed) Sorted(order Order) []Update {
	f.mu.RLock()
	view := make([]entry, len(f.entries))
	copy(view, f.entries)
	f.mu.RUnlock()

	sort.SliceStable(view, func(i, j int) bool {
		a, b := view[i], view[j]
		if a.u.Pinned != b.u.Pinned {
			return a.u.Pinned
		}
		at, bt := publishTime(a.u), publishTime(b.u)
		if !at.Equal(bt) {
			if order == OrderOldest {
				return at.Before(bt)
			}
			return at.After(bt)
		}
		return a.seq < b.seq
	})

	out := make([]Update, len(view))
	for i := range view {
		out[i] = view[i].u
	}
	return out
}

// reindex rebuilds the id index after a structural mutation.
func (f *Feed) reindex() {
	for i := range f.entries {
		f.index[f.entries[i].u.ID] = i
	}
	for id, i := range f.index {
		if i >= len(f.entries) || f.entries[i].u.ID != id {
			delete(f.index, id)
		}
	}
}

func publishTime(u Update) time.Time {
	if u.PublishedAt == nil {
		return time.Time{}
	}
	return *u.PublishedAt
}
