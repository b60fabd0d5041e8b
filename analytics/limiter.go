package analytics

import (
	"sync"
	"time"
)

// Limiter is a per-key sliding-window rate limiter. The track endpoint uses
// it keyed by client IP so a stuck widget cannot flood the session store.
//
// Allow prunes the key it touches, so the background sweep only has to
// reclaim keys that went quiet, for example a viewer closing the tab.
type Limiter struct {
	mu       sync.Mutex
	hits     map[string][]time.Time
	max      int
	window   time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

func NewLimiter(max int, window time.Duration) *Limiter {
	rl := &Limiter{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
		done:   make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Allow checks if key has not exceeded the limit and records the request.
func (rl *Limiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	kept := rl.prune(key, now)
	if len(kept) >= rl.max {
		rl.hits[key] = kept
		return false
	}
	rl.hits[key] = append(kept, now)
	return true
}

// Stop ends the background sweep. The limiter stays usable, only idle
// keys stop being reclaimed.
func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// prune drops hits older than the window for one key. Callers hold rl.mu.
func (rl *Limiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	hits := rl.hits[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (rl *Limiter) sweep() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key := range rl.hits {
				if kept := rl.prune(key, now); len(kept) == 0 {
					delete(rl.hits, key)
				} else {
					rl.hits[key] = kept
				}
			}
			rl.mu.Unlock()
		}
	}
}
