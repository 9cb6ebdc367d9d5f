package executor

import (
	"sync"
	"time"
)

// dedup suppresses repeat deliveries of the same opportunity within a TTL
// window. The upstream scanner republishes an opportunity on every scan cycle
// while it stays profitable, so the feed is inherently duplicated. Safe for
// concurrent use.
type dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func newDedup(ttl time.Duration) *dedup {
	return &dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// isDuplicate reports whether id was seen within the TTL window, recording it
// either way.
func (d *dedup) isDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[id]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[id] = now
	return false
}

// cleanup drops expired entries. Called periodically by the coordinator loop
// to bound memory.
func (d *dedup) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
