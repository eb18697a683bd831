package engine

import (
	"sync"
	"time"
)

const dedupeCompactAt = 10000

// DedupeCache remembers transport deliveries processed recently, so a
// message redelivered by its source (a gateway resume, a Kafka rebalance)
// counts once. Identity is the source plus its delivery id; events without
// one are never deduplicated, since identical log text is exactly what the
// burst detector counts.
type DedupeCache struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewDedupeCache() *DedupeCache {
	return &DedupeCache{items: make(map[string]time.Time)}
}

// Seen reports whether the delivery was already seen within ttl of now and
// records it otherwise. An empty delivery id is never seen.
func (d *DedupeCache) Seen(source, deliveryID string, now time.Time, ttl time.Duration) bool {
	if deliveryID == "" || ttl <= 0 {
		return false
	}
	key := source + "\x00" + deliveryID
	d.mu.Lock()
	defer d.mu.Unlock()
	if at, ok := d.items[key]; ok && now.Sub(at) <= ttl {
		return true
	}
	d.items[key] = now
	if len(d.items) > dedupeCompactAt {
		for k, at := range d.items {
			if now.Sub(at) > ttl {
				delete(d.items, k)
			}
		}
	}
	return false
}

func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func (d *DedupeCache) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.items)
}
