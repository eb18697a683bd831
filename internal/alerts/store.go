// Package alerts keeps the most recent alerts in a fixed-size ring for the
// status API.
package alerts

import (
	"sync"
	"time"

	"antitrigger/internal/model"
)

// Query selects alerts from the ring. Zero fields match everything; Limit
// keeps the newest matches.
type Query struct {
	Since time.Time
	Kind  model.AlertKind
	Key   string
	Limit int
}

type Store struct {
	mu   sync.RWMutex
	ring []model.Alert
	next int
	full bool
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{ring: make([]model.Alert, limit)}
}

func (s *Store) Add(alert model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = alert
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
}

// List returns up to limit of the newest alerts, oldest first.
func (s *Store) List(limit int) []model.Alert {
	return s.Find(Query{Limit: limit})
}

func (s *Store) Since(ts time.Time) []model.Alert {
	return s.Find(Query{Since: ts})
}

func (s *Store) Find(q Query) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0)
	s.each(func(a model.Alert) {
		if !q.Since.IsZero() && a.Timestamp.Before(q.Since) {
			return
		}
		if q.Kind != "" && a.Kind != q.Kind {
			return
		}
		if q.Key != "" && a.Key != q.Key {
			return
		}
		out = append(out, a)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return len(s.ring)
	}
	return s.next
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.ring)
	s.next = 0
	s.full = false
}

// each visits stored alerts oldest first. Callers hold the lock.
func (s *Store) each(fn func(model.Alert)) {
	if s.full {
		for _, a := range s.ring[s.next:] {
			fn(a)
		}
	}
	for _, a := range s.ring[:s.next] {
		fn(a)
	}
}
