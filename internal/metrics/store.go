package metrics

import (
	"sort"
	"sync"

	"antitrigger/internal/model"
)

// Store keeps the latest correlation snapshot per key and category.
type Store struct {
	mu    sync.RWMutex
	byKey map[string]map[model.Category]model.KeyStats
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byKey: make(map[string]map[model.Category]model.KeyStats),
		limit: limit,
	}
}

func (s *Store) Update(stats model.KeyStats) {
	if stats.Key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byKey[stats.Key]
	if !ok {
		m = make(map[model.Category]model.KeyStats)
		s.byKey[stats.Key] = m
	}
	m[stats.Category] = stats
	if len(s.byKey) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(key string) ([]model.KeyStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byKey[key]
	if !ok {
		return nil, false
	}
	return sortedStats(m), true
}

func (s *Store) GetAll() map[string][]model.KeyStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]model.KeyStats, len(s.byKey))
	for key, m := range s.byKey {
		out[key] = sortedStats(m)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

func (s *Store) evictOldest() {
	var oldestKey string
	var oldest model.KeyStats
	for key, m := range s.byKey {
		for _, st := range m {
			if oldestKey == "" || st.UpdatedAt.Before(oldest.UpdatedAt) {
				oldestKey = key
				oldest = st
			}
		}
	}
	if oldestKey != "" {
		delete(s.byKey, oldestKey)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey = make(map[string]map[model.Category]model.KeyStats)
}

func sortedStats(m map[model.Category]model.KeyStats) []model.KeyStats {
	out := make([]model.KeyStats, 0, len(m))
	for _, st := range m {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
