package storage

import (
	"context"
	"strings"
	"sync"

	"antitrigger/internal/model"
)

type memoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	alerts []model.Alert
}

func NewMemory() Store {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) Init(context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) Get(_ context.Context, bucket Bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[compositeKey(bucket, key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *memoryStore) Put(_ context.Context, bucket Bucket, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[compositeKey(bucket, key)] = append([]byte(nil), value...)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, bucket Bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, compositeKey(bucket, key))
	return nil
}

func (s *memoryStore) Keys(_ context.Context, bucket Bucket) ([]string, error) {
	prefix := bucketPrefix(bucket)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
	}
	return out, nil
}

func (s *memoryStore) SaveAlert(_ context.Context, alert model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}
