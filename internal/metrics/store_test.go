package metrics

import (
	"testing"
	"time"

	"antitrigger/internal/model"
)

func TestStoreUpdateAndGet(t *testing.T) {
	s := NewStore(10)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Update(model.KeyStats{Key: "ABC", Category: model.CategorySalaryDump, ChainLength: 2, UpdatedAt: now})
	s.Update(model.KeyStats{Key: "ABC", Category: model.CategorySpam, Count: 1, UpdatedAt: now})
	s.Update(model.KeyStats{Key: "ABC", Category: model.CategorySalaryDump, ChainLength: 3, UpdatedAt: now})
	s.Update(model.KeyStats{Category: model.CategorySpam})

	got, ok := s.Get("ABC")
	if !ok || len(got) != 2 {
		t.Fatalf("expected two categories, got %v", got)
	}
	if got[0].Category != model.CategorySalaryDump || got[0].ChainLength != 3 {
		t.Fatalf("unexpected ordering or stale value: %+v", got)
	}
	if s.Len() != 1 {
		t.Fatalf("empty key should be ignored, len %d", s.Len())
	}
	if _, ok := s.Get("NOPE"); ok {
		t.Fatalf("unexpected stats for unknown key")
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	s := NewStore(2)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Update(model.KeyStats{Key: "old", Category: model.CategorySpam, UpdatedAt: now})
	s.Update(model.KeyStats{Key: "mid", Category: model.CategorySpam, UpdatedAt: now.Add(time.Minute)})
	s.Update(model.KeyStats{Key: "new", Category: model.CategorySpam, UpdatedAt: now.Add(2 * time.Minute)})
	if s.Len() != 2 {
		t.Fatalf("expected limit to hold, len %d", s.Len())
	}
	if _, ok := s.Get("old"); ok {
		t.Fatalf("oldest key should be evicted")
	}
	s.Clear()
	if len(s.GetAll()) != 0 {
		t.Fatalf("clear left stats behind")
	}
}
