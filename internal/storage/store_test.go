package storage

import (
	"context"
	"testing"
	"time"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer s.Close()

	got, err := s.Get(ctx, BucketDumpChains, "missing")
	if err != nil || got != nil {
		t.Fatalf("missing key should be nil, nil; got %q, %v", got, err)
	}
	if err := s.Put(ctx, BucketDumpChains, "ABC", []byte(`{"entries":[]}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, BucketDumpChains, "ABC", []byte(`{"entries":[1]}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = s.Get(ctx, BucketDumpChains, "ABC")
	if err != nil || string(got) != `{"entries":[1]}` {
		t.Fatalf("get after overwrite: %q, %v", got, err)
	}
	if other, _ := s.Get(ctx, BucketLegitChains, "ABC"); other != nil {
		t.Fatalf("buckets must not share keys")
	}
	if err := s.Put(ctx, BucketSpamHistory, "actor:XYZ", []byte(`{}`)); err != nil {
		t.Fatalf("put spam: %v", err)
	}
	keys, err := s.Keys(ctx, BucketSpamHistory)
	if err != nil || len(keys) != 1 || keys[0] != "actor:XYZ" {
		t.Fatalf("spam keys: %v, %v", keys, err)
	}
	keys, err = s.Keys(ctx, BucketDumpChains)
	if err != nil || len(keys) != 1 || keys[0] != "ABC" {
		t.Fatalf("chain keys: %v, %v", keys, err)
	}
	if err := s.Delete(ctx, BucketDumpChains, "ABC"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, BucketDumpChains, "ABC"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if got, _ := s.Get(ctx, BucketDumpChains, "ABC"); got != nil {
		t.Fatalf("deleted key still present")
	}
	alert := model.Alert{ID: "a1", Timestamp: time.Now().UTC(), Kind: model.AlertSpamBurst, Severity: "high", Key: "actor:ABC", Count: 2}
	if err := s.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("save alert: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	exerciseStore(t, s)
}

func TestBadgerStore(t *testing.T) {
	s, err := NewBadger(":memory:")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	exerciseStore(t, s)
}

func TestNewStoreDisabledFallsBackToMemory(t *testing.T) {
	s, err := NewStore(config.StorageConfig{Enabled: false, Driver: "postgres"})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, ok := s.(*memoryStore); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
	if _, err := NewStore(config.StorageConfig{Enabled: true, Driver: "etcd"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}
