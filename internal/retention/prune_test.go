package retention

import (
	"testing"
	"time"

	"antitrigger/internal/model"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func entryAt(offset time.Duration) model.ChainEntry {
	return model.ChainEntry{Timestamp: base.Add(offset), Amount: 1000, Reason: "salary", MoneyType: model.MoneyBank}
}

func TestPruneChainSortsAndDropsOld(t *testing.T) {
	rec := model.ChainRecord{Entries: []model.ChainEntry{
		entryAt(5 * time.Hour),
		entryAt(0),
		entryAt(4 * time.Hour),
		entryAt(2 * time.Hour),
	}}
	got := PruneChain(rec, 2*time.Hour)
	if len(got.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.Entries))
	}
	for i := 1; i < len(got.Entries); i++ {
		if got.Entries[i].Timestamp.Before(got.Entries[i-1].Timestamp) {
			t.Fatalf("entries not sorted: %v", got.Entries)
		}
	}
	if !got.Entries[0].Timestamp.Equal(base.Add(4 * time.Hour)) {
		t.Fatalf("unexpected oldest entry %v", got.Entries[0].Timestamp)
	}
}

func TestPruneChainIdempotent(t *testing.T) {
	rec := model.ChainRecord{
		Entries:     []model.ChainEntry{entryAt(0), entryAt(90 * time.Minute), entryAt(3 * time.Hour)},
		LastAlerted: &model.AlertMemo{RecordedAt: base, Members: []time.Time{base}},
	}
	once := PruneChain(rec, 2*time.Hour)
	twice := PruneChain(once, 2*time.Hour)
	if len(once.Entries) != len(twice.Entries) {
		t.Fatalf("second prune changed entries: %d vs %d", len(once.Entries), len(twice.Entries))
	}
	if once.LastAlerted != nil {
		t.Fatalf("memo older than the horizon should be dropped")
	}
	if len(once.Entries) != 2 {
		t.Fatalf("expected 2 entries within horizon, got %d", len(once.Entries))
	}
}

func TestPruneChainEmpty(t *testing.T) {
	got := PruneChain(model.ChainRecord{LastAlerted: &model.AlertMemo{RecordedAt: base}}, time.Hour)
	if len(got.Entries) != 0 || got.LastAlerted != nil {
		t.Fatalf("empty record should prune to zero value, got %+v", got)
	}
}

func TestPruneSpamWindowBoundary(t *testing.T) {
	now := base.Add(time.Minute)
	rec := model.SpamRecord{Timestamps: []time.Time{base, base.Add(time.Second), now}}
	got := PruneSpam(rec, now, SpamPolicy{Window: time.Minute})
	if len(got.Timestamps) != 2 {
		t.Fatalf("timestamp at now-window should be dropped, got %v", got.Timestamps)
	}
}

func TestPruneSpamMemoAndCounters(t *testing.T) {
	now := base.Add(3 * time.Hour)
	p := SpamPolicy{Window: time.Minute, MemoTTL: 30 * time.Minute, CounterBucket: time.Hour, CounterHorizon: 2 * time.Hour}
	rec := model.SpamRecord{
		Memo: &model.AlertMemo{RecordedAt: base},
		Counters: map[string]int{
			CounterBucket(base, time.Hour):                  1,
			CounterBucket(base.Add(time.Hour), time.Hour):   2,
			CounterBucket(base.Add(2*time.Hour), time.Hour): 3,
			"garbage": 9,
		},
	}
	got := PruneSpam(rec, now, p)
	if got.Memo != nil {
		t.Fatalf("expired memo kept")
	}
	if len(got.Counters) != 2 || got.Counters[CounterBucket(base.Add(2*time.Hour), time.Hour)] != 3 {
		t.Fatalf("unexpected counters %v", got.Counters)
	}
	if SpamEmpty(got) {
		t.Fatalf("record with a live counter is not empty")
	}

	got = PruneSpam(got, now.Add(3*time.Hour), p)
	if !SpamEmpty(got) || got.Counters != nil {
		t.Fatalf("expected empty record, got %+v", got)
	}
}

func TestPruneSpamFreshMemoKept(t *testing.T) {
	rec := model.SpamRecord{Memo: &model.AlertMemo{RecordedAt: base}}
	got := PruneSpam(rec, base.Add(10*time.Second), SpamPolicy{Window: time.Minute, MemoTTL: time.Minute})
	if got.Memo == nil {
		t.Fatalf("fresh memo dropped")
	}
}

func TestCounterBucket(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 47, 12, 0, time.FixedZone("X", 2*3600))
	if got := CounterBucket(ts, time.Hour); got != "2024-03-01T08:00" {
		t.Fatalf("unexpected bucket %q", got)
	}
	if got := CounterBucket(ts, 0); got != "2024-03-01T08:00" {
		t.Fatalf("sub-minute size should fall back to an hour, got %q", got)
	}
	if got := CounterBucket(ts, 15*time.Minute); got != "2024-03-01T08:45" {
		t.Fatalf("unexpected 15m bucket %q", got)
	}
}
