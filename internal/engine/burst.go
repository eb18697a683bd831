package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"antitrigger/internal/config"
	"antitrigger/internal/metrics"
	"antitrigger/internal/model"
	"antitrigger/internal/retention"
)

// BurstParams are the thresholds one Observe call runs with.
type BurstParams struct {
	Window    time.Duration
	Threshold int
	Policy    retention.SpamPolicy
}

func burstParams(cfg config.DetectionConfig) BurstParams {
	return BurstParams{
		Window:    cfg.Burst.Window,
		Threshold: cfg.Burst.Threshold,
		Policy: retention.SpamPolicy{
			Window:         cfg.Burst.Window,
			MemoTTL:        cfg.Burst.MemoDuration,
			CounterBucket:  cfg.CounterBucket,
			CounterHorizon: cfg.Retention,
		},
	}
}

type BurstResult struct {
	Key        string
	Count      int
	Reached    bool
	Fired      bool
	Suppressed string
	Occurrence int
	Run        []time.Time
}

// BurstDetector counts occurrences per key inside a sliding window. All keys
// share one mutex; prune, append, evaluation and the durable save for an
// event happen while it is held. The first event after start (or Reset)
// adopts every durable record, so keys that never recur are still swept.
type BurstDetector struct {
	mu      sync.Mutex
	keys    map[string]*model.SpamRecord
	clock   time.Time
	adopted bool
	state   *retention.Store
}

func NewBurstDetector(state *retention.Store) *BurstDetector {
	return &BurstDetector{
		keys:  make(map[string]*model.SpamRecord),
		state: state,
	}
}

// Observe records one occurrence of key at ts. Reaching the threshold clears
// the window; the run fires unless alertable is false or the key's memo is
// still fresh.
func (b *BurstDetector) Observe(ctx context.Context, key, snippet string, ts time.Time, alertable bool, p BurstParams) BurstResult {
	res := BurstResult{Key: key}
	if key == "" {
		return res
	}
	threshold := p.Threshold
	if threshold < 1 {
		threshold = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ts.After(b.clock) {
		b.clock = ts
	}
	now := b.clock
	if !b.adopted {
		b.adopt(ctx)
	}
	b.sweep(ctx, key, now, p.Policy)

	rec := b.record(ctx, key)
	pruned := retention.PruneSpam(*rec, now, p.Policy)
	*rec = pruned
	if snippet != "" {
		rec.Snippet = snippet
	}
	if len(rec.Timestamps) >= threshold {
		// Only a lowered threshold leaves a full window behind; it restarts
		// without firing.
		rec.Timestamps = nil
	}
	if ts.After(now.Add(-p.Window)) {
		rec.Timestamps = append(rec.Timestamps, ts)
	}
	res.Count = len(rec.Timestamps)

	if res.Count == threshold {
		res.Reached = true
		res.Run = append([]time.Time(nil), rec.Timestamps...)
		rec.Timestamps = nil
		switch {
		case !alertable:
			res.Suppressed = "legit_reason"
		case rec.Memo != nil && now.Sub(rec.Memo.RecordedAt) <= p.Policy.MemoTTL:
			res.Suppressed = "memo"
		default:
			rec.Memo = &model.AlertMemo{Signature: runSignature(key, res.Run), RecordedAt: now}
			if rec.Counters == nil {
				rec.Counters = make(map[string]int)
			}
			bucket := retention.CounterBucket(now, p.Policy.CounterBucket)
			rec.Counters[bucket]++
			res.Occurrence = rec.Counters[bucket]
			res.Fired = true
		}
	}

	if retention.SpamEmpty(*rec) {
		delete(b.keys, key)
	}
	_ = b.state.SaveSpam(ctx, key, *rec)
	metrics.ActiveBurstKeys.Set(float64(len(b.keys)))
	return res
}

// Len reports how many keys hold live burst state.
func (b *BurstDetector) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.keys)
}

func (b *BurstDetector) Reset() {
	b.mu.Lock()
	b.keys = make(map[string]*model.SpamRecord)
	b.clock = time.Time{}
	b.adopted = false
	b.mu.Unlock()
	metrics.ActiveBurstKeys.Set(0)
}

// record returns the in-memory state for key, loading it from the durable
// store on first touch.
func (b *BurstDetector) record(ctx context.Context, key string) *model.SpamRecord {
	if rec, ok := b.keys[key]; ok {
		return rec
	}
	loaded := b.state.LoadSpam(ctx, key)
	rec := &loaded
	b.keys[key] = rec
	return rec
}

// adopt loads every durable spam record not yet in memory. A listing
// failure leaves the detector lazy-loading and is retried on the next event.
func (b *BurstDetector) adopt(ctx context.Context) {
	keys, err := b.state.SpamKeys(ctx)
	if err != nil {
		return
	}
	for _, k := range keys {
		b.record(ctx, k)
	}
	b.adopted = true
}

// sweep prunes every other key against now and drops the ones left empty.
func (b *BurstDetector) sweep(ctx context.Context, skip string, now time.Time, policy retention.SpamPolicy) {
	for k, rec := range b.keys {
		if k == skip {
			continue
		}
		pruned := retention.PruneSpam(*rec, now, policy)
		if retention.SpamEmpty(pruned) {
			delete(b.keys, k)
			_ = b.state.SaveSpam(ctx, k, pruned)
			continue
		}
		*rec = pruned
	}
}

func runSignature(key string, run []time.Time) string {
	h := sha256.New()
	h.Write([]byte(key))
	for _, ts := range run {
		h.Write([]byte{'|'})
		h.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
