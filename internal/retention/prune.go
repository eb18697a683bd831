package retention

import (
	"sort"
	"time"

	"antitrigger/internal/model"
)

// CounterBucketLayout names a counter bucket in SpamRecord.Counters.
const CounterBucketLayout = "2006-01-02T15:04"

// SpamPolicy bounds every part of a SpamRecord.
type SpamPolicy struct {
	Window         time.Duration
	MemoTTL        time.Duration
	CounterBucket  time.Duration
	CounterHorizon time.Duration
}

// PruneChain sorts entries ascending and drops those older than horizon,
// measured from the newest entry. A last-alerted memo older than the horizon
// goes too. Pruning an already pruned record changes nothing.
func PruneChain(rec model.ChainRecord, horizon time.Duration) model.ChainRecord {
	if len(rec.Entries) == 0 {
		return model.ChainRecord{}
	}
	entries := append([]model.ChainEntry(nil), rec.Entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	if horizon > 0 {
		cutoff := entries[len(entries)-1].Timestamp.Add(-horizon)
		start := 0
		for start < len(entries) && entries[start].Timestamp.Before(cutoff) {
			start++
		}
		entries = entries[start:]
		if rec.LastAlerted != nil && rec.LastAlerted.RecordedAt.Before(cutoff) {
			rec.LastAlerted = nil
		}
	}
	rec.Entries = entries
	return rec
}

// PruneSpam drops burst timestamps at or before now-window, an expired memo
// and counter buckets that ended before the counter horizon.
func PruneSpam(rec model.SpamRecord, now time.Time, p SpamPolicy) model.SpamRecord {
	cutoff := now.Add(-p.Window)
	var kept []time.Time
	for _, ts := range rec.Timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	rec.Timestamps = kept
	if rec.Memo != nil && now.Sub(rec.Memo.RecordedAt) > p.MemoTTL {
		rec.Memo = nil
	}
	if len(rec.Counters) > 0 {
		oldest := now.Add(-p.CounterHorizon)
		size := bucketSize(p.CounterBucket)
		counters := make(map[string]int, len(rec.Counters))
		for bucket, n := range rec.Counters {
			start, err := time.Parse(CounterBucketLayout, bucket)
			if err != nil || !start.Add(size).After(oldest) {
				continue
			}
			counters[bucket] = n
		}
		rec.Counters = counters
	}
	if len(rec.Counters) == 0 {
		rec.Counters = nil
	}
	return rec
}

func CounterBucket(ts time.Time, size time.Duration) string {
	return ts.UTC().Truncate(bucketSize(size)).Format(CounterBucketLayout)
}

func SpamEmpty(rec model.SpamRecord) bool {
	return len(rec.Timestamps) == 0 && rec.Memo == nil && len(rec.Counters) == 0
}

func bucketSize(size time.Duration) time.Duration {
	if size < time.Minute {
		return time.Hour
	}
	return size
}
