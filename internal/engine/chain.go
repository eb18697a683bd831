package engine

import (
	"context"
	"time"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
	"antitrigger/internal/retention"
)

type ChainParams struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	Horizon     time.Duration
}

func chainParams(cfg config.DetectionConfig) ChainParams {
	return ChainParams{
		MinInterval: cfg.Chain.MinInterval,
		MaxInterval: cfg.Chain.MaxInterval,
		Horizon:     cfg.Retention,
	}
}

type ChainResult struct {
	Actor      string
	Category   model.Category
	Length     int
	Chain      []model.ChainEntry
	Fired      bool
	Suppressed bool
}

// FindChain returns the longest run of entries whose consecutive gaps all
// fall inside [minGap, maxGap]. Entries must be sorted ascending. Starting from
// each entry it walks forward, skipping entries that come too soon and
// stopping at the first one that comes too late. Ties go to the earliest
// start. Fewer than two members is no chain.
func FindChain(entries []model.ChainEntry, minGap, maxGap time.Duration) []model.ChainEntry {
	var best []int
	for start := range entries {
		run := []int{start}
		last := entries[start].Timestamp
		for i := start + 1; i < len(entries); i++ {
			gap := entries[i].Timestamp.Sub(last)
			if gap < minGap {
				continue
			}
			if gap > maxGap {
				break
			}
			run = append(run, i)
			last = entries[i].Timestamp
		}
		if len(run) > len(best) {
			best = run
		}
	}
	if len(best) < 2 {
		return nil
	}
	out := make([]model.ChainEntry, 0, len(best))
	for _, i := range best {
		out = append(out, entries[i])
	}
	return out
}

func chainMembers(chain []model.ChainEntry) []time.Time {
	out := make([]time.Time, 0, len(chain))
	for _, e := range chain {
		out = append(out, e.Timestamp)
	}
	return out
}

// coveredBy reports whether every member already belonged to the alerted
// chain. Pruning can shorten a reported chain, and what is left must not
// alert again; only a new member can.
func coveredBy(members, alerted []time.Time) bool {
	for _, m := range members {
		found := false
		for _, a := range alerted {
			if m.Equal(a) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ChainDetector tracks salary payouts per actor and category in the
// retention store.
type ChainDetector struct {
	state *retention.Store
}

func NewChainDetector(state *retention.Store) *ChainDetector {
	return &ChainDetector{state: state}
}

// Observe appends entry to the actor's record and reports whether the
// longest qualifying chain holds a member not yet reported. A chain made
// only of members of the last alerted chain is suppressed.
func (d *ChainDetector) Observe(ctx context.Context, cat model.Category, actor string, entry model.ChainEntry, p ChainParams) ChainResult {
	res := ChainResult{Actor: actor, Category: cat}
	if actor == "" {
		return res
	}
	d.state.AppendChain(ctx, retention.ChainBucket(cat), actor, entry, p.Horizon, func(rec *model.ChainRecord) {
		chain := FindChain(rec.Entries, p.MinInterval, p.MaxInterval)
		res.Length = len(chain)
		if len(chain) == 0 {
			return
		}
		members := chainMembers(chain)
		if rec.LastAlerted != nil && coveredBy(members, rec.LastAlerted.Members) {
			res.Suppressed = true
			return
		}
		rec.LastAlerted = &model.AlertMemo{
			Members:    members,
			RecordedAt: rec.Entries[len(rec.Entries)-1].Timestamp,
		}
		res.Chain = chain
		res.Fired = true
	})
	return res
}
