package engine

import (
	"testing"
	"time"

	"antitrigger/internal/model"
)

func entriesAt(offsets ...time.Duration) []model.ChainEntry {
	out := make([]model.ChainEntry, 0, len(offsets))
	for _, off := range offsets {
		out = append(out, model.ChainEntry{Timestamp: base.Add(off), Amount: 500})
	}
	return out
}

func TestFindChain(t *testing.T) {
	const minGap, maxGap = 25 * time.Minute, 35 * time.Minute
	cases := []struct {
		name    string
		entries []model.ChainEntry
		want    []time.Duration
	}{
		{"empty", nil, nil},
		{"single", entriesAt(0), nil},
		{"too far apart", entriesAt(0, 40*time.Minute), nil},
		{"pair", entriesAt(0, 30*time.Minute), []time.Duration{0, 30 * time.Minute}},
		{"skips early entry", entriesAt(0, 10*time.Minute, 30*time.Minute, 61*time.Minute),
			[]time.Duration{0, 30 * time.Minute, 61 * time.Minute}},
		{"break ends walk", entriesAt(0, 30*time.Minute, 80*time.Minute, 110*time.Minute),
			[]time.Duration{0, 30 * time.Minute}},
		{"longest wins", entriesAt(0, 30*time.Minute, 80*time.Minute, 105*time.Minute, 135*time.Minute),
			[]time.Duration{80 * time.Minute, 105 * time.Minute, 135 * time.Minute}},
		{"boundaries inclusive", entriesAt(0, 25*time.Minute, 60*time.Minute),
			[]time.Duration{0, 25 * time.Minute, 60 * time.Minute}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FindChain(tc.entries, minGap, maxGap)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d members, got %d", len(tc.want), len(got))
			}
			for i, off := range tc.want {
				if !got[i].Timestamp.Equal(base.Add(off)) {
					t.Fatalf("member %d: expected %s, got %s", i, base.Add(off), got[i].Timestamp)
				}
			}
		})
	}
}

func TestCoveredBy(t *testing.T) {
	alerted := []time.Time{base, base.Add(30 * time.Minute), base.Add(60 * time.Minute)}
	shifted := []time.Time{base.Add(30 * time.Minute).In(time.FixedZone("x", 3600)), base.Add(60 * time.Minute)}
	if !coveredBy(shifted, alerted) {
		t.Fatalf("a pruned remainder of the alerted chain should be covered")
	}
	if !coveredBy(alerted, alerted) {
		t.Fatalf("identical members should be covered")
	}
	if coveredBy(append(shifted, base.Add(90*time.Minute)), alerted) {
		t.Fatalf("a new member must not be covered")
	}
	if coveredBy(shifted, nil) {
		t.Fatalf("nothing alerted covers nothing")
	}
}

func TestDedupeCache(t *testing.T) {
	d := NewDedupeCache()
	if d.Seen("discord", "", base, time.Minute) || d.Seen("discord", "", base, time.Minute) {
		t.Fatalf("events without a delivery id are never duplicates")
	}
	if d.Seen("discord", "111", base, time.Minute) {
		t.Fatalf("first delivery reported as seen")
	}
	if !d.Seen("discord", "111", base.Add(500*time.Millisecond), time.Minute) {
		t.Fatalf("redelivery within ttl not detected")
	}
	if d.Seen("kafka", "111", base.Add(time.Second), time.Minute) {
		t.Fatalf("delivery ids are scoped to their source")
	}
	if d.Seen("discord", "111", base.Add(3*time.Minute), time.Minute) {
		t.Fatalf("redelivery after ttl should be processed again")
	}
	if d.Seen("discord", "222", base, 0) || d.Seen("discord", "222", base, 0) {
		t.Fatalf("zero ttl disables dedupe")
	}
	d.Reset()
	if d.Len() != 0 {
		t.Fatalf("reset left %d entries", d.Len())
	}
}
