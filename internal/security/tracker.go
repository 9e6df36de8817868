package security

import (
	"sort"
	"sync"
	"time"
)

type flowKey struct {
	stationID string
	kind      string
}

// FlowTracker counts recent observations per station and kind inside a
// sliding window. Entries outside the window are pruned lazily on read.
type FlowTracker struct {
	mu     sync.Mutex
	events map[flowKey][]time.Time
}

func NewFlowTracker() *FlowTracker {
	return &FlowTracker{events: make(map[flowKey][]time.Time)}
}

// Record notes one observation of kind for stationID.
func (t *FlowTracker) Record(stationID, kind string) {
	t.recordAt(stationID, kind, time.Now())
}

func (t *FlowTracker) recordAt(stationID, kind string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := flowKey{stationID: stationID, kind: kind}
	t.events[key] = append(t.events[key], at)
}

// Count reports how many observations of kind fell inside the window. An
// empty stationID sums across all stations.
func (t *FlowTracker) Count(kind string, window time.Duration, stationID string) int {
	return t.countAt(kind, window, stationID, time.Now())
}

func (t *FlowTracker) countAt(kind string, window time.Duration, stationID string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := now.Add(-window)
	total := 0
	for key, stamps := range t.events {
		if key.kind != kind {
			continue
		}
		kept := pruneBefore(stamps, cutoff)
		if len(kept) == 0 {
			delete(t.events, key)
			continue
		}
		t.events[key] = kept
		if stationID == "" || key.stationID == stationID {
			total += len(kept)
		}
	}
	return total
}

// stationsWith lists the stations that currently hold observations of kind.
func (t *FlowTracker) stationsWith(kind string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for key := range t.events {
		if key.kind == kind {
			ids = append(ids, key.stationID)
		}
	}
	sort.Strings(ids)
	return ids
}

// FlowSnapshot is the control plane's view of current message rates.
type FlowSnapshot struct {
	Global    map[string]int            `json:"global"`
	ByStation map[string]map[string]int `json:"by_station"`
}

// Snapshot tallies the observations still inside the window, both fleet-wide
// and per station.
func (t *FlowTracker) Snapshot(window time.Duration) FlowSnapshot {
	return t.snapshotAt(window, time.Now())
}

func (t *FlowTracker) snapshotAt(window time.Duration, now time.Time) FlowSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := now.Add(-window)
	snap := FlowSnapshot{
		Global:    make(map[string]int),
		ByStation: make(map[string]map[string]int),
	}
	for key, stamps := range t.events {
		kept := pruneBefore(stamps, cutoff)
		if len(kept) == 0 {
			delete(t.events, key)
			continue
		}
		t.events[key] = kept
		snap.Global[key.kind] += len(kept)
		station := snap.ByStation[key.stationID]
		if station == nil {
			station = make(map[string]int)
			snap.ByStation[key.stationID] = station
		}
		station[key.kind] += len(kept)
	}
	return snap
}

// pruneBefore drops the leading timestamps older than cutoff. Observations
// arrive in order, so the suffix is still sorted.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && stamps[i].Before(cutoff) {
		i++
	}
	return stamps[i:]
}
