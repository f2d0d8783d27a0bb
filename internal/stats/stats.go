// Package stats tracks request latencies for each tracked term.
package stats

import (
	"sync"
	"sync/atomic"
)

// MaxRecentRequests bounds the window of retained latency samples.
const MaxRecentRequests = 2000

// Tracker holds request stats for a single term. The tracker loop is the
// only writer; HTTP handlers read concurrently via Snapshot.
type Tracker struct {
	mu             sync.Mutex
	recentRequests []int64

	numRequests atomic.Int64
	totalTimeMS atomic.Int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		recentRequests: make([]int64, 0, MaxRecentRequests),
	}
}

// Record adds one request observation, in milliseconds. When the window is
// full the oldest sample is evicted first.
func (t *Tracker) Record(latencyMS int64) {
	t.numRequests.Add(1)
	t.totalTimeMS.Add(latencyMS)

	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.recentRequests) >= MaxRecentRequests {
		t.recentRequests = t.recentRequests[1:]
	}
	t.recentRequests = append(t.recentRequests, latencyMS)
}

// Snapshot returns the request counter, total time and a copy of the recent
// latency window. The two counters are read independently, so callers should
// treat the pair as approximate.
func (t *Tracker) Snapshot() (numRequests, totalTimeMS int64, recent []int64) {
	numRequests = t.numRequests.Load()
	totalTimeMS = t.totalTimeMS.Load()

	t.mu.Lock()
	defer t.mu.Unlock()
	recent = make([]int64, len(t.recentRequests))
	copy(recent, t.recentRequests)
	return numRequests, totalTimeMS, recent
}
