package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Counters(t *testing.T) {
	tracker := NewTracker()

	tracker.Record(100)
	tracker.Record(250)
	tracker.Record(50)

	numRequests, totalTimeMS, recent := tracker.Snapshot()
	assert.Equal(t, int64(3), numRequests)
	assert.Equal(t, int64(400), totalTimeMS)
	assert.Equal(t, []int64{100, 250, 50}, recent)
}

func TestRecord_WindowEviction(t *testing.T) {
	tracker := NewTracker()

	for i := 0; i < MaxRecentRequests+10; i++ {
		tracker.Record(int64(i))
	}

	numRequests, _, recent := tracker.Snapshot()
	assert.Equal(t, int64(MaxRecentRequests+10), numRequests)
	assert.Len(t, recent, MaxRecentRequests)

	// Oldest samples are evicted first; the window holds the newest ones
	// in arrival order.
	assert.Equal(t, int64(10), recent[0])
	assert.Equal(t, int64(MaxRecentRequests+9), recent[len(recent)-1])
}

func TestSnapshot_ReturnsCopy(t *testing.T) {
	tracker := NewTracker()
	tracker.Record(1)

	_, _, recent := tracker.Snapshot()
	recent[0] = 999

	_, _, again := tracker.Snapshot()
	assert.Equal(t, int64(1), again[0])
}

func TestRecord_ConcurrentReaders(t *testing.T) {
	tracker := NewTracker()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			tracker.Record(int64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, _, _ = tracker.Snapshot()
		}
	}()
	wg.Wait()

	numRequests, _, _ := tracker.Snapshot()
	assert.Equal(t, int64(500), numRequests)
}
