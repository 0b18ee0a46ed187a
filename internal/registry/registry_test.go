package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGet_AbsentClientIsZeroState(t *testing.T) {
	r := New()
	assert.Equal(t, State{}, r.Get("nobody"))
}

func TestTouch_UpdatesLastSeen(t *testing.T) {
	r := New()
	now := time.Now()
	r.Touch("client-1", now)
	assert.True(t, r.Get("client-1").LastSeenAt.Equal(now))
}

func TestSetAcknowledged(t *testing.T) {
	r := New()
	r.Touch("client-1", time.Now())
	assert.False(t, r.Get("client-1").AndroidOKAcknowledged)

	r.SetAcknowledged("client-1", true)
	assert.True(t, r.Get("client-1").AndroidOKAcknowledged)

	r.SetAcknowledged("client-1", false)
	assert.False(t, r.Get("client-1").AndroidOKAcknowledged)
}

func TestSetAcknowledged_CreatesEntryIfAbsent(t *testing.T) {
	r := New()
	r.SetAcknowledged("new-client", true)
	assert.True(t, r.Get("new-client").AndroidOKAcknowledged)
}

func TestForget_RemovesEntry(t *testing.T) {
	r := New()
	r.Touch("client-1", time.Now())
	r.Forget("client-1")
	assert.Equal(t, State{}, r.Get("client-1"))
	assert.Equal(t, 0, r.Len())
}

func TestForget_AbsentClientIsNoop(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() { r.Forget("never-existed") })
}

func TestLenAndSnapshot(t *testing.T) {
	r := New()
	now := time.Now()
	r.Touch("a", now)
	r.Touch("b", now)
	r.SetAcknowledged("b", true)

	assert.Equal(t, 2, r.Len())

	snap := r.Snapshot()
	assert.Len(t, snap, 2)
	assert.True(t, snap["b"].AndroidOKAcknowledged)
	assert.False(t, snap["a"].AndroidOKAcknowledged)
}

func TestSweep_EvictsOnlyStaleEntries(t *testing.T) {
	r := New()
	now := time.Now()
	r.Touch("stale", now.Add(-2*time.Hour))
	r.Touch("fresh", now)

	removed := r.Sweep(now, time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, State{}, r.Get("stale"))
	assert.True(t, r.Get("fresh").LastSeenAt.Equal(now))
}

func TestConcurrentAccessIsRace_Free(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "client"
			r.Touch(id, time.Now())
			r.SetAcknowledged(id, n%2 == 0)
			r.Get(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, r.Len())
}
