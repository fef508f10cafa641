package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedCall struct {
	patch    EncounterPatch
	snapshot int
}

func TestGateCoalescesToLastPatch(t *testing.T) {
	var mu sync.Mutex
	var fired []struct {
		patch    string
		snapshot string
	}
	g := NewGate(50*time.Millisecond,
		func(old, next string) string { return next },
		func(patch, snapshot string) {
			mu.Lock()
			fired = append(fired, struct{ patch, snapshot string }{patch, snapshot})
			mu.Unlock()
		})

	g.Register("p1", "snap")
	g.Register("p2", "snap-later")
	g.Register("p3", "snap-latest")

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fired, 1)
	assert.Equal(t, "p3", fired[0].patch)
	// The snapshot is the one captured when the window opened, not any
	// later one.
	assert.Equal(t, "snap", fired[0].snapshot)
}

func TestGateMergesCumulatively(t *testing.T) {
	var mu sync.Mutex
	var got []firedCall
	round := func(n int) EncounterPatch { return EncounterPatch{Round: &n} }
	name := func(s string) EncounterPatch { return EncounterPatch{Name: &s} }

	g := NewGate(50*time.Millisecond, EncounterPatch.overlay,
		func(patch EncounterPatch, snapshot int) {
			mu.Lock()
			got = append(got, firedCall{patch, snapshot})
			mu.Unlock()
		})

	g.Register(round(2), 1)
	g.Register(name("renamed"), 99)

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	// Both fields of the window survive in the coalesced patch.
	require.NotNil(t, got[0].patch.Round)
	require.NotNil(t, got[0].patch.Name)
	assert.Equal(t, 2, *got[0].patch.Round)
	assert.Equal(t, "renamed", *got[0].patch.Name)
	assert.Equal(t, 1, got[0].snapshot)
}

func TestGateTimerResetsOnEachRegister(t *testing.T) {
	var mu sync.Mutex
	count := 0
	g := NewGate(80*time.Millisecond,
		func(old, next int) int { return next },
		func(int, int) {
			mu.Lock()
			count++
			mu.Unlock()
		})

	// Keep registering faster than the delay; nothing may fire mid-burst.
	for i := 0; i < 4; i++ {
		g.Register(i, 0)
		time.Sleep(30 * time.Millisecond)
	}
	mu.Lock()
	assert.Equal(t, 0, count)
	mu.Unlock()

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
}

func TestGateFlushFiresImmediately(t *testing.T) {
	var mu sync.Mutex
	var got []int
	g := NewGate(time.Hour,
		func(old, next int) int { return next },
		func(patch, snapshot int) {
			mu.Lock()
			got = append(got, patch)
			mu.Unlock()
		})

	g.Register(7, 0)
	g.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0])
	assert.False(t, g.Pending())
}

func TestGateCancelDiscards(t *testing.T) {
	fired := false
	g := NewGate(30*time.Millisecond,
		func(old, next int) int { return next },
		func(int, int) { fired = true })

	g.Register(1, 0)
	g.Cancel()
	time.Sleep(100 * time.Millisecond)

	assert.False(t, fired)
	assert.False(t, g.Pending())
}

func TestGateFlushIdleIsNoop(t *testing.T) {
	g := NewGate(time.Hour,
		func(old, next int) int { return next },
		func(int, int) { t.Fatal("must not fire") })
	g.Flush()
	g.Cancel()
}
