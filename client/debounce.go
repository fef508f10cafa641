package client

import (
	"sync"
	"time"
)

// Gate is a trailing-edge debounce in front of persistence for one entity.
// It is an explicit state machine: idle, or pending with a running timer,
// the latest coalesced patch, and the snapshot captured when the window
// opened. Only the last patch of a window is fired; the snapshot from
// registration time is what a failed fire must revert to, so a rollback
// after several coalesced optimistic updates undoes all of them.
type Gate[P any, S any] struct {
	mu      sync.Mutex
	delay   time.Duration
	overlay func(old, next P) P
	fire    func(patch P, snapshot S)

	pending  bool
	timer    *time.Timer
	latest   P
	snapshot S
}

// NewGate creates an idle Gate. overlay coalesces two patches (next wins
// per-field); fire sends the final patch together with the window-opening
// snapshot once the quiet period elapses.
func NewGate[P any, S any](delay time.Duration, overlay func(old, next P) P, fire func(patch P, snapshot S)) *Gate[P, S] {
	return &Gate[P, S]{delay: delay, overlay: overlay, fire: fire}
}

// Register feeds a patch into the gate. The first call of a window captures
// the snapshot and starts the timer; later calls in the same window coalesce
// into the latest patch and push the timer back.
func (g *Gate[P, S]) Register(patch P, snapshot S) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending {
		g.latest = g.overlay(g.latest, patch)
		g.timer.Stop()
		g.timer.Reset(g.delay)
		return
	}

	g.pending = true
	g.latest = patch
	g.snapshot = snapshot
	g.timer = time.AfterFunc(g.delay, g.expire)
}

func (g *Gate[P, S]) expire() {
	g.mu.Lock()
	if !g.pending {
		g.mu.Unlock()
		return
	}
	patch, snapshot := g.latest, g.snapshot
	g.reset()
	g.mu.Unlock()

	g.fire(patch, snapshot)
}

// Flush fires the pending patch immediately, if any.
func (g *Gate[P, S]) Flush() {
	g.mu.Lock()
	if !g.pending {
		g.mu.Unlock()
		return
	}
	g.timer.Stop()
	patch, snapshot := g.latest, g.snapshot
	g.reset()
	g.mu.Unlock()

	g.fire(patch, snapshot)
}

// Cancel discards the pending patch without firing.
func (g *Gate[P, S]) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.pending {
		return
	}
	g.timer.Stop()
	g.reset()
}

// Pending reports whether a window is currently open.
func (g *Gate[P, S]) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// reset returns the gate to idle. Caller holds the lock.
func (g *Gate[P, S]) reset() {
	var zeroP P
	var zeroS S
	g.pending = false
	g.timer = nil
	g.latest = zeroP
	g.snapshot = zeroS
}
