// Package admission bounds the number of simultaneously handled client sessions.
package admission

import (
	"errors"
	"sync/atomic"
)

// DefaultMax is the session ceiling used when none is configured.
const DefaultMax = 5

// ErrRejected indicates the concurrency ceiling was reached.
// The connection is dropped without reading and the client must retry later.
var ErrRejected = errors.New("admission rejected: too many active sessions")

// Gate is a lock-free counter of in-flight sessions.
// The counter never exceeds Max and never drops below zero.
type Gate struct {
	active atomic.Int64
	max    int64
}

// NewGate creates a Gate admitting at most max sessions.
// A non-positive max falls back to DefaultMax.
func NewGate(max int) *Gate {
	if max <= 0 {
		max = DefaultMax
	}
	return &Gate{max: int64(max)}
}

// TryAdmit reserves a session slot. It returns false without side effects
// when the ceiling has been reached.
func (g *Gate) TryAdmit() bool {
	for {
		cur := g.active.Load()
		if cur >= g.max {
			return false
		}
		if g.active.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release frees a slot previously reserved by TryAdmit.
func (g *Gate) Release() {
	for {
		cur := g.active.Load()
		if cur <= 0 {
			return
		}
		if g.active.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Active returns the number of admitted sessions.
func (g *Gate) Active() int {
	return int(g.active.Load())
}

// Max returns the configured ceiling.
func (g *Gate) Max() int {
	return int(g.max)
}

// Saturated reports whether no further sessions can be admitted.
func (g *Gate) Saturated() bool {
	return g.active.Load() >= g.max
}
