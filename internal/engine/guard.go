package engine

import "sync/atomic"

// reentrancyGuard is the engine-level analogue of a nonReentrant modifier:
// a flag held for the full duration of a mutating operation. A collaborator
// callback that re-enters the engine while the flag is held fails immediately
// instead of observing a half-updated ledger. The guard does not queue
// callers; the transport layer serializes independent requests.
type reentrancyGuard struct {
	busy atomic.Bool
}

// enter acquires the guard or fails with ErrReentrantCall.
func (g *reentrancyGuard) enter() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// exit releases the guard. Called via defer on every exit path.
func (g *reentrancyGuard) exit() {
	g.busy.Store(false)
}
