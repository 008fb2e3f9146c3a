package scheduler

import "sync"

// runGuard tracks stores with a sync currently in flight. Acquisition is
// atomic: two concurrent launches for the same store can never both win.
type runGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newRunGuard() *runGuard {
	return &runGuard{active: make(map[string]struct{})}
}

// TryAcquire claims the run slot for storeID, reporting whether it was free.
func (g *runGuard) TryAcquire(storeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[storeID]; ok {
		return false
	}
	g.active[storeID] = struct{}{}
	return true
}

// Release frees the run slot for storeID.
func (g *runGuard) Release(storeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, storeID)
}

// IsActive reports whether storeID currently holds the run slot.
func (g *runGuard) IsActive(storeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[storeID]
	return ok
}
