package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// planLocks serializes read-modify-write sequences on a single plan.
type planLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*planLock
}

type planLock struct {
	mu   sync.Mutex
	refs int
}

func newPlanLocks() *planLocks {
	return &planLocks{locks: make(map[uuid.UUID]*planLock)}
}

// lock blocks until the caller holds the lock for id and returns the release func.
func (p *planLocks) lock(id uuid.UUID) func() {
	p.mu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &planLock{}
		p.locks[id] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, id)
		}
		p.mu.Unlock()
	}
}
