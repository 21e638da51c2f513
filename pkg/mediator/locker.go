package mediator

import (
	"sync"

	"github.com/haasonsaas/dpc/pkg/admin"
)

// Locker hands out one mutex per admin identity. Mediators sharing a Locker
// never interleave commands for the same identity.
type Locker struct {
	mu    sync.Mutex
	locks map[admin.Identity]*sync.Mutex
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[admin.Identity]*sync.Mutex)}
}

// Lock blocks until the identity's mutex is held and returns its release func.
func (l *Locker) Lock(id admin.Identity) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
