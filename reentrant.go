package kfrp

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// reentrantMutex may be locked again by the goroutine that holds it.
// Listeners run under the timeline lock and may read or write nodes.
type reentrantMutex struct {
	mu    sync.Mutex
	owner atomic.Int64
	depth int
}

func (m *reentrantMutex) Lock() {
	gid := goid.Get()
	if m.owner.Load() == gid {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(gid)
	m.depth = 1
}

func (m *reentrantMutex) Unlock() {
	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}
