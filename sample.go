package kfrp

import (
	"time"

	"github.com/birdayz/kfrp/kgraph"
)

// SampleScope reads node values. While a node is being constructed the scope
// is tracked: every signal read through it becomes a parent of the node.
// On recompute the scope is untracked, so the edges are fixed once the node
// exists.
type SampleScope struct {
	tl      *Timeline
	tracked bool
	reads   []kgraph.NodeID
}

func (tl *Timeline) tracked() *SampleScope {
	return &SampleScope{tl: tl, tracked: true}
}

func (tl *Timeline) untracked() *SampleScope {
	return &SampleScope{tl: tl}
}

func (sc *SampleScope) read(id kgraph.NodeID) any {
	if sc.tracked {
		sc.reads = append(sc.reads, id)
	}
	return sc.tl.fetch(id)
}

// Timeline returns the timeline the scope reads from.
func (sc *SampleScope) Timeline() *Timeline {
	return sc.tl
}

// Now returns the logical time. In a tracked scope the reading node is
// recomputed whenever time advances.
func (sc *SampleScope) Now() time.Duration {
	return as[time.Duration](sc.read(sc.tl.nowID), "now")
}

// Current returns the value of s.
func Current[A any](sc *SampleScope, s Signal[A]) A {
	s.timeline()
	return as[A](sc.read(s.id), s.label())
}

// Bind is Current for SignalOf builders.
func Bind[A any](sc *SampleScope, s Signal[A]) A {
	return Current(sc, s)
}

// SampleValue samples b at the current logical time.
func SampleValue[A any](sc *SampleScope, b Behavior[A]) A {
	return b.At(sc.Now())
}

// Sample runs f in an untracked scope under the timeline lock, so all reads
// see the same frame.
func Sample[A any](tl *Timeline, f func(sc *SampleScope) A) A {
	if tl == nil {
		panic(ErrTimelineNotInitialized)
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return f(tl.untracked())
}

// SignalOf builds a signal from the signals f binds. Only the signals bound
// on the first run become dependencies.
func SignalOf[A any](tl *Timeline, label string, f func(sc *SampleScope) A) Signal[A] {
	if tl == nil {
		panic(ErrTimelineNotInitialized)
	}
	id := tl.allocID()
	tl.createTrackedNode(id, label, func(sc *SampleScope) any {
		return f(sc)
	})
	return Signal[A]{tl: tl, id: id}
}
