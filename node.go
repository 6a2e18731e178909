package kfrp

import (
	"slices"

	"github.com/birdayz/kfrp/kgraph"
)

// node is one cell of the graph. Its value lives in the graph's value map.
type node struct {
	id     kgraph.NodeID
	label  string
	height int

	// dirty means the stored value is stale and recompute must run before
	// the value is observed.
	dirty bool

	// stateful nodes (folds) depend on their previous value and are
	// recomputed eagerly even when nobody listens.
	stateful bool

	// recompute is nil for root nodes.
	recompute func() any

	// onNextFrame runs at the start of the external update following the
	// one in which the node got a new value.
	onNextFrame func()

	// onRollback rebuilds node state after the debugger restored frame.
	onRollback func(frame int64)

	parents map[kgraph.NodeID]struct{}

	listeners      []*listener
	asyncListeners []*listener
}

type listener struct {
	fn func(any)
}

func (n *node) observed() bool {
	return n.stateful || len(n.listeners) > 0 || len(n.asyncListeners) > 0
}

func (n *node) removeListener(l *listener) {
	n.listeners = slices.DeleteFunc(n.listeners, func(x *listener) bool { return x == l })
	n.asyncListeners = slices.DeleteFunc(n.asyncListeners, func(x *listener) bool { return x == l })
}

func (n *node) String() string {
	if n.label != "" {
		return n.label
	}
	return "node"
}
