package kgraph

import (
	"errors"
	"fmt"
)

var (
	ErrNodeAlreadyExists = errors.New("node already exists")
	ErrNodeNotFound      = errors.New("node not found")
	ErrCycleDetected     = errors.New("cycle detected in graph")
	ErrInvalidTopology   = errors.New("invalid topology")
)

// Validation limits to prevent pathological cases
const (
	MaxDepth           = 10000
	MaxChildrenPerNode = 100000
)

// NodeID identifies a node within one graph. IDs are allocated by the owner
// before the node is inserted, so closures can refer to a node by ID before it
// exists.
type NodeID int64

// Graph is the node arena plus child adjacency of a reactive graph.
type Graph[N, V any] interface {
	// AddNode inserts a node. The node has no value until SetValue is called.
	AddNode(id NodeID, node N) error

	// Node returns the node stored under id.
	Node(id NodeID) (N, bool)

	// AddChild adds a directed edge parent -> child.
	// Duplicate edges are not filtered.
	AddChild(parent, child NodeID) error

	// Children returns the direct children of id in insertion order.
	Children(id NodeID) []NodeID

	// Value returns the current value of id.
	Value(id NodeID) (V, bool)

	// SetValue replaces the current value of id.
	SetValue(id NodeID, value V)

	// NodeIDs returns all node ids in insertion order.
	NodeIDs() []NodeID

	// Len returns the number of nodes.
	Len() int

	// Snapshot captures the current values and child adjacency. The returned
	// snapshot is not affected by later edits of the graph.
	Snapshot() Snapshot[V]
}

// Snapshot is an immutable view of the values and edges of a graph.
type Snapshot[V any] interface {
	Value(id NodeID) (V, bool)
	Children(id NodeID) []NodeID
	// Range calls fn for every recorded value until fn returns false.
	Range(fn func(id NodeID, value V) bool)
	Len() int
}

// Option configures a graph.
type Option func(*options)

type options struct {
	cycleCheck bool
}

// WithCycleCheck makes AddChild reject edges that would close a cycle.
// The check walks the descendants of the child, O(V+E) per insertion.
func WithCycleCheck(enabled bool) Option {
	return func(o *options) {
		o.cycleCheck = enabled
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func checkEdge[N, V any](g Graph[N, V], o options, parent, child NodeID) error {
	if _, ok := g.Node(parent); !ok {
		return fmt.Errorf("%w: parent %d", ErrNodeNotFound, parent)
	}
	if _, ok := g.Node(child); !ok {
		return fmt.Errorf("%w: child %d", ErrNodeNotFound, child)
	}
	if len(g.Children(parent)) >= MaxChildrenPerNode {
		return fmt.Errorf("%w: node %d has %d children, exceeds maximum %d",
			ErrInvalidTopology, parent, len(g.Children(parent)), MaxChildrenPerNode)
	}
	if o.cycleCheck {
		if path := pathBetween(g, child, parent); path != nil {
			return fmt.Errorf("%w: %s", ErrCycleDetected, formatPath(append([]NodeID{parent}, path...)))
		}
	}
	return nil
}
