package kgraph

import (
	"fmt"
	"maps"
	"slices"
)

// Mutable is an adjacency-list graph backed by plain maps. It is the fast
// choice when no snapshots are retained.
type Mutable[N, V any] struct {
	nodes     map[NodeID]N
	values    map[NodeID]V
	children  map[NodeID][]NodeID
	nodeOrder []NodeID

	opts options
}

// NewMutable creates an empty mutable graph.
func NewMutable[N, V any](opts ...Option) *Mutable[N, V] {
	return &Mutable[N, V]{
		nodes:     make(map[NodeID]N),
		values:    make(map[NodeID]V),
		children:  make(map[NodeID][]NodeID),
		nodeOrder: make([]NodeID, 0),
		opts:      buildOptions(opts),
	}
}

func (g *Mutable[N, V]) AddNode(id NodeID, node N) error {
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("%w: %d", ErrNodeAlreadyExists, id)
	}
	g.nodes[id] = node
	g.nodeOrder = append(g.nodeOrder, id)
	return nil
}

func (g *Mutable[N, V]) Node(id NodeID) (N, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Mutable[N, V]) AddChild(parent, child NodeID) error {
	if err := checkEdge[N, V](g, g.opts, parent, child); err != nil {
		return fmt.Errorf("cannot connect %d -> %d: %w", parent, child, err)
	}
	g.children[parent] = append(g.children[parent], child)
	return nil
}

func (g *Mutable[N, V]) Children(id NodeID) []NodeID {
	return g.children[id]
}

func (g *Mutable[N, V]) Value(id NodeID) (V, bool) {
	v, ok := g.values[id]
	return v, ok
}

func (g *Mutable[N, V]) SetValue(id NodeID, value V) {
	g.values[id] = value
}

func (g *Mutable[N, V]) NodeIDs() []NodeID {
	return slices.Clone(g.nodeOrder)
}

func (g *Mutable[N, V]) Len() int {
	return len(g.nodes)
}

// Snapshot copies the value map and the child lists.
func (g *Mutable[N, V]) Snapshot() Snapshot[V] {
	children := make(map[NodeID][]NodeID, len(g.children))
	for id, c := range g.children {
		children[id] = slices.Clone(c)
	}
	return &mapSnapshot[V]{
		values:   maps.Clone(g.values),
		children: children,
	}
}

type mapSnapshot[V any] struct {
	values   map[NodeID]V
	children map[NodeID][]NodeID
}

func (s *mapSnapshot[V]) Value(id NodeID) (V, bool) {
	v, ok := s.values[id]
	return v, ok
}

func (s *mapSnapshot[V]) Children(id NodeID) []NodeID {
	return slices.Clone(s.children[id])
}

func (s *mapSnapshot[V]) Range(fn func(id NodeID, value V) bool) {
	ids := slices.Sorted(maps.Keys(s.values))
	for _, id := range ids {
		if !fn(id, s.values[id]) {
			return
		}
	}
}

func (s *mapSnapshot[V]) Len() int {
	return len(s.values)
}

var _ Graph[struct{}, any] = (*Mutable[struct{}, any])(nil)
