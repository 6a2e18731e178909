package kgraph

import (
	"fmt"
	"slices"

	"github.com/benbjohnson/immutable"
)

// Persistent is a graph whose values and edges live in structurally shared
// immutable maps. Every edit produces a new root; Snapshot hands out the
// current roots without copying.
type Persistent[N, V any] struct {
	nodes     *immutable.Map[NodeID, N]
	values    *immutable.Map[NodeID, V]
	children  *immutable.Map[NodeID, *immutable.List[NodeID]]
	nodeOrder *immutable.List[NodeID]

	opts options
}

type idHasher struct{}

func (idHasher) Hash(key NodeID) uint32 {
	k := uint64(key)
	return uint32(k ^ (k >> 32))
}

func (idHasher) Equal(a, b NodeID) bool {
	return a == b
}

// NewPersistent creates an empty persistent graph.
func NewPersistent[N, V any](opts ...Option) *Persistent[N, V] {
	return &Persistent[N, V]{
		nodes:     immutable.NewMap[NodeID, N](idHasher{}),
		values:    immutable.NewMap[NodeID, V](idHasher{}),
		children:  immutable.NewMap[NodeID, *immutable.List[NodeID]](idHasher{}),
		nodeOrder: immutable.NewList[NodeID](),
		opts:      buildOptions(opts),
	}
}

func (g *Persistent[N, V]) AddNode(id NodeID, node N) error {
	if _, exists := g.nodes.Get(id); exists {
		return fmt.Errorf("%w: %d", ErrNodeAlreadyExists, id)
	}
	g.nodes = g.nodes.Set(id, node)
	g.nodeOrder = g.nodeOrder.Append(id)
	return nil
}

func (g *Persistent[N, V]) Node(id NodeID) (N, bool) {
	return g.nodes.Get(id)
}

func (g *Persistent[N, V]) AddChild(parent, child NodeID) error {
	if err := checkEdge[N, V](g, g.opts, parent, child); err != nil {
		return fmt.Errorf("cannot connect %d -> %d: %w", parent, child, err)
	}
	list, ok := g.children.Get(parent)
	if !ok {
		list = immutable.NewList[NodeID]()
	}
	g.children = g.children.Set(parent, list.Append(child))
	return nil
}

func (g *Persistent[N, V]) Children(id NodeID) []NodeID {
	list, ok := g.children.Get(id)
	if !ok {
		return nil
	}
	return listToSlice(list)
}

func (g *Persistent[N, V]) Value(id NodeID) (V, bool) {
	return g.values.Get(id)
}

func (g *Persistent[N, V]) SetValue(id NodeID, value V) {
	g.values = g.values.Set(id, value)
}

func (g *Persistent[N, V]) NodeIDs() []NodeID {
	return listToSlice(g.nodeOrder)
}

func (g *Persistent[N, V]) Len() int {
	return g.nodes.Len()
}

// Snapshot is O(1): the current roots are immutable.
func (g *Persistent[N, V]) Snapshot() Snapshot[V] {
	return &persistentSnapshot[V]{
		values:   g.values,
		children: g.children,
	}
}

type persistentSnapshot[V any] struct {
	values   *immutable.Map[NodeID, V]
	children *immutable.Map[NodeID, *immutable.List[NodeID]]
}

func (s *persistentSnapshot[V]) Value(id NodeID) (V, bool) {
	return s.values.Get(id)
}

func (s *persistentSnapshot[V]) Children(id NodeID) []NodeID {
	list, ok := s.children.Get(id)
	if !ok {
		return nil
	}
	return listToSlice(list)
}

func (s *persistentSnapshot[V]) Range(fn func(id NodeID, value V) bool) {
	ids := make([]NodeID, 0, s.values.Len())
	itr := s.values.Iterator()
	for !itr.Done() {
		id, _, _ := itr.Next()
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		v, _ := s.values.Get(id)
		if !fn(id, v) {
			return
		}
	}
}

func (s *persistentSnapshot[V]) Len() int {
	return s.values.Len()
}

func listToSlice(list *immutable.List[NodeID]) []NodeID {
	out := make([]NodeID, list.Len())
	for i := 0; i < list.Len(); i++ {
		out[i] = list.Get(i)
	}
	return out
}

var _ Graph[struct{}, any] = (*Persistent[struct{}, any])(nil)
