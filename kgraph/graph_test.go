package kgraph

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

type testNode struct {
	label string
}

func backends(opts ...Option) map[string]func() Graph[testNode, int] {
	return map[string]func() Graph[testNode, int]{
		"mutable":    func() Graph[testNode, int] { return NewMutable[testNode, int](opts...) },
		"persistent": func() Graph[testNode, int] { return NewPersistent[testNode, int](opts...) },
	}
}

func chain(t *testing.T, g Graph[testNode, int], ids ...NodeID) {
	t.Helper()
	for _, id := range ids {
		assert.NoError(t, g.AddNode(id, testNode{}))
	}
	for i := 1; i < len(ids); i++ {
		assert.NoError(t, g.AddChild(ids[i-1], ids[i]))
	}
}

func TestAddNode(t *testing.T) {
	for name, newGraph := range backends() {
		t.Run(name, func(t *testing.T) {
			g := newGraph()
			assert.NoError(t, g.AddNode(1, testNode{label: "a"}))
			assert.NoError(t, g.AddNode(2, testNode{label: "b"}))

			n, ok := g.Node(1)
			assert.True(t, ok)
			assert.Equal(t, "a", n.label)
			assert.Equal(t, 2, g.Len())
			assert.Equal(t, []NodeID{1, 2}, g.NodeIDs())

			_, ok = g.Value(1)
			assert.False(t, ok)

			err := g.AddNode(1, testNode{})
			assert.True(t, errors.Is(err, ErrNodeAlreadyExists))
		})
	}
}

func TestAddChild(t *testing.T) {
	for name, newGraph := range backends() {
		t.Run(name, func(t *testing.T) {
			g := newGraph()
			chain(t, g, 1, 2, 3)
			assert.NoError(t, g.AddChild(1, 3))

			assert.Equal(t, []NodeID{2, 3}, g.Children(1))
			assert.Equal(t, []NodeID{3}, g.Children(2))
			assert.Equal(t, 0, len(g.Children(3)))

			err := g.AddChild(1, 42)
			assert.True(t, errors.Is(err, ErrNodeNotFound))
			err = g.AddChild(42, 1)
			assert.True(t, errors.Is(err, ErrNodeNotFound))
		})
	}
}

func TestCycleCheck(t *testing.T) {
	for name, newGraph := range backends(WithCycleCheck(true)) {
		t.Run(name, func(t *testing.T) {
			g := newGraph()
			chain(t, g, 1, 2, 3)

			err := g.AddChild(3, 1)
			assert.True(t, errors.Is(err, ErrCycleDetected))
			assert.Contains(t, err.Error(), "3 -> 1 -> 2 -> 3")

			err = g.AddChild(2, 2)
			assert.True(t, errors.Is(err, ErrCycleDetected))

			// rejected edges leave the graph untouched
			assert.Equal(t, 0, len(g.Children(3)))
			assert.NoError(t, DetectCycles(g))
		})
	}

	t.Run("disabled", func(t *testing.T) {
		g := NewMutable[testNode, int]()
		chain(t, g, 1, 2)
		assert.NoError(t, g.AddChild(2, 1))

		err := DetectCycles(g)
		assert.True(t, errors.Is(err, ErrCycleDetected))
	})
}

func TestSnapshotIsolation(t *testing.T) {
	for name, newGraph := range backends() {
		t.Run(name, func(t *testing.T) {
			g := newGraph()
			chain(t, g, 1, 2)
			g.SetValue(1, 10)
			g.SetValue(2, 20)

			snap := g.Snapshot()

			assert.NoError(t, g.AddNode(3, testNode{}))
			assert.NoError(t, g.AddChild(1, 3))
			g.SetValue(1, 11)
			g.SetValue(3, 30)

			v, ok := snap.Value(1)
			assert.True(t, ok)
			assert.Equal(t, 10, v)
			_, ok = snap.Value(3)
			assert.False(t, ok)
			assert.Equal(t, []NodeID{2}, snap.Children(1))
			assert.Equal(t, 2, snap.Len())

			v, _ = g.Value(1)
			assert.Equal(t, 11, v)
			assert.Equal(t, []NodeID{2, 3}, g.Children(1))
		})
	}
}

func TestSnapshotRange(t *testing.T) {
	for name, newGraph := range backends() {
		t.Run(name, func(t *testing.T) {
			g := newGraph()
			chain(t, g, 3, 1, 2)
			g.SetValue(3, 3)
			g.SetValue(1, 1)
			g.SetValue(2, 2)

			var seen []NodeID
			g.Snapshot().Range(func(id NodeID, value int) bool {
				assert.Equal(t, int(id), value)
				seen = append(seen, id)
				return true
			})
			assert.Equal(t, []NodeID{1, 2, 3}, seen)

			seen = nil
			g.Snapshot().Range(func(id NodeID, _ int) bool {
				seen = append(seen, id)
				return false
			})
			assert.Equal(t, []NodeID{1}, seen)
		})
	}
}

func TestTopologicalOrder(t *testing.T) {
	t.Run("diamond", func(t *testing.T) {
		g := NewMutable[testNode, int]()
		for _, id := range []NodeID{4, 3, 2, 1} {
			assert.NoError(t, g.AddNode(id, testNode{}))
		}
		assert.NoError(t, g.AddChild(1, 3))
		assert.NoError(t, g.AddChild(1, 2))
		assert.NoError(t, g.AddChild(2, 4))
		assert.NoError(t, g.AddChild(3, 4))

		order, err := TopologicalOrder(g)
		assert.NoError(t, err)
		assert.Equal(t, []NodeID{1, 2, 3, 4}, order)
	})

	t.Run("cycle", func(t *testing.T) {
		g := NewPersistent[testNode, int]()
		chain(t, g, 1, 2, 3)
		assert.NoError(t, g.AddChild(3, 2))

		_, err := TopologicalOrder(g)
		assert.True(t, errors.Is(err, ErrCycleDetected))
	})
}
