package kfrp

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/birdayz/kfrp/kevents"
	"github.com/birdayz/kfrp/kgraph"
	"golang.org/x/exp/constraints"
)

// Number is the constraint of the arithmetic folds.
type Number interface {
	constraints.Integer | constraints.Float
}

// Signal is a value that changes over time. The zero Signal is not usable.
type Signal[A any] struct {
	tl *Timeline
	id kgraph.NodeID
}

func (s Signal[A]) timeline() *Timeline {
	if s.tl == nil {
		panic(ErrTimelineNotInitialized)
	}
	return s.tl
}

func (s Signal[A]) ID() kgraph.NodeID {
	return s.id
}

func (s Signal[A]) Timeline() *Timeline {
	return s.tl
}

func (s Signal[A]) label() string {
	return labelOf(s.timeline(), s.id)
}

func labelOf(tl *Timeline, id kgraph.NodeID) string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	n := tl.node(id)
	if n.label == "" {
		return fmt.Sprintf("#%d", id)
	}
	return n.label
}

// Value returns the current value, recomputing it if it is stale.
func (s Signal[A]) Value() A {
	tl := s.timeline()
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return as[A](tl.fetch(s.id), s.label())
}

// Observe calls fn with every new value, synchronously during propagation.
// The returned function removes the listener.
func (s Signal[A]) Observe(fn func(A)) func() {
	label := s.label()
	return s.timeline().addListener(s.id, func(v any) {
		fn(as[A](v, label))
	}, false)
}

// ObserveAsync calls fn in the timeline scope after each frame in which the
// signal changed. Calls are not ordered.
func (s Signal[A]) ObserveAsync(fn func(A)) func() {
	label := s.label()
	return s.timeline().addListener(s.id, func(v any) {
		fn(as[A](v, label))
	}, true)
}

// Var is an external signal.
type Var[A any] struct {
	Signal[A]
}

// ExternalSignal creates an input signal holding initial.
func ExternalSignal[A any](tl *Timeline, initial A, label string) Var[A] {
	if tl == nil {
		panic(ErrTimelineNotInitialized)
	}
	id := tl.allocID()
	tl.createNode(id, label, initial, nil, nil)
	tl.registerExternal(id, label, reflect.TypeFor[A](), kevents.UpdateValue, func(v any) any {
		return as[A](v, label)
	})
	return Var[A]{Signal[A]{tl: tl, id: id}}
}

// Set assigns v and runs a frame.
func (v Var[A]) Set(x A) {
	v.timeline().update(v.id, x, false, kevents.ExternalAction{
		Type:  kevents.UpdateValue,
		ID:    v.id,
		Value: x,
	})
}

// Update sets the result of f applied to the current value.
func (v Var[A]) Update(f func(A) A) {
	tl := v.timeline()
	tl.mu.Lock()
	defer tl.mu.Unlock()
	v.Set(f(v.Value()))
}

func Map[A, B any](s Signal[A], f func(A) B) Signal[B] {
	return MapWith(s, func(_ *SampleScope, a A) B {
		return f(a)
	})
}

// MapWith is Map where f may read other signals through sc. Signals read
// on construction become dependencies.
func MapWith[A, B any](s Signal[A], f func(sc *SampleScope, a A) B) Signal[B] {
	tl := s.timeline()
	label := s.label()
	id := tl.allocID()
	tl.createMappedNode(id, "map("+label+")", s.id, func(sc *SampleScope, v any) any {
		return f(sc, as[A](v, label))
	}, nil, nil)
	return Signal[B]{tl: tl, id: id}
}

func Combine2[A, B, C any](a Signal[A], b Signal[B], f func(A, B) C) Signal[C] {
	tl := a.timeline()
	id := tl.allocID()
	la, lb := a.label(), b.label()
	tl.createCombinedNode(id, "combine", []kgraph.NodeID{a.id, b.id}, func(vs []any) any {
		return f(as[A](vs[0], la), as[B](vs[1], lb))
	}, nil)
	return Signal[C]{tl: tl, id: id}
}

func Combine3[A, B, C, D any](a Signal[A], b Signal[B], c Signal[C], f func(A, B, C) D) Signal[D] {
	tl := a.timeline()
	id := tl.allocID()
	la, lb, lc := a.label(), b.label(), c.label()
	tl.createCombinedNode(id, "combine", []kgraph.NodeID{a.id, b.id, c.id}, func(vs []any) any {
		return f(as[A](vs[0], la), as[B](vs[1], lb), as[C](vs[2], lc))
	}, nil)
	return Signal[D]{tl: tl, id: id}
}

func Combine4[A, B, C, D, E any](a Signal[A], b Signal[B], c Signal[C], d Signal[D], f func(A, B, C, D) E) Signal[E] {
	tl := a.timeline()
	id := tl.allocID()
	la, lb, lc, ld := a.label(), b.label(), c.label(), d.label()
	tl.createCombinedNode(id, "combine", []kgraph.NodeID{a.id, b.id, c.id, d.id}, func(vs []any) any {
		return f(as[A](vs[0], la), as[B](vs[1], lb), as[C](vs[2], lc), as[D](vs[3], ld))
	}, nil)
	return Signal[E]{tl: tl, id: id}
}

func Combine5[A, B, C, D, E, F any](a Signal[A], b Signal[B], c Signal[C], d Signal[D], e Signal[E], f func(A, B, C, D, E) F) Signal[F] {
	tl := a.timeline()
	id := tl.allocID()
	la, lb, lc, ld, le := a.label(), b.label(), c.label(), d.label(), e.label()
	tl.createCombinedNode(id, "combine", []kgraph.NodeID{a.id, b.id, c.id, d.id, e.id}, func(vs []any) any {
		return f(as[A](vs[0], la), as[B](vs[1], lb), as[C](vs[2], lc), as[D](vs[3], ld), as[E](vs[4], le))
	}, nil)
	return Signal[F]{tl: tl, id: id}
}

// CombineAll collects the values of signals in order. signals must not be
// empty.
func CombineAll[A any](signals ...Signal[A]) Signal[[]A] {
	tl := signals[0].timeline()
	id := tl.allocID()
	ids := make([]kgraph.NodeID, len(signals))
	for i, s := range signals {
		ids[i] = s.id
	}
	tl.createCombinedNode(id, "combineAll", ids, func(vs []any) any {
		out := make([]A, len(vs))
		for i, v := range vs {
			out[i] = as[A](v, "combineAll")
		}
		return out
	}, nil)
	return Signal[[]A]{tl: tl, id: id}
}

// Flatten follows the signal currently held by ss.
func Flatten[A any](ss Signal[Signal[A]]) Signal[A] {
	tl := ss.timeline()
	label := ss.label()
	id := tl.allocID()
	tl.createMappedNode(id, "flatten("+label+")", ss.id, func(_ *SampleScope, v any) any {
		inner := as[Signal[A]](v, label)
		tl.rewire(inner.id, id)
		return tl.fetch(inner.id)
	}, nil, nil)
	return Signal[A]{tl: tl, id: id}
}

func FlatMap[A, B any](s Signal[A], f func(A) Signal[B]) Signal[B] {
	return Flatten(Map(s, f))
}

// Fold accumulates the values of e, starting with initial.
func Fold[A, E any](e Event[E], initial A, f func(A, E) A) Signal[A] {
	tl := e.timeline()
	label := e.label()
	id := tl.allocID()
	tl.createFoldNode(id, "fold("+label+")", initial, e.id, func(acc, v any) any {
		return f(as[A](acc, label), as[E](v, label))
	})
	return Signal[A]{tl: tl, id: id}
}

// Scan fires every new accumulated value of Fold.
func Scan[A, E any](e Event[E], initial A, f func(A, E) A) Event[A] {
	acc := Fold(e, initial, f)
	tl := e.timeline()
	id := tl.allocID()
	none := None[A]()
	tl.createCombinedNode(id, "scan", []kgraph.NodeID{e.id, acc.id}, func(vs []any) any {
		if _, fired := firedValue(vs[0]); !fired {
			return none
		}
		return Fired(as[A](vs[1], "scan"))
	}, tl.resetEvent(id, none))
	return Event[A]{tl: tl, id: id}
}

// Hold keeps the last value fired by e.
func Hold[A any](e Event[A], initial A) Signal[A] {
	return Fold(e, initial, func(_ A, v A) A {
		return v
	})
}

func Sum[A Number](e Event[A]) Signal[A] {
	return Fold(e, A(0), func(acc A, v A) A {
		return acc + v
	})
}

// Window holds the last size values fired by e, oldest first.
func Window[A any](e Event[A], size int) Signal[[]A] {
	return Fold(e, []A{}, func(acc []A, v A) []A {
		next := slices.Clone(acc)
		next = append(next, v)
		if len(next) > size {
			next = next[len(next)-size:]
		}
		return next
	})
}
