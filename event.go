package kfrp

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/birdayz/kfrp/kevents"
	"github.com/birdayz/kfrp/kgraph"
)

// EventState is the value of an event node in one frame.
type EventState[A any] struct {
	value A
	fired bool
}

func Fired[A any](v A) EventState[A] {
	return EventState[A]{value: v, fired: true}
}

func None[A any]() EventState[A] {
	return EventState[A]{}
}

// Get returns the fired value.
func (s EventState[A]) Get() (A, bool) {
	return s.value, s.fired
}

func (s EventState[A]) IsFired() bool {
	return s.fired
}

func (s EventState[A]) String() string {
	if !s.fired {
		return "None"
	}
	return fmt.Sprintf("Fired(%v)", s.value)
}

func (s EventState[A]) firedValue() (any, bool) {
	if !s.fired {
		return nil, false
	}
	return s.value, true
}

type firing interface {
	firedValue() (any, bool)
}

// firedValue unwraps a type-erased EventState.
func firedValue(v any) (any, bool) {
	if f, ok := v.(firing); ok {
		return f.firedValue()
	}
	return nil, false
}

// Event fires values in single frames. The zero Event is not usable.
type Event[A any] struct {
	tl *Timeline
	id kgraph.NodeID
}

func (e Event[A]) timeline() *Timeline {
	if e.tl == nil {
		panic(ErrTimelineNotInitialized)
	}
	return e.tl
}

func (e Event[A]) ID() kgraph.NodeID {
	return e.id
}

func (e Event[A]) Timeline() *Timeline {
	return e.tl
}

func (e Event[A]) label() string {
	return labelOf(e.timeline(), e.id)
}

// State returns whether the event fired in the current frame.
func (e Event[A]) State() EventState[A] {
	tl := e.timeline()
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return as[EventState[A]](tl.fetch(e.id), e.label())
}

// Observe calls fn with every fired value, synchronously.
func (e Event[A]) Observe(fn func(A)) func() {
	label := e.label()
	return e.timeline().addListener(e.id, func(v any) {
		if x, ok := as[EventState[A]](v, label).Get(); ok {
			fn(x)
		}
	}, false)
}

// ObserveAsync calls fn in the timeline scope with every fired value.
func (e Event[A]) ObserveAsync(fn func(A)) func() {
	label := e.label()
	return e.timeline().addListener(e.id, func(v any) {
		if x, ok := as[EventState[A]](v, label).Get(); ok {
			fn(x)
		}
	}, true)
}

// Emitter is an external event.
type Emitter[A any] struct {
	Event[A]
}

// ExternalEvent creates an input event.
func ExternalEvent[A any](tl *Timeline, label string) Emitter[A] {
	if tl == nil {
		panic(ErrTimelineNotInitialized)
	}
	id := tl.allocID()
	none := None[A]()
	tl.createNode(id, label, none, tl.resetEvent(id, none), nil)
	tl.registerExternal(id, label, reflect.TypeFor[A](), kevents.FireEvent, func(v any) any {
		return Fired(as[A](v, label))
	})
	return Emitter[A]{Event[A]{tl: tl, id: id}}
}

// Send fires v in a new frame.
func (e Emitter[A]) Send(v A) {
	e.timeline().update(e.id, Fired(v), false, kevents.ExternalAction{
		Type:  kevents.FireEvent,
		ID:    e.id,
		Value: v,
	})
}

// mapEvent derives an event that fires f(a) whenever e fires a and f keeps
// the value.
func mapEvent[A, B any](e Event[A], name string, f func(sc *SampleScope, a A) (B, bool)) Event[B] {
	tl := e.timeline()
	label := e.label()
	id := tl.allocID()
	var none any = None[B]()
	tl.createMappedNode(id, name+"("+label+")", e.id, func(sc *SampleScope, v any) any {
		a, ok := as[EventState[A]](v, label).Get()
		if !ok {
			return none
		}
		b, keep := f(sc, a)
		if !keep {
			return none
		}
		return Fired(b)
	}, &none, tl.resetEvent(id, none))
	return Event[B]{tl: tl, id: id}
}

func MapEvent[A, B any](e Event[A], f func(A) B) Event[B] {
	return mapEvent(e, "map", func(_ *SampleScope, a A) (B, bool) {
		return f(a), true
	})
}

// MapEventWith is MapEvent where f may read signals through sc.
func MapEventWith[A, B any](e Event[A], f func(sc *SampleScope, a A) B) Event[B] {
	return mapEvent(e, "map", func(sc *SampleScope, a A) (B, bool) {
		return f(sc, a), true
	})
}

func Filter[A any](e Event[A], keep func(A) bool) Event[A] {
	return mapEvent(e, "filter", func(_ *SampleScope, a A) (A, bool) {
		return a, keep(a)
	})
}

// Updates fires the new value whenever s changes.
func Updates[A any](s Signal[A]) Event[A] {
	tl := s.timeline()
	label := s.label()
	id := tl.allocID()
	var none any = None[A]()
	tl.createMappedNode(id, "updates("+label+")", s.id, func(_ *SampleScope, v any) any {
		return Fired(as[A](v, label))
	}, &none, tl.resetEvent(id, none))
	return Event[A]{tl: tl, id: id}
}

// MergeStrategy combines the values of events firing in the same frame.
type MergeStrategy[A any] func(left, right A) A

// Leftmost keeps the value of the first event in merge order.
func Leftmost[A any]() MergeStrategy[A] {
	return func(left, _ A) A {
		return left
	}
}

// Merged fires whenever one of events fires. Simultaneous values resolve
// with Leftmost.
func Merged[A any](events ...Event[A]) Event[A] {
	return MergedWith(Leftmost[A](), events...)
}

// MergedWith fires whenever one of events fires. Simultaneous values are
// combined left to right with strategy.
func MergedWith[A any](strategy MergeStrategy[A], events ...Event[A]) Event[A] {
	tl := events[0].timeline()
	id := tl.allocID()
	ids := make([]kgraph.NodeID, len(events))
	for i, e := range events {
		ids[i] = e.id
	}
	none := None[A]()
	tl.createCombinedNode(id, "merged", ids, func(vs []any) any {
		var (
			acc   A
			fired bool
		)
		for _, v := range vs {
			x, ok := as[EventState[A]](v, "merged").Get()
			switch {
			case !ok:
			case !fired:
				acc, fired = x, true
			default:
				acc = strategy(acc, x)
			}
		}
		if !fired {
			return none
		}
		return Fired(acc)
	}, tl.resetEvent(id, none))
	return Event[A]{tl: tl, id: id}
}

// Gate passes the values of e while open holds true.
func Gate[A any](e Event[A], open Signal[bool]) Event[A] {
	tl := e.timeline()
	id := tl.allocID()
	label := e.label()
	none := None[A]()
	tl.createCombinedNode(id, "gate("+label+")", []kgraph.NodeID{e.id, open.id}, func(vs []any) any {
		x, ok := as[EventState[A]](vs[0], label).Get()
		if !ok || !as[bool](vs[1], "gate") {
			return none
		}
		return Fired(x)
	}, tl.resetEvent(id, none))
	return Event[A]{tl: tl, id: id}
}

// SampleOn fires the value of s whenever e fires.
func SampleOn[A, B any](e Event[A], s Signal[B]) Event[B] {
	tl := e.timeline()
	id := tl.allocID()
	label := s.label()
	none := None[B]()
	tl.createCombinedNode(id, "sampleOn("+label+")", []kgraph.NodeID{e.id, s.id}, func(vs []any) any {
		if _, fired := firedValue(vs[0]); !fired {
			return none
		}
		return Fired(as[B](vs[1], label))
	}, tl.resetEvent(id, none))
	return Event[B]{tl: tl, id: id}
}

// Switch fires the values of the event currently held by se.
func Switch[A any](se Signal[Event[A]]) Event[A] {
	tl := se.timeline()
	label := se.label()
	id := tl.allocID()
	var none any = None[A]()
	tl.createMappedNode(id, "switch("+label+")", se.id, func(_ *SampleScope, v any) any {
		inner := as[Event[A]](v, label)
		tl.rewire(inner.id, id)
		return tl.fetch(inner.id)
	}, nil, tl.resetEvent(id, none))
	return Event[A]{tl: tl, id: id}
}

// Debounced fires the last value of e once e was quiet for d of wall time.
// The result is an input of the timeline: its firings are logged and
// replayed, and no timers are started while replaying or resetting.
func Debounced[A any](e Event[A], d time.Duration) Event[A] {
	tl := e.timeline()
	out := ExternalEvent[A](tl, "debounced("+e.label()+")")

	var (
		mu  sync.Mutex
		gen uint64
	)
	e.Observe(func(v A) {
		if tl.replaying || tl.resetting {
			return
		}
		mu.Lock()
		gen++
		mine := gen
		mu.Unlock()

		tl.scope.Go(func(ctx context.Context) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}

			mu.Lock()
			latest := mine == gen
			mu.Unlock()
			if latest {
				tl.background(func() { out.Send(v) })
			}
			return nil
		})
	})
	return out.Event
}

type throttleState struct {
	last    time.Duration
	started bool
	emitted bool
}

// Throttled passes a value of e only if at least d of logical time passed
// since the last value it passed.
func Throttled[A any](e Event[A], d time.Duration) Event[A] {
	tl := e.timeline()
	label := e.label()

	stateID := tl.allocID()
	tl.createFoldNode(stateID, "throttle("+label+")", throttleState{}, e.id, func(acc, _ any) any {
		st := as[throttleState](acc, label)
		now := as[time.Duration](tl.fetch(tl.nowID), "now")
		if st.started && now-st.last < d {
			st.emitted = false
			return st
		}
		return throttleState{last: now, started: true, emitted: true}
	})

	id := tl.allocID()
	none := None[A]()
	tl.createCombinedNode(id, "throttled("+label+")", []kgraph.NodeID{e.id, stateID}, func(vs []any) any {
		x, ok := as[EventState[A]](vs[0], label).Get()
		if !ok || !as[throttleState](vs[1], label).emitted {
			return none
		}
		return Fired(x)
	}, tl.resetEvent(id, none))
	return Event[A]{tl: tl, id: id}
}

// background runs fn for a producer goroutine unless the timeline is closed
// or replaying.
func (tl *Timeline) background(fn func()) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.closed || tl.replaying {
		return
	}
	fn()
}
