package kfrp

import (
	"slices"
	"time"

	"github.com/birdayz/kfrp/kevents"
	"github.com/birdayz/kfrp/kgraph"
	"github.com/birdayz/kfrp/kmath"
)

type behaviorKind int

const (
	kindConstant behaviorKind = iota
	kindPolynomial
	kindContinuous
	kindSampled
	kindImpulse
	kindSum
	kindUntil
	kindTransformed
	kindIntegrated
)

func (k behaviorKind) String() string {
	switch k {
	case kindConstant:
		return "constant"
	case kindPolynomial:
		return "polynomial"
	case kindContinuous:
		return "continuous"
	case kindSampled:
		return "sampled"
	case kindImpulse:
		return "impulse"
	case kindSum:
		return "sum"
	case kindUntil:
		return "until"
	case kindTransformed:
		return "transformed"
	case kindIntegrated:
		return "integrated"
	}
	return "unknown"
}

// Behavior is a value defined at every point of logical time. The zero
// Behavior is not usable.
type Behavior[A any] struct {
	tl   *Timeline
	kind behaviorKind

	constant A
	poly     kmath.Polynomial // in seconds
	fn       func(time.Duration) A

	sampledID kevents.BehaviorID
	sampler   func() A

	impulses *impulseLog[A]

	parts []Behavior[A]
	add   func(A, A) A

	until     kgraph.NodeID
	inner     *Behavior[A]
	transform func(time.Duration) time.Duration

	integral *integrator
}

func (b Behavior[A]) timeline() *Timeline {
	if b.tl == nil {
		panic(ErrTimelineNotInitialized)
	}
	return b.tl
}

// Kind names the variant, for diagnostics.
func (b Behavior[A]) Kind() string {
	return b.kind.String()
}

// At samples the behavior at t.
func (b Behavior[A]) At(t time.Duration) A {
	tl := b.timeline()
	switch b.kind {
	case kindConstant:
		return b.constant
	case kindPolynomial:
		return any(b.poly.Eval(t.Seconds())).(A)
	case kindContinuous:
		return b.fn(t)
	case kindSampled:
		return as[A](tl.sampleBehavior(b.sampledID, func() any { return b.sampler() }), "sampled")
	case kindImpulse:
		return b.impulses.at(t)
	case kindSum:
		acc := b.parts[0].At(t)
		for _, p := range b.parts[1:] {
			acc = b.add(acc, p.At(t))
		}
		return acc
	case kindUntil:
		return b.current(t).At(t)
	case kindTransformed:
		return b.inner.At(b.transform(t))
	case kindIntegrated:
		return any(b.integral.at(t)).(A)
	}
	panic("unknown behavior kind " + b.kind.String())
}

// Sample returns the value at the current logical time.
func (b Behavior[A]) Sample() A {
	return b.At(b.timeline().Now())
}

func Constant[A any](tl *Timeline, v A) Behavior[A] {
	return Behavior[A]{tl: tl, kind: kindConstant, constant: v}
}

// Polynomial is a behavior of time in seconds with ascending coefficients.
func Polynomial(tl *Timeline, coefficients ...float64) Behavior[float64] {
	return Behavior[float64]{tl: tl, kind: kindPolynomial, poly: kmath.Poly(coefficients...)}
}

// Continuous wraps a pure function of time.
func Continuous[A any](tl *Timeline, f func(time.Duration) A) Behavior[A] {
	return Behavior[A]{tl: tl, kind: kindContinuous, fn: f}
}

// Sampled wraps a non-deterministic source, such as a sensor or the wall
// clock. Within a frame all samples return the first value read; the value
// is logged with the frame and served from the log on replay.
func Sampled[A any](tl *Timeline, sampler func() A) Behavior[A] {
	if tl == nil {
		panic(ErrTimelineNotInitialized)
	}
	return Behavior[A]{
		tl:        tl,
		kind:      kindSampled,
		sampledID: tl.allocBehaviorID(),
		sampler:   sampler,
	}
}

// SampledID returns the id under which samples are logged.
func (b Behavior[A]) SampledID() (kevents.BehaviorID, bool) {
	return b.sampledID, b.kind == kindSampled
}

// AddBehaviors sums behaviors pointwise. Polynomials add exactly, as do
// constants.
func AddBehaviors[A Number](parts ...Behavior[A]) Behavior[A] {
	tl := parts[0].timeline()

	allPoly, allConst := true, true
	for _, p := range parts {
		allPoly = allPoly && p.kind == kindPolynomial
		allConst = allConst && p.kind == kindConstant
	}
	switch {
	case allPoly:
		sum := kmath.Poly()
		for _, p := range parts {
			sum = sum.Add(p.poly)
		}
		return Behavior[A]{tl: tl, kind: kindPolynomial, poly: sum}
	case allConst:
		var sum A
		for _, p := range parts {
			sum += p.constant
		}
		return Constant(tl, sum)
	}

	var flat []Behavior[A]
	for _, p := range parts {
		if p.kind == kindSum {
			flat = append(flat, p.parts...)
		} else {
			flat = append(flat, p)
		}
	}
	return Behavior[A]{
		tl:    tl,
		kind:  kindSum,
		parts: flat,
		add:   func(a, b A) A { return a + b },
	}
}

// Transform samples b at f(t).
func Transform[A any](b Behavior[A], f func(time.Duration) time.Duration) Behavior[A] {
	return Behavior[A]{tl: b.timeline(), kind: kindTransformed, inner: &b, transform: f}
}

// MapBehavior applies f pointwise.
func MapBehavior[A, B any](b Behavior[A], f func(A) B) Behavior[B] {
	return Continuous(b.timeline(), func(t time.Duration) B {
		return f(b.At(t))
	})
}

type untilState[A any] struct {
	switched bool
	at       time.Duration
	next     Behavior[A]
}

// Until behaves like b until e first fires, and like the fired behavior
// from the logical time of the firing on.
func Until[A any](b Behavior[A], e Event[Behavior[A]]) Behavior[A] {
	tl := b.timeline()
	id := tl.allocID()
	tl.createFoldNode(id, "until("+e.label()+")", untilState[A]{}, e.id, func(acc, v any) any {
		st := as[untilState[A]](acc, "until")
		if st.switched {
			return st
		}
		return untilState[A]{
			switched: true,
			at:       as[time.Duration](tl.fetch(tl.nowID), "now"),
			next:     as[Behavior[A]](v, "until"),
		}
	})
	return Behavior[A]{tl: tl, kind: kindUntil, until: id, inner: &b}
}

// current returns the branch of an Until behavior that is active at t.
func (b Behavior[A]) current(t time.Duration) Behavior[A] {
	tl := b.timeline()
	tl.mu.Lock()
	st := as[untilState[A]](tl.fetch(b.until), "until")
	tl.mu.Unlock()
	if st.switched && t >= st.at {
		return st.next
	}
	return *b.inner
}

type impulseEntry[A any] struct {
	frame int64
	at    time.Duration
	value A
}

// impulseLog records when an event fired, in logical time.
type impulseLog[A any] struct {
	tl      *Timeline
	entries []impulseEntry[A]
}

// visible returns the entries of frames up to the current one. Entries of
// later frames exist after a rollback until the timeline branches.
func (l *impulseLog[A]) visible() []impulseEntry[A] {
	l.tl.mu.Lock()
	defer l.tl.mu.Unlock()
	frame := l.tl.producingFrame()
	out := make([]impulseEntry[A], 0, len(l.entries))
	for _, e := range l.entries {
		if e.frame <= frame {
			out = append(out, e)
		}
	}
	return out
}

func (l *impulseLog[A]) at(t time.Duration) A {
	var zero A
	entries := l.visible()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].at == t {
			return entries[i].value
		}
	}
	return zero
}

// last returns the latest impulse with at in (from, to].
func (l *impulseLog[A]) last(from, to time.Duration) (A, bool) {
	entries := l.visible()
	for i := len(entries) - 1; i >= 0; i-- {
		if e := entries[i]; e.at > from && e.at <= to {
			return e.value, true
		}
	}
	var zero A
	return zero, false
}

// record adds the impulse of frame. The debugger notifies listeners again
// on reset, so an existing entry of the same frame is replaced.
func (l *impulseLog[A]) record(frame int64, at time.Duration, v A) {
	entry := impulseEntry[A]{frame: frame, at: at, value: v}
	if i := slices.IndexFunc(l.entries, func(e impulseEntry[A]) bool { return e.frame == frame }); i >= 0 {
		l.entries[i] = entry
		return
	}
	l.entries = append(l.entries, entry)
}

func (l *impulseLog[A]) truncate(frame int64) {
	l.entries = slices.DeleteFunc(l.entries, func(e impulseEntry[A]) bool { return e.frame > frame })
}

// Impulses is zero except at the logical times at which e fired, where it
// holds the fired value. Integrate adds impulses as instantaneous kicks.
func Impulses[A any](e Event[A]) Behavior[A] {
	tl := e.timeline()
	log := &impulseLog[A]{tl: tl}

	tl.mu.Lock()
	tl.truncateHooks = append(tl.truncateHooks, log.truncate)
	tl.mu.Unlock()

	e.Observe(func(v A) {
		log.record(tl.producingFrame(), as[time.Duration](tl.fetch(tl.nowID), "now"), v)
	})
	return Behavior[A]{tl: tl, kind: kindImpulse, impulses: log}
}
