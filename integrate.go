package kfrp

import (
	"fmt"
	"slices"
	"time"

	"github.com/birdayz/kfrp/kmath"
)

type integralEntry struct {
	frame int64
	at    time.Duration
	value float64
}

// integrator memoizes the integral of a behavior from start. Sampling times
// must increase; a time that was already sampled is served from the cache.
type integrator struct {
	tl    *Timeline
	start time.Duration

	exact    bool
	integral kmath.Polynomial

	smooth   func(t time.Duration) float64
	impulses func(from, to time.Duration) float64

	entries []integralEntry
}

func (ig *integrator) at(t time.Duration) float64 {
	tl := ig.tl
	tl.mu.Lock()
	defer tl.mu.Unlock()

	frame := ig.forget()

	// An impulse can land on the latest sampled time in a later frame, so
	// that entry only holds for its own frame.
	if n := len(ig.entries); n > 0 && !ig.exact {
		if e := ig.entries[n-1]; e.at == t && e.frame < frame {
			ig.entries = ig.entries[:n-1]
		}
	}

	last := ig.last()
	if t == last.at {
		return last.value
	}
	if t < last.at {
		panic(fmt.Errorf("%w: sampled at %v after %v", ErrNonMonotonicSample, t, last.at))
	}

	v := ig.extend(last, t)
	ig.entries = append(ig.entries, integralEntry{frame: frame, at: t, value: v})
	return v
}

// within samples the integral as the integrand of an enclosing integrator.
// A time before the latest sample is computed from the closest earlier
// sample and not cached.
func (ig *integrator) within(t time.Duration) float64 {
	tl := ig.tl
	tl.mu.Lock()
	defer tl.mu.Unlock()

	ig.forget()
	if t >= ig.last().at {
		return ig.at(t)
	}

	from := integralEntry{at: ig.start}
	for _, e := range ig.entries {
		if e.at > t {
			break
		}
		from = e
	}
	if t == from.at {
		return from.value
	}
	return ig.extend(from, t)
}

// forget drops entries computed in frames after the current one, which
// exist after a rollback, and returns the current frame.
func (ig *integrator) forget() int64 {
	frame := ig.tl.producingFrame()
	ig.entries = slices.DeleteFunc(ig.entries, func(e integralEntry) bool { return e.frame > frame })
	return frame
}

func (ig *integrator) last() integralEntry {
	if n := len(ig.entries); n > 0 {
		return ig.entries[n-1]
	}
	return integralEntry{at: ig.start}
}

// extend integrates from a known sample up to t.
func (ig *integrator) extend(from integralEntry, t time.Duration) float64 {
	if ig.exact {
		return ig.integral.Eval(t.Seconds()) - ig.integral.Eval(ig.start.Seconds())
	}

	lo, hi := min(from.at, t), max(from.at, t)
	dt := hi - lo
	n := kmath.Subintervals(float64(dt) / float64(time.Millisecond))
	area := kmath.Simpson(func(x float64) float64 {
		// Converting back to nanoseconds must not leave [lo, hi].
		return ig.smooth(min(max(seconds(x), lo), hi))
	}, from.at.Seconds(), t.Seconds(), n)
	return from.value + area + ig.impulses(from.at, t)
}

func seconds(x float64) time.Duration {
	return time.Duration(x * float64(time.Second))
}

// Integrate returns the integral of b over logical time in seconds, starting
// with 0 at the current time. Polynomials and constants integrate exactly;
// everything else uses the composite Simpson rule plus the impulses of b.
// Sample times must not decrease (ErrNonMonotonicSample). An integral used
// as the integrand of another integral is evaluated in ascending order by
// the outer one and may be sampled before it is read directly.
func Integrate(b Behavior[float64]) Behavior[float64] {
	tl := b.timeline()
	ig := &integrator{
		tl:    tl,
		start: tl.Now(),
		smooth: func(t time.Duration) float64 {
			return smoothAt(b, t)
		},
		impulses: func(from, to time.Duration) float64 {
			return measureImpulses(b, from, to)
		},
	}
	switch b.kind {
	case kindPolynomial:
		ig.exact = true
		ig.integral = b.poly.Integral()
	case kindConstant:
		ig.exact = true
		ig.integral = kmath.Poly(0, b.constant)
	}
	return Behavior[float64]{tl: tl, kind: kindIntegrated, integral: ig}
}

// smoothAt samples b without its impulses.
func smoothAt(b Behavior[float64], t time.Duration) float64 {
	switch b.kind {
	case kindImpulse:
		return 0
	case kindSum:
		var sum float64
		for _, p := range b.parts {
			sum += smoothAt(p, t)
		}
		return sum
	case kindUntil:
		return smoothAt(b.current(t), t)
	case kindTransformed:
		return smoothAt(*b.inner, b.transform(t))
	case kindIntegrated:
		return b.integral.within(t)
	}
	return b.At(t)
}

// measureImpulses is the last impulse of b in (from, to], summed over the
// parts of a sum.
func measureImpulses(b Behavior[float64], from, to time.Duration) float64 {
	switch b.kind {
	case kindImpulse:
		v, _ := b.impulses.last(from, to)
		return v
	case kindSum:
		var sum float64
		for _, p := range b.parts {
			sum += measureImpulses(p, from, to)
		}
		return sum
	case kindUntil:
		return measureImpulses(b.current(to), from, to)
	case kindTransformed:
		return measureImpulses(*b.inner, b.transform(from), b.transform(to))
	}
	return 0
}
