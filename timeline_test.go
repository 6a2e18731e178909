package kfrp

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kfrp/kevents"
	"github.com/birdayz/kfrp/kgraph"
	"github.com/birdayz/kfrp/kserde"
	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestTimeline(t *testing.T, opts ...Option) *Timeline {
	t.Helper()
	scope := NewScope(context.Background())
	tl := New(scope, opts...)
	t.Cleanup(func() {
		assert.NoError(t, tl.Close())
		scope.Cancel()
		assert.NoError(t, scope.Wait())
	})
	return tl
}

func TestGlitchFreedom(t *testing.T) {
	tl := newTestTimeline(t)

	x := ExternalSignal(tl, 1, "x")
	a := Map(x.Signal, func(v int) int { return v + 1 })
	b := Map(x.Signal, func(v int) int { return v * 2 })
	c := Combine2(a, b, func(a, b int) [2]int { return [2]int{a, b} })

	var seen [][2]int
	c.Observe(func(v [2]int) {
		seen = append(seen, v)
	})

	x.Set(2)
	x.Set(3)

	assert.Equal(t, [][2]int{{3, 4}, {4, 6}}, seen)
}

func TestGlitchFreedomUnevenDepth(t *testing.T) {
	tl := newTestTimeline(t)

	x := ExternalSignal(tl, 0, "x")
	deep := Map(Map(Map(x.Signal, func(v int) int { return v }), func(v int) int { return v }), func(v int) int { return v })
	c := Combine2(x.Signal, deep, func(a, b int) bool { return a == b })

	var seen []bool
	c.Observe(func(v bool) {
		seen = append(seen, v)
	})

	for i := 1; i <= 5; i++ {
		x.Set(i)
	}
	assert.Equal(t, []bool{true, true, true, true, true}, seen)
}

func TestLaziness(t *testing.T) {
	tl := newTestTimeline(t)

	x := ExternalSignal(tl, 1, "x")
	calls := 0
	y := Map(x.Signal, func(v int) int {
		calls++
		return v * 10
	})
	assert.Equal(t, 1, calls)

	x.Set(2)
	x.Set(3)
	assert.Equal(t, 1, calls)

	tl.mu.Lock()
	assert.True(t, tl.node(y.id).dirty)
	tl.mu.Unlock()

	assert.Equal(t, 30, y.Value())
	assert.Equal(t, 2, calls)

	assert.Equal(t, 30, y.Value())
	assert.Equal(t, 2, calls)
}

func TestEagerWithoutLazy(t *testing.T) {
	tl := newTestTimeline(t, WithLazy(false))

	x := ExternalSignal(tl, 1, "x")
	calls := 0
	Map(x.Signal, func(v int) int {
		calls++
		return v
	})

	x.Set(2)
	x.Set(3)
	assert.Equal(t, 3, calls)
}

func TestObservedThroughUnobservedNode(t *testing.T) {
	tl := newTestTimeline(t)

	x := ExternalSignal(tl, 1, "x")
	middle := Map(x.Signal, func(v int) int { return v + 1 })
	leaf := Map(middle, func(v int) int { return v * 2 })

	var seen []int
	leaf.Observe(func(v int) { seen = append(seen, v) })

	x.Set(5)
	assert.Equal(t, []int{12}, seen)
}

func TestObserveCancel(t *testing.T) {
	tl := newTestTimeline(t)

	x := ExternalSignal(tl, 0, "x")
	var seen []int
	cancel := x.Observe(func(v int) { seen = append(seen, v) })

	x.Set(1)
	cancel()
	x.Set(2)
	assert.Equal(t, []int{1}, seen)
}

func TestFrameCounter(t *testing.T) {
	tl := newTestTimeline(t)

	e := ExternalEvent[int](tl, "e")
	assert.Equal(t, int64(0), tl.Frame())
	e.Send(1)
	e.Send(2)
	assert.Equal(t, int64(2), tl.Frame())

	tl.Pause()
	assert.True(t, tl.Paused())
	assert.Equal(t, int64(2), tl.Frame())
	tl.Resume()
	assert.False(t, tl.Paused())
}

func TestDeferredExternalUpdate(t *testing.T) {
	tl := newTestTimeline(t)

	a := ExternalSignal(tl, 0, "a")
	b := ExternalSignal(tl, 0, "b")

	a.Observe(func(v int) {
		b.Set(v * 10)
		// Deferred: b is still the old value in this frame.
		assert.Equal(t, 0, b.Value())
	})

	var frames []int64
	b.Observe(func(int) {
		frames = append(frames, tl.producingFrame())
	})

	a.Set(1)
	assert.Equal(t, 10, b.Value())
	assert.Equal(t, int64(2), tl.Frame())
	assert.Equal(t, []int64{2}, frames)
}

func TestAsyncListener(t *testing.T) {
	tl := newTestTimeline(t)

	x := ExternalSignal(tl, 0, "x")
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen []int
	)
	wg.Add(2)
	x.ObserveAsync(func(v int) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
		wg.Done()
	})

	x.Set(1)
	x.Set(2)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, len(seen))
}

func TestConcurrentUpdates(t *testing.T) {
	tl := newTestTimeline(t)

	e := ExternalEvent[int](tl, "e")
	total := Sum(e.Event)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				e.Send(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, total.Value())
	assert.Equal(t, int64(800), tl.Frame())
}

func TestCycleDetection(t *testing.T) {
	tl := newTestTimeline(t)

	x := ExternalSignal(tl, 0, "x")
	y := Map(x.Signal, func(v int) int { return v })

	err := func() (err error) {
		defer func() {
			err, _ = recover().(error)
		}()
		tl.rewire(y.id, x.id)
		return nil
	}()
	assert.IsError(t, err, kgraph.ErrCycleDetected)
}

func TestTypeMismatchNamesNode(t *testing.T) {
	tl := newTestTimeline(t)

	x := ExternalSignal(tl, 0, "speed")
	wrong := Signal[string]{tl: tl, id: x.id}

	defer func() {
		err, ok := recover().(error)
		assert.True(t, ok)
		assert.IsError(t, err, ErrTypeMismatch)
		assert.Contains(t, err.Error(), `"speed"`)
	}()
	wrong.Value()
}

func TestZeroSignalPanics(t *testing.T) {
	defer func() {
		assert.Equal[any](t, ErrTimelineNotInitialized, recover())
	}()
	var s Signal[int]
	s.Value()
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	tl := newTestTimeline(t, WithMetrics(reg), WithTimeTravel(true))

	x := ExternalSignal(tl, 0, "x")
	y := Map(x.Signal, func(v int) int { return v })
	y.Observe(func(int) {})
	Map(x.Signal, func(v int) int { return v })

	x.Set(1)
	x.Set(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(tl.metrics.frames))
	assert.Equal(t, 2.0, testutil.ToFloat64(tl.metrics.recomputes))
	assert.Equal(t, 2.0, testutil.ToFloat64(tl.metrics.dirtyMarks))
	assert.Equal(t, 3.0, testutil.ToFloat64(tl.metrics.snapshotsRetained))

	count, err := testutil.GatherAndCount(reg, "kfrp_frames_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	stdr.SetVerbosity(1)
	t.Cleanup(func() { stdr.SetVerbosity(0) })
	logger := stdr.New(log.New(&buf, "", 0))

	tl := newTestTimeline(t, WithDebug(true), WithLogr(logger))

	x := ExternalSignal(tl, 0, "x")
	Map(x.Signal, func(v int) int { return v })
	x.Set(1)

	out := buf.String()
	assert.Contains(t, out, "mark dirty")
	assert.Contains(t, out, "frame done")
}

type failingLogger struct {
	err error
}

func (l failingLogger) Log(context.Context, kevents.ExternalEvent) error { return l.err }

func (l failingLogger) Close() error { return nil }

func TestEventLogErrors(t *testing.T) {
	t.Run("io errors are collected", func(t *testing.T) {
		boom := errors.New("disk full")
		tl := New(nil, WithEventLogger(failingLogger{err: boom}))

		x := ExternalSignal(tl, 0, "x")
		x.Set(1)
		x.Set(2)

		assert.IsError(t, tl.Err(), boom)
		assert.Equal(t, 2, x.Value())
		assert.True(t, strings.Contains(tl.Err().Error(), "log frame 2"))

		err := tl.Close()
		assert.IsError(t, err, boom)
		assert.Contains(t, err.Error(), "log frame 1")
	})

	t.Run("missing codec panics", func(t *testing.T) {
		type point struct{ X, Y int }
		tl := newTestTimeline(t, WithEventLogger(kevents.NewMemory(kevents.NewCodec(nil))))
		e := ExternalEvent[point](tl, "p")

		defer func() {
			err, ok := recover().(error)
			assert.True(t, ok)
			assert.IsError(t, err, kserde.ErrNoCodec)
		}()
		e.Send(point{1, 2})
	})
}

func TestUpdateAfterClose(t *testing.T) {
	tl := New(nil)
	x := ExternalSignal(tl, 0, "x")
	assert.NoError(t, tl.Close())

	defer func() {
		assert.Equal[any](t, ErrClosed, recover())
	}()
	x.Set(1)
}

func TestTick(t *testing.T) {
	tl := newTestTimeline(t)

	assert.Equal(t, time.Duration(0), tl.Now())
	tl.Tick(time.Second)
	tl.Tick(500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, tl.Now())
	assert.Equal(t, 1500*time.Millisecond, tl.Time().Value())
}

func TestWallClock(t *testing.T) {
	tl := newTestTimeline(t, WithClock(time.Millisecond))

	deadline := time.Now().Add(5 * time.Second)
	for tl.Now() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("clock did not tick")
		}
		time.Sleep(time.Millisecond)
	}

	tl.Pause()
	frame := tl.Frame()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frame, tl.Frame())
}
