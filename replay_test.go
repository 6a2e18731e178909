package kfrp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kfrp/kevents"
	"golang.org/x/time/rate"
)

func newMemoryLog() *kevents.Memory {
	return kevents.NewMemory(kevents.NewCodec(nil))
}

func logged(t *testing.T, log kevents.Source) []kevents.ExternalEvent {
	t.Helper()
	events, err := log.Events(context.Background())
	assert.NoError(t, err)
	return events
}

// sensorProgram builds a small program reading a non-deterministic sensor.
func sensorProgram(tl *Timeline, sensor func() float64) (Emitter[float64], Signal[float64]) {
	reading := Sampled(tl, sensor)
	input := ExternalEvent[float64](tl, "input")
	adjusted := MapEventWith(input.Event, func(sc *SampleScope, v float64) float64 {
		return v * SampleValue(sc, reading)
	})
	return input, Sum(adjusted)
}

func TestReplayDeterminism(t *testing.T) {
	log := newMemoryLog()
	tl := newTestTimeline(t, WithEventLogger(log))

	n := 0.0
	input, total := sensorProgram(tl, func() float64 {
		n++
		return n
	})
	input.Send(1)
	input.Send(10)
	tl.Tick(time.Second)
	input.Send(100)
	want := total.Value()
	assert.Equal(t, 1*1+10*2+100*3.0, want)

	events := logged(t, log)
	assert.Equal(t, 4, len(events))
	assert.Equal(t, kevents.FireEvent, events[0].Action.Type)
	assert.Equal(t, 1, len(events[0].BehaviorsSampled))

	replayed := newTestTimeline(t)
	replayInput, replayTotal := sensorProgram(replayed, func() float64 {
		t.Fatal("sensor read during replay")
		return 0
	})
	assert.Equal(t, input.ID(), replayInput.ID())

	assert.NoError(t, replayed.Replay(context.Background(), events))
	assert.Equal(t, want, replayTotal.Value())
	assert.Equal(t, time.Second, replayed.Now())
	assert.Equal(t, int64(4), replayed.Frame())
}

func TestReplayFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	codec := kevents.NewCodec(nil)
	file, err := kevents.OpenFile(path, codec)
	assert.NoError(t, err)

	tl := New(nil, WithEventLogger(file))
	x := ExternalSignal(tl, int64(0), "x")
	e := ExternalEvent[string](tl, "e")
	x.Set(5)
	e.Send("hello")
	x.Update(func(v int64) int64 { return v * 2 })
	assert.NoError(t, tl.Close())

	events, err := kevents.ReadFile(path, codec)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(events))

	replayed := newTestTimeline(t)
	rx := ExternalSignal(replayed, int64(0), "x")
	re := ExternalEvent[string](replayed, "e")
	last := Hold(re.Event, "")

	assert.NoError(t, replayed.Replay(context.Background(), events, ReplayRate(rate.Inf)))
	assert.Equal(t, int64(10), rx.Value())
	assert.Equal(t, "hello", last.Value())
}

func TestReplayValidation(t *testing.T) {
	tl := newTestTimeline(t)
	x := ExternalSignal(tl, 0, "x")

	err := tl.Replay(context.Background(), []kevents.ExternalEvent{{
		Action: kevents.ExternalAction{Type: kevents.UpdateValue, ID: 999, Value: 1},
	}})
	assert.IsError(t, err, ErrUnknownNode)

	err = tl.Replay(context.Background(), []kevents.ExternalEvent{{
		Action: kevents.ExternalAction{Type: kevents.UpdateValue, ID: x.ID(), Value: "one"},
	}})
	assert.IsError(t, err, ErrTypeMismatch)

	err = tl.Replay(context.Background(), []kevents.ExternalEvent{{
		Action: kevents.ExternalAction{Type: kevents.FireEvent, ID: x.ID(), Value: 1},
	}})
	assert.IsError(t, err, ErrTypeMismatch)

	assert.Equal(t, int64(0), tl.Frame())
}

func TestReplayCancelled(t *testing.T) {
	tl := newTestTimeline(t)
	x := ExternalSignal(tl, 0, "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tl.Replay(ctx, []kevents.ExternalEvent{{
		Action: kevents.ExternalAction{Type: kevents.UpdateValue, ID: x.ID(), Value: 1},
	}}, ReplayRate(rate.Every(time.Hour)))
	assert.IsError(t, err, context.Canceled)
}

func TestExternalNodes(t *testing.T) {
	tl := newTestTimeline(t)
	ExternalSignal(tl, 1.5, "speed")
	ExternalEvent[string](tl, "name")

	nodes := tl.ExternalNodes()
	assert.Equal(t, 3, len(nodes))
	assert.Equal(t, "clock", nodes[0].Label)
	assert.Equal(t, "duration", nodes[0].Kind)
	assert.Equal(t, kevents.UpdateValue, nodes[1].Action)
	assert.Equal(t, "float64", nodes[1].Kind)
	assert.Equal(t, kevents.FireEvent, nodes[2].Action)
}
