package kevents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kfrp/kserde"
)

func testEvents() []ExternalEvent {
	return []ExternalEvent{
		{
			BehaviorsSampled: map[BehaviorID]any{},
			Action:           ExternalAction{Type: FireEvent, ID: 1, Value: 3},
		},
		{
			BehaviorsSampled: map[BehaviorID]any{7: 0.25, 9: "rng"},
			Action:           ExternalAction{Type: UpdateValue, ID: 2, Value: "hello"},
		},
		{
			BehaviorsSampled: map[BehaviorID]any{},
			Action:           ExternalAction{Type: FireEvent, ID: 4, Value: nil},
		},
		{
			BehaviorsSampled: map[BehaviorID]any{},
			Action:           ExternalAction{Type: FireEvent, ID: 0, Value: 16 * time.Millisecond},
		},
	}
}

func TestCodecLineFormat(t *testing.T) {
	codec := NewCodec(nil)

	line, err := codec.Encode(testEvents()[1])
	assert.NoError(t, err)
	assert.Equal(t,
		`{"behaviorsSampled":{"7":{"kind":"float64","payload":0.25},"9":{"kind":"string","payload":"rng"}},`+
			`"externalAction":{"type":"UpdateValue","id":2,"value":{"kind":"string","payload":"hello"}}}`,
		string(line))

	decoded, err := codec.Decode(line)
	assert.NoError(t, err)
	assert.Equal(t, testEvents()[1], decoded)
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(nil)
	for _, event := range testEvents() {
		t.Run(event.String(), func(t *testing.T) {
			line, err := codec.Encode(event)
			assert.NoError(t, err)
			decoded, err := codec.Decode(line)
			assert.NoError(t, err)
			assert.Equal(t, event, decoded)
		})
	}
}

func TestCodecErrors(t *testing.T) {
	type opaque struct{ X int }
	codec := NewCodec(kserde.NewDefaultRegistry())

	t.Run("missing codec fails on encode", func(t *testing.T) {
		_, err := codec.Encode(ExternalEvent{Action: ExternalAction{Type: FireEvent, ID: 1, Value: opaque{1}}})
		assert.True(t, errors.Is(err, kserde.ErrNoCodec))

		_, err = codec.Encode(ExternalEvent{
			BehaviorsSampled: map[BehaviorID]any{1: opaque{2}},
			Action:           ExternalAction{Type: FireEvent, ID: 1, Value: 1},
		})
		assert.True(t, errors.Is(err, kserde.ErrNoCodec))
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := codec.Encode(ExternalEvent{Action: ExternalAction{Type: "Explode", ID: 1}})
		assert.True(t, errors.Is(err, ErrUnknownAction))

		_, err = codec.Decode([]byte(`{"behaviorsSampled":{},"externalAction":{"type":"Explode","id":1,"value":{"kind":"null","payload":null}}}`))
		assert.True(t, errors.Is(err, ErrUnknownAction))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := codec.Decode([]byte(`{"behaviorsSampled":`))
		assert.True(t, errors.Is(err, ErrCorrupted))
	})

	t.Run("memory logger encodes eagerly", func(t *testing.T) {
		m := NewMemory(codec)
		err := m.Log(context.Background(), ExternalEvent{Action: ExternalAction{Type: FireEvent, ID: 1, Value: opaque{1}}})
		assert.True(t, errors.Is(err, kserde.ErrNoCodec))
		events, err := m.Events(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 0, len(events))
	})
}

func TestSummarize(t *testing.T) {
	s := Summarize(testEvents())
	assert.Equal(t, 4, s.Events)
	assert.Equal(t, 3, s.Fires)
	assert.Equal(t, 1, s.Updates)
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, 4, len(s.Nodes()))
	assert.Equal(t, 1, s.PerNode[2])
}
