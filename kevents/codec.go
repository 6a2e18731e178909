package kevents

import (
	"encoding/json"
	"fmt"

	"github.com/birdayz/kfrp/kgraph"
	"github.com/birdayz/kfrp/kserde"
)

type wireAction struct {
	Type  ActionType    `json:"type"`
	ID    kgraph.NodeID `json:"id"`
	Value kserde.Tagged `json:"value"`
}

type wireEvent struct {
	BehaviorsSampled map[BehaviorID]kserde.Tagged `json:"behaviorsSampled"`
	ExternalAction   wireAction                   `json:"externalAction"`
}

// Codec converts events to and from single JSON lines. Values are tagged
// with the kind registered in the Registry.
type Codec struct {
	Registry *kserde.Registry
}

func NewCodec(registry *kserde.Registry) *Codec {
	if registry == nil {
		registry = kserde.NewDefaultRegistry()
	}
	return &Codec{Registry: registry}
}

// Encode returns the line for e, without a trailing newline.
func (c *Codec) Encode(e ExternalEvent) ([]byte, error) {
	if err := e.Action.Type.Validate(); err != nil {
		return nil, err
	}

	value, err := c.Registry.Encode(e.Action.Value)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", e.Action.ID, err)
	}

	w := wireEvent{
		BehaviorsSampled: make(map[BehaviorID]kserde.Tagged, len(e.BehaviorsSampled)),
		ExternalAction: wireAction{
			Type:  e.Action.Type,
			ID:    e.Action.ID,
			Value: value,
		},
	}
	for id, sample := range e.BehaviorsSampled {
		tagged, err := c.Registry.Encode(sample)
		if err != nil {
			return nil, fmt.Errorf("behavior %d: %w", id, err)
		}
		w.BehaviorsSampled[id] = tagged
	}

	return json.Marshal(w)
}

func (c *Codec) Decode(line []byte) (ExternalEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return ExternalEvent{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if err := w.ExternalAction.Type.Validate(); err != nil {
		return ExternalEvent{}, err
	}

	value, err := c.Registry.Decode(w.ExternalAction.Value)
	if err != nil {
		return ExternalEvent{}, fmt.Errorf("node %d: %w", w.ExternalAction.ID, err)
	}

	e := ExternalEvent{
		BehaviorsSampled: make(map[BehaviorID]any, len(w.BehaviorsSampled)),
		Action: ExternalAction{
			Type:  w.ExternalAction.Type,
			ID:    w.ExternalAction.ID,
			Value: value,
		},
	}
	for id, tagged := range w.BehaviorsSampled {
		sample, err := c.Registry.Decode(tagged)
		if err != nil {
			return ExternalEvent{}, fmt.Errorf("behavior %d: %w", id, err)
		}
		e.BehaviorsSampled[id] = sample
	}
	return e, nil
}
