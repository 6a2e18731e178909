// Package kevents records the external inputs of a timeline.
//
// Every externally visible frame is caused by exactly one ExternalAction: an
// event fired or an input signal updated. Together with the values of the
// non-deterministic behaviors sampled while the frame was computed, the
// action is enough to replay the frame. A sequence of ExternalEvent is
// therefore a complete, replayable trace of a run.
//
// Loggers persist that sequence. All of them share one line encoding (see
// Codec), so a trace written by one backend can be replayed from another.
package kevents

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/birdayz/kfrp/kgraph"
)

var (
	ErrClosed        = errors.New("logger is closed")
	ErrCorrupted     = errors.New("event entry corrupted")
	ErrUnknownAction = errors.New("unknown action type")
)

// BehaviorID identifies a sampled (non-deterministic) behavior.
type BehaviorID int64

// ActionType tells how an external node was mutated.
type ActionType string

const (
	FireEvent   ActionType = "FireEvent"
	UpdateValue ActionType = "UpdateValue"
)

func (a ActionType) Validate() error {
	switch a {
	case FireEvent, UpdateValue:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, string(a))
}

// ExternalAction is one mutation of an external node.
type ExternalAction struct {
	Type  ActionType
	ID    kgraph.NodeID
	Value any
}

// ExternalEvent is one logged frame.
type ExternalEvent struct {
	BehaviorsSampled map[BehaviorID]any
	Action           ExternalAction
}

func (e ExternalEvent) String() string {
	return fmt.Sprintf("%s(%d, %v) samples=%d", e.Action.Type, e.Action.ID, e.Action.Value, len(e.BehaviorsSampled))
}

// Stats summarizes a trace.
type Stats struct {
	Events  int
	Fires   int
	Updates int
	Samples int
	PerNode map[kgraph.NodeID]int
}

// Nodes returns the ids that appear in the trace, ascending.
func (s Stats) Nodes() []kgraph.NodeID {
	return slices.Sorted(maps.Keys(s.PerNode))
}

func Summarize(events []ExternalEvent) Stats {
	s := Stats{PerNode: make(map[kgraph.NodeID]int)}
	for _, e := range events {
		s.Events++
		switch e.Action.Type {
		case FireEvent:
			s.Fires++
		case UpdateValue:
			s.Updates++
		}
		s.Samples += len(e.BehaviorsSampled)
		s.PerNode[e.Action.ID]++
	}
	return s
}
