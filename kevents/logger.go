package kevents

import (
	"context"
	"slices"
	"sync"
)

// Logger persists the external events of a timeline, one per frame.
type Logger interface {
	// Log appends one event. Implementations encode the event before
	// returning, so a value without a codec fails here and not on replay.
	Log(ctx context.Context, event ExternalEvent) error
	Close() error
}

// Source is a Logger whose events can be read back in log order.
type Source interface {
	Events(ctx context.Context) ([]ExternalEvent, error)
}

// NoOp discards all events.
type NoOp struct{}

func (NoOp) Log(context.Context, ExternalEvent) error { return nil }

func (NoOp) Close() error { return nil }

// Memory keeps events in memory. With a non-nil codec every event is encoded
// on Log to surface missing codecs.
type Memory struct {
	codec *Codec

	mu     sync.Mutex
	events []ExternalEvent
}

func NewMemory(codec *Codec) *Memory {
	return &Memory{codec: codec}
}

func (m *Memory) Log(_ context.Context, event ExternalEvent) error {
	if m.codec != nil {
		if _, err := m.codec.Encode(event); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) Events(context.Context) ([]ExternalEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events), nil
}

// Reset drops all recorded events.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *Memory) Close() error { return nil }

var (
	_ Logger = NoOp{}
	_ Logger = (*Memory)(nil)
	_ Source = (*Memory)(nil)
)
