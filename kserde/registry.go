package kserde

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

var (
	// ErrNoCodec is returned when a value's type (or a tagged kind) has no
	// registered codec.
	ErrNoCodec       = errors.New("no codec registered")
	ErrDuplicateKind = errors.New("kind already registered")
	ErrInvalidJSON   = errors.New("payload is not valid JSON")
)

// KindNull tags a nil value.
const KindNull = "null"

// Tagged is the format-agnostic encoding of one value.
type Tagged struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type codec struct {
	kind   string
	typ    reflect.Type
	encode func(any) ([]byte, error)
	decode func([]byte) (any, error)
}

// Registry maps Go types to kind names and payload codecs. Payloads must be
// JSON documents. A Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byKind map[string]codec
	byType map[reflect.Type]codec
}

func NewRegistry() *Registry {
	return &Registry{
		byKind: make(map[string]codec),
		byType: make(map[reflect.Type]codec),
	}
}

// NewDefaultRegistry returns a registry with codecs for the basic scalar
// types: bool, int, int32, int64, float64, string, time.Duration.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	MustRegister(r, "bool", JSON[bool]())
	MustRegister(r, "int", JSON[int]())
	MustRegister(r, "int32", JSON[int32]())
	MustRegister(r, "int64", JSON[int64]())
	MustRegister(r, "float64", JSON[float64]())
	MustRegister(r, "string", JSON[string]())
	MustRegister(r, "duration", JSON[time.Duration]())
	return r
}

// Register adds a codec for T under kind.
func Register[T any](r *Registry, kind string, serde Serde[T]) error {
	if kind == "" || kind == KindNull {
		return fmt.Errorf("invalid kind %q", kind)
	}
	typ := reflect.TypeFor[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKind[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind)
	}
	if existing, exists := r.byType[typ]; exists {
		return fmt.Errorf("%w: type %s is registered as %q", ErrDuplicateKind, typ, existing.kind)
	}

	c := codec{
		kind: kind,
		typ:  typ,
		encode: func(v any) ([]byte, error) {
			return serde.Serializer(v.(T))
		},
		decode: func(b []byte) (any, error) {
			return serde.Deserializer(b)
		},
	}
	r.byKind[kind] = c
	r.byType[typ] = c
	return nil
}

func MustRegister[T any](r *Registry, kind string, serde Serde[T]) {
	if err := Register(r, kind, serde); err != nil {
		panic(err)
	}
}

// KindOf returns the kind registered for typ.
func (r *Registry) KindOf(typ reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byType[typ]
	return c.kind, ok
}

// TypeOf returns the Go type registered for kind.
func (r *Registry) TypeOf(kind string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKind[kind]
	return c.typ, ok
}

// Encode tags v with its kind and serializes it.
func (r *Registry) Encode(v any) (Tagged, error) {
	if v == nil {
		return Tagged{Kind: KindNull, Payload: json.RawMessage("null")}, nil
	}

	r.mu.RLock()
	c, ok := r.byType[reflect.TypeOf(v)]
	r.mu.RUnlock()
	if !ok {
		return Tagged{}, fmt.Errorf("%w: type %T", ErrNoCodec, v)
	}

	payload, err := c.encode(v)
	if err != nil {
		return Tagged{}, fmt.Errorf("encode %s: %w", c.kind, err)
	}
	if !json.Valid(payload) {
		return Tagged{}, fmt.Errorf("encode %s: %w", c.kind, ErrInvalidJSON)
	}
	return Tagged{Kind: c.kind, Payload: payload}, nil
}

// Decode resolves the kind of t and deserializes its payload.
func (r *Registry) Decode(t Tagged) (any, error) {
	if t.Kind == KindNull {
		return nil, nil
	}

	r.mu.RLock()
	c, ok := r.byKind[t.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: kind %q", ErrNoCodec, t.Kind)
	}

	v, err := c.decode(t.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.Kind, err)
	}
	return v, nil
}

// Kinds returns all registered kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	return kinds
}
