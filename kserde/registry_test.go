package kserde

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

type celsius float64

func TestRegistryDefaults(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		name  string
		value any
		kind  string
	}{
		{"bool", true, "bool"},
		{"int", 7, "int"},
		{"int64", int64(-9), "int64"},
		{"float64", 2.5, "float64"},
		{"string", "fizz", "string"},
		{"duration", 1500 * time.Millisecond, "duration"},
		{"nil", nil, KindNull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tagged, err := r.Encode(tt.value)
			assert.NoError(t, err)
			assert.Equal(t, tt.kind, tagged.Kind)

			decoded, err := r.Decode(tagged)
			assert.NoError(t, err)
			assert.Equal(t, tt.value, decoded)
		})
	}
}

func TestRegistryCustomKind(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, Register(r, "celsius", JSON[celsius]()))

	tagged, err := r.Encode(celsius(21.5))
	assert.NoError(t, err)
	assert.Equal(t, Tagged{Kind: "celsius", Payload: []byte("21.5")}, tagged)

	kind, ok := r.KindOf(reflect.TypeFor[celsius]())
	assert.True(t, ok)
	assert.Equal(t, "celsius", kind)

	typ, ok := r.TypeOf("celsius")
	assert.True(t, ok)
	assert.Equal(t, reflect.TypeFor[celsius](), typ)
}

func TestRegistryErrors(t *testing.T) {
	r := NewDefaultRegistry()

	t.Run("unregistered type", func(t *testing.T) {
		_, err := r.Encode(celsius(1))
		assert.True(t, errors.Is(err, ErrNoCodec))
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := r.Decode(Tagged{Kind: "kelvin", Payload: []byte("1")})
		assert.True(t, errors.Is(err, ErrNoCodec))
	})

	t.Run("duplicate kind", func(t *testing.T) {
		err := Register(r, "int", JSON[celsius]())
		assert.True(t, errors.Is(err, ErrDuplicateKind))
	})

	t.Run("duplicate type", func(t *testing.T) {
		err := Register(r, "integer", JSON[int]())
		assert.True(t, errors.Is(err, ErrDuplicateKind))
	})

	t.Run("payload must be json", func(t *testing.T) {
		raw := NewRegistry()
		assert.NoError(t, Register(raw, "raw", String))
		_, err := raw.Encode("not json")
		assert.True(t, errors.Is(err, ErrInvalidJSON))
	})

	t.Run("corrupt payload", func(t *testing.T) {
		_, err := r.Decode(Tagged{Kind: "int", Payload: []byte(`"x"`)})
		assert.Error(t, err)
	})
}
