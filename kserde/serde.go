// Package kserde converts values to and from bytes.
//
// Serde pairs are plain functions. A Registry maps Go types to stable kind
// names so that values of arbitrary type can be written to an event log as a
// {kind, payload} pair and read back without a closed set of types.
package kserde

type Serde[T any] struct {
	Serializer   Serializer[T]
	Deserializer Deserializer[T]
}

type Serializer[T any] func(T) ([]byte, error)

type Deserializer[T any] func([]byte) (T, error)
