// Package kproto registers protobuf messages as loggable values. Payloads are
// written with protojson so event-log lines stay human readable.
package kproto

import (
	"github.com/birdayz/kfrp/kserde"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

var marshalOptions = protojson.MarshalOptions{UseProtoNames: true}

var unmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

// Serializer returns a protojson serializer for any proto.Message type.
//
// Example:
//
//	serializer := kproto.Serializer[*pb.User]()
func Serializer[T proto.Message]() kserde.Serializer[T] {
	return func(v T) ([]byte, error) {
		return marshalOptions.Marshal(v)
	}
}

// Deserializer returns a protojson deserializer. The newFn parameter creates
// a new instance of the message type.
func Deserializer[T proto.Message](newFn func() T) kserde.Deserializer[T] {
	return func(data []byte) (T, error) {
		msg := newFn()
		if err := unmarshalOptions.Unmarshal(data, msg); err != nil {
			var zero T
			return zero, err
		}
		return msg, nil
	}
}

// DeserializerFor is Deserializer with the instance created via reflection.
func DeserializerFor[T proto.Message]() kserde.Deserializer[T] {
	var zero T
	return Deserializer(func() T {
		return zero.ProtoReflect().New().Interface().(T)
	})
}

// Serde combines Serializer and DeserializerFor.
func Serde[T proto.Message]() kserde.Serde[T] {
	return kserde.Serde[T]{
		Serializer:   Serializer[T](),
		Deserializer: DeserializerFor[T](),
	}
}

// Kind returns the registry kind of T: its fully qualified message name.
func Kind[T proto.Message]() string {
	var zero T
	return string(zero.ProtoReflect().Descriptor().FullName())
}

// Register adds T to the registry under its message name.
//
// Example:
//
//	kproto.Register[*pb.User](registry)
func Register[T proto.Message](r *kserde.Registry) error {
	return kserde.Register(r, Kind[T](), Serde[T]())
}
