package kserde

import (
	"encoding/json"
)

func JSONSerializer[T any]() Serializer[T] {
	return func(t T) ([]byte, error) {
		return json.Marshal(t)
	}
}

func JSONDeserializer[T any]() Deserializer[T] {
	return func(b []byte) (T, error) {
		var deserialized T
		if err := json.Unmarshal(b, &deserialized); err != nil {
			return *new(T), err
		}
		return deserialized, nil
	}
}

// JSON is the default payload codec of the Registry.
func JSON[T any]() Serde[T] {
	return Serde[T]{
		Serializer:   JSONSerializer[T](),
		Deserializer: JSONDeserializer[T](),
	}
}
