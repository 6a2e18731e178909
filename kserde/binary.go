package kserde

import (
	"encoding/binary"
	"fmt"
)

// Int64Serializer writes big-endian bytes with the sign bit flipped, so the
// byte order of encoded keys equals the numeric order.
var Int64Serializer = func(data int64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(data)^(1<<63))
	return buf, nil
}

var Int64Deserializer = func(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("int64 deserialization requires exactly 8 bytes, got %d", len(data))
	}
	return int64(binary.BigEndian.Uint64(data) ^ (1 << 63)), nil
}

// Int64 is an order-preserving SerDe for int64 values, used for frame keys.
var Int64 = Serde[int64]{
	Serializer:   Int64Serializer,
	Deserializer: Int64Deserializer,
}

var String = Serde[string]{
	Serializer: func(data string) ([]byte, error) {
		return []byte(data), nil
	},
	Deserializer: func(data []byte) (string, error) {
		return string(data), nil
	},
}
