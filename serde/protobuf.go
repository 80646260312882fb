package serde

import (
	"google.golang.org/protobuf/proto"
)

type protobufDeserialiser[T proto.Message] struct{}

// Protobuf returns a Deserialiser for a generated protobuf message type.
func Protobuf[T proto.Message]() Deserialiser[T] {
	return protobufDeserialiser[T]{}
}

func (s protobufDeserialiser[T]) Deserialise(_ string, data []byte) (T, error) {
	var zero T
	msg := zero.ProtoReflect().New().Interface()
	if err := proto.Unmarshal(data, msg); err != nil {
		return zero, err
	}
	return msg.(T), nil
}
