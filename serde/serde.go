// Package serde provides value deserialisers usable as lane-pool decoders.
package serde

type Deserialiser[T any] interface {
	Deserialise(topic string, data []byte) (T, error)
}

type DeserialiserFunc[T any] func(topic string, data []byte) (T, error)

func (f DeserialiserFunc[T]) Deserialise(topic string, data []byte) (T, error) {
	return f(topic, data)
}
