package lanes

import (
	"github.com/hugolhafner/go-lanes/kafka"
	"github.com/hugolhafner/go-lanes/serde"
)

// DecoderFromDeserialiser builds a Decoder from a serde Deserialiser.
// Records with a nil value (tombstones) are skipped, their offsets still
// count toward checkpoint progress.
func DecoderFromDeserialiser[T any](d serde.Deserialiser[T]) Decoder[T] {
	return func(rec kafka.ConsumerRecord) (*T, error) {
		if rec.Value == nil {
			return nil, nil
		}

		value, err := d.Deserialise(rec.Topic, rec.Value)
		if err != nil {
			return nil, err
		}
		return &value, nil
	}
}
