package lanes

import (
	"github.com/hugolhafner/go-lanes/kafka"
)

// Item is a single decoded unit of work queued on a lane. It carries its
// partition and offset for completion tracking and the original record for
// diagnostics.
type Item[T any] struct {
	Partition kafka.TopicPartition
	Offset    int64
	Value     T
	Record    kafka.ConsumerRecord
}
