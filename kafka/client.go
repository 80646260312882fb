package kafka

import (
	"context"
)

// Consumer is the subset of a Kafka client the lane pool machinery needs.
// Offsets are committed explicitly: the checkpoint driver decides what is
// safe, the consumer only transmits it.
type Consumer interface {
	Subscribe(topics []string, rebalanceCb RebalanceCallback) error
	Poll(ctx context.Context) ([]ConsumerRecord, error)

	// CommitOffsets commits the given offsets. The offset value for each
	// partition is the last processed offset, the next fetch after a restart
	// resumes at offset+1.
	CommitOffsets(ctx context.Context, offsets map[TopicPartition]int64) error

	PausePartitions(partitions ...TopicPartition)
	ResumePartitions(partitions ...TopicPartition)
	Close()
}

type RebalanceCallback interface {
	OnAssigned(partitions []TopicPartition)
	OnRevoked(partitions []TopicPartition)
}
