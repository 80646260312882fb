package mockkafka

import (
	"context"
	"sync"
	"time"

	"github.com/hugolhafner/go-lanes/kafka"
)

var _ kafka.Consumer = (*Consumer)(nil)

// Consumer is an in-memory kafka.Consumer for tests. Records are added per
// partition and served round-robin by Poll; committed offsets are recorded
// for assertions.
type Consumer struct {
	mu sync.Mutex

	recordQueues   map[kafka.TopicPartition][]kafka.ConsumerRecord
	queuePositions map[kafka.TopicPartition]int

	committedOffsets map[kafka.TopicPartition]int64

	subscriptions      []string
	rebalanceCb        kafka.RebalanceCallback
	assignedPartitions []kafka.TopicPartition
	paused             map[kafka.TopicPartition]struct{}

	maxPollRecords int
	pollDelay      time.Duration

	pollErr   func() error
	commitErr func() error

	closed     bool
	subscribed bool
}

func NewConsumer(opts ...Option) *Consumer {
	c := &Consumer{
		recordQueues:     make(map[kafka.TopicPartition][]kafka.ConsumerRecord),
		queuePositions:   make(map[kafka.TopicPartition]int),
		committedOffsets: make(map[kafka.TopicPartition]int64),
		paused:           make(map[kafka.TopicPartition]struct{}),
		maxPollRecords:   10,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// AddRecords appends records to a partition's queue, assigning sequential
// offsets after whatever is already queued.
func (c *Consumer) AddRecords(topic string, partition int32, records ...kafka.ConsumerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	base := int64(len(c.recordQueues[tp]))
	for i, r := range records {
		r.Topic = topic
		r.Partition = partition
		r.Offset = base + int64(i)
		c.recordQueues[tp] = append(c.recordQueues[tp], r)
	}
}

// Subscribe auto-assigns every partition that has records for the subscribed
// topics and fires the rebalance callback, mimicking the initial group join.
func (c *Consumer) Subscribe(topics []string, rebalanceCb kafka.RebalanceCallback) error {
	c.mu.Lock()

	if c.subscribed {
		c.mu.Unlock()
		return nil
	}

	c.subscriptions = topics
	c.rebalanceCb = rebalanceCb
	c.subscribed = true

	var partitions []kafka.TopicPartition
	for tp := range c.recordQueues {
		for _, topic := range topics {
			if tp.Topic == topic {
				partitions = append(partitions, tp)
				break
			}
		}
	}
	c.assignedPartitions = partitions
	c.mu.Unlock()

	if len(partitions) > 0 && rebalanceCb != nil {
		rebalanceCb.OnAssigned(partitions)
	}

	return nil
}

// Poll serves up to maxPollRecords records round-robin across assigned,
// unpaused partitions.
func (c *Consumer) Poll(ctx context.Context) ([]kafka.ConsumerRecord, error) {
	if c.pollDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollDelay):
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pollErr != nil {
		if err := c.pollErr(); err != nil {
			return nil, err
		}
	}

	var records []kafka.ConsumerRecord
	for len(records) < c.maxPollRecords {
		progressed := false
		for _, tp := range c.assignedPartitions {
			if len(records) >= c.maxPollRecords {
				break
			}
			if _, isPaused := c.paused[tp]; isPaused {
				continue
			}

			pos := c.queuePositions[tp]
			queue := c.recordQueues[tp]
			if pos >= len(queue) {
				continue
			}

			records = append(records, queue[pos])
			c.queuePositions[tp] = pos + 1
			progressed = true
		}
		if !progressed {
			break
		}
	}

	return records, nil
}

func (c *Consumer) CommitOffsets(ctx context.Context, offsets map[kafka.TopicPartition]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.commitErr != nil {
		if err := c.commitErr(); err != nil {
			return err
		}
	}

	for tp, offset := range offsets {
		c.committedOffsets[tp] = offset
	}
	return nil
}

func (c *Consumer) PausePartitions(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tp := range partitions {
		c.paused[tp] = struct{}{}
	}
}

func (c *Consumer) ResumePartitions(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tp := range partitions {
		delete(c.paused, tp)
	}
}

func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// CommittedOffset returns the last offset committed for a partition.
func (c *Consumer) CommittedOffset(tp kafka.TopicPartition) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	offset, ok := c.committedOffsets[tp]
	return offset, ok
}

// CommittedOffsets returns a copy of all committed offsets.
func (c *Consumer) CommittedOffsets() map[kafka.TopicPartition]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[kafka.TopicPartition]int64, len(c.committedOffsets))
	for tp, offset := range c.committedOffsets {
		out[tp] = offset
	}
	return out
}

// PausedPartitions returns the currently paused partitions.
func (c *Consumer) PausedPartitions() []kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]kafka.TopicPartition, 0, len(c.paused))
	for tp := range c.paused {
		out = append(out, tp)
	}
	return out
}

// Revoke removes partitions from the assignment and fires the rebalance
// callback, simulating a rebalance away from this consumer.
func (c *Consumer) Revoke(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	remaining := c.assignedPartitions[:0]
	for _, tp := range c.assignedPartitions {
		revoked := false
		for _, r := range partitions {
			if tp == r {
				revoked = true
				break
			}
		}
		if !revoked {
			remaining = append(remaining, tp)
		}
	}
	c.assignedPartitions = remaining
	cb := c.rebalanceCb
	c.mu.Unlock()

	if cb != nil {
		cb.OnRevoked(partitions)
	}
}

// Assign adds partitions to the assignment and fires the rebalance callback.
func (c *Consumer) Assign(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	c.assignedPartitions = append(c.assignedPartitions, partitions...)
	cb := c.rebalanceCb
	c.mu.Unlock()

	if cb != nil {
		cb.OnAssigned(partitions)
	}
}
