package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-lanes/logger"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

var _ Consumer = (*KgoConsumer)(nil)

type KgoConsumerConfig struct {
	BootstrapServers  []string
	GroupID           string
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxPollRecords    int
	PollTimeout       time.Duration

	Logger logger.Logger
}

func defaultConfig() KgoConsumerConfig {
	return KgoConsumerConfig{
		BootstrapServers:  []string{"localhost:9092"},
		GroupID:           "default-group",
		SessionTimeout:    45 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		PollTimeout:       3 * time.Second,
		MaxPollRecords:    500,
		Logger:            logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoConsumerConfig)

func WithBootstrapServers(servers []string) KgoOption {
	return func(cfg *KgoConsumerConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithGroupID(id string) KgoOption {
	return func(cfg *KgoConsumerConfig) {
		cfg.GroupID = id
	}
}

func WithPollTimeout(d time.Duration) KgoOption {
	return func(cfg *KgoConsumerConfig) {
		cfg.PollTimeout = d
	}
}

func WithMaxPollRecords(n int) KgoOption {
	return func(cfg *KgoConsumerConfig) {
		cfg.MaxPollRecords = n
	}
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoConsumerConfig) {
		cfg.Logger = l.With("client", "kgo")
	}
}

// KgoConsumer adapts a franz-go client to the Consumer interface.
// Auto-commit is disabled: offsets reach the broker only through
// CommitOffsets, which the checkpoint driver calls with offsets the
// ledger has proven safe.
type KgoConsumer struct {
	client *kgo.Client
	config KgoConsumerConfig

	mu          sync.RWMutex
	subscribed  bool
	rebalanceCb RebalanceCallback
	topics      []string

	logger logger.Logger
}

func NewKgoConsumer(opts ...KgoOption) (*KgoConsumer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	kc := &KgoConsumer{config: cfg, logger: cfg.Logger}

	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.OnPartitionsAssigned(kc.onAssigned),
		kgo.OnPartitionsRevoked(kc.onRevoked),
		kgo.WithLogger(newKgoLogger(kc.logger)),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.HeartbeatInterval(cfg.HeartbeatInterval),
		kgo.DisableAutoCommit(),
	}

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	kc.client = client

	return kc, nil
}

func (k *KgoConsumer) onAssigned(ctx context.Context, c *kgo.Client, assigned map[string][]int32) {
	k.mu.RLock()
	cb := k.rebalanceCb
	k.mu.RUnlock()

	if cb == nil {
		return
	}

	cb.OnAssigned(mapToTopicPartitions(assigned))
}

func (k *KgoConsumer) onRevoked(ctx context.Context, c *kgo.Client, revoked map[string][]int32) {
	k.mu.RLock()
	cb := k.rebalanceCb
	k.mu.RUnlock()

	if cb == nil {
		return
	}

	cb.OnRevoked(mapToTopicPartitions(revoked))
}

func (k *KgoConsumer) Subscribe(topics []string, rebalanceCb RebalanceCallback) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.subscribed {
		return fmt.Errorf("already subscribed")
	}

	k.rebalanceCb = rebalanceCb
	k.topics = topics
	k.client.AddConsumeTopics(topics...)
	k.subscribed = true

	return nil
}

func (k *KgoConsumer) Poll(ctx context.Context) ([]ConsumerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, k.config.PollTimeout)
	defer cancel()

	fetches := k.client.PollRecords(ctx, k.config.MaxPollRecords)
	if errs := fetches.Errors(); len(errs) > 0 {
		for _, err := range errs {
			if !errors.Is(err.Err, context.DeadlineExceeded) && !errors.Is(err.Err, context.Canceled) {
				return nil, fmt.Errorf("poll: %w", err.Err)
			}
		}
	}

	return convertRecords(fetches.Records()), nil
}

func (k *KgoConsumer) CommitOffsets(ctx context.Context, offsets map[TopicPartition]int64) error {
	if len(offsets) == 0 {
		return nil
	}

	// Kafka commits hold the next offset to fetch, the ledger hands us the
	// last processed one.
	toCommit := make(map[string]map[int32]kgo.EpochOffset, len(offsets))
	for tp, offset := range offsets {
		if toCommit[tp.Topic] == nil {
			toCommit[tp.Topic] = make(map[int32]kgo.EpochOffset)
		}
		toCommit[tp.Topic][tp.Partition] = kgo.EpochOffset{Epoch: -1, Offset: offset + 1}
	}

	var commitErr error
	onDone := func(_ *kgo.Client, req *kmsg.OffsetCommitRequest, _ *kmsg.OffsetCommitResponse, err error) {
		if err != nil {
			commitErr = err
			k.logger.Warn("Offset commit failed", "group", req.Group, "error", err)
		}
	}

	k.client.CommitOffsetsSync(ctx, toCommit, onDone)
	return commitErr
}

func (k *KgoConsumer) PausePartitions(partitions ...TopicPartition) {
	k.client.PauseFetchPartitions(topicPartitionsToMap(partitions))
}

func (k *KgoConsumer) ResumePartitions(partitions ...TopicPartition) {
	k.client.ResumeFetchPartitions(topicPartitionsToMap(partitions))
}

func (k *KgoConsumer) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

func (k *KgoConsumer) Close() {
	k.client.CloseAllowingRebalance()
}

func convertRecords(records []*kgo.Record) []ConsumerRecord {
	converted := make([]ConsumerRecord, len(records))
	for i, r := range records {
		converted[i] = ConsumerRecord{
			Topic:       r.Topic,
			Partition:   r.Partition,
			Offset:      r.Offset,
			Key:         r.Key,
			Value:       r.Value,
			Headers:     convertFromKgoHeaders(r.Headers),
			Timestamp:   r.Timestamp,
			LeaderEpoch: r.LeaderEpoch,
		}
	}

	return converted
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}
	return converted
}

func topicPartitionsToMap(tps []TopicPartition) map[string][]int32 {
	m := make(map[string][]int32)
	for _, tp := range tps {
		m[tp.Topic] = append(m[tp.Topic], tp.Partition)
	}
	return m
}

func mapToTopicPartitions(m map[string][]int32) []TopicPartition {
	var tps []TopicPartition
	for topic, partitions := range m {
		for _, partition := range partitions {
			tps = append(
				tps, TopicPartition{
					Topic:     topic,
					Partition: partition,
				},
			)
		}
	}

	return tps
}
