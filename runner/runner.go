package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lanes "github.com/hugolhafner/go-lanes"
	"github.com/hugolhafner/go-lanes/kafka"
	"github.com/hugolhafner/go-lanes/logger"
)

// Strategy is the ingress surface the runner drives. lanes.Strategy
// implements it for any payload type.
type Strategy interface {
	Submit(rec kafka.ConsumerRecord) error
	UpdateAssignments(partitions []kafka.TopicPartition, commit lanes.CommitFunc)
	Stats() lanes.Stats
	Poll()
	Close()
	Join(timeout time.Duration) bool
}

var _ kafka.RebalanceCallback = (*PoolRunner)(nil)

// PoolRunner connects a Consumer to a Strategy: it polls records, submits
// them with retry on rejection, keeps the strategy's partition assignment in
// sync across rebalances, and pauses consumption when the lane queues grow
// past a watermark.
type PoolRunner struct {
	consumer kafka.Consumer
	strategy Strategy
	config   Config
	logger   logger.Logger

	// assigned is the authoritative full assignment set; rebalance callbacks
	// arrive incrementally but the strategy wants complete sets
	mu       sync.Mutex
	assigned map[kafka.TopicPartition]struct{}
	paused   bool
}

func NewPoolRunner(consumer kafka.Consumer, strategy Strategy, opts ...Option) *PoolRunner {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &PoolRunner{
		consumer: consumer,
		strategy: strategy,
		config:   config,
		logger:   config.Logger.With("component", "pool-runner"),
		assigned: make(map[kafka.TopicPartition]struct{}),
	}
}

// Run subscribes and blocks until the context is cancelled.
func (r *PoolRunner) Run(ctx context.Context, topics []string) error {
	defer r.shutdown()

	if err := r.consumer.Subscribe(topics, r); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	r.logger.Info("Pool runner started", "topics", topics)

	var errAttempts uint = 0
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Context cancelled, shutting down")
			return nil
		default:
			if err := r.doPoll(ctx); err != nil {
				r.logger.Warn("Poll error", "error", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(r.config.PollErrorBackoff.Next(errAttempts)):
				}
				errAttempts++
			} else {
				errAttempts = 0
			}
		}
	}
}

func (r *PoolRunner) doPoll(ctx context.Context) error {
	records, err := r.consumer.Poll(ctx)
	if err != nil {
		return fmt.Errorf("failed to poll: %w", err)
	}

	for _, record := range records {
		if err := r.submit(ctx, record); err != nil {
			return err
		}
	}

	r.strategy.Poll()
	r.adjustBackpressure()

	return nil
}

// submit hands one record to the strategy, backing off and retrying while
// the strategy reports itself as shutting down.
func (r *PoolRunner) submit(ctx context.Context, record kafka.ConsumerRecord) error {
	var attempt uint = 0
	for {
		err := r.strategy.Submit(record)
		if err == nil {
			return nil
		}
		if !errors.Is(err, lanes.ErrRejected) {
			return fmt.Errorf("failed to submit record: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.RejectedBackoff.Next(attempt)):
		}
		attempt++
	}
}

// adjustBackpressure pauses every assigned partition once total queue depth
// crosses the watermark and resumes them when the lanes have drained to half
// of it.
func (r *PoolRunner) adjustBackpressure() {
	total := r.strategy.Stats().Total

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case !r.paused && total >= r.config.PauseAbove:
		r.consumer.PausePartitions(r.assignedLocked()...)
		r.paused = true
		r.logger.Debug("Paused partitions due to backpressure", "queued", total)

	case r.paused && total <= r.config.PauseAbove/2:
		r.consumer.ResumePartitions(r.assignedLocked()...)
		r.paused = false
		r.logger.Debug("Resumed partitions after backpressure drain", "queued", total)
	}
}

func (r *PoolRunner) assignedLocked() []kafka.TopicPartition {
	partitions := make([]kafka.TopicPartition, 0, len(r.assigned))
	for tp := range r.assigned {
		partitions = append(partitions, tp)
	}
	return partitions
}

func (r *PoolRunner) OnAssigned(partitions []kafka.TopicPartition) {
	r.logger.Info("Partitions assigned", "partitions", partitions)

	r.mu.Lock()
	for _, tp := range partitions {
		r.assigned[tp] = struct{}{}
	}
	current := r.assignedLocked()
	r.mu.Unlock()

	r.strategy.UpdateAssignments(current, r.commitFunc())
}

func (r *PoolRunner) OnRevoked(partitions []kafka.TopicPartition) {
	r.logger.Info("Partitions revoked", "partitions", partitions)

	r.mu.Lock()
	for _, tp := range partitions {
		delete(r.assigned, tp)
	}
	current := r.assignedLocked()
	r.mu.Unlock()

	r.strategy.UpdateAssignments(current, r.commitFunc())
}

// commitFunc builds the checkpoint driver's commit function for the current
// consumer. Each rebalance installs a fresh closure; in-flight commits using
// the old one are harmless because commits are idempotent.
func (r *PoolRunner) commitFunc() lanes.CommitFunc {
	return func(offsets map[kafka.TopicPartition]int64) error {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.CommitTimeout)
		defer cancel()
		return r.consumer.CommitOffsets(ctx, offsets)
	}
}

func (r *PoolRunner) shutdown() {
	r.logger.Info("Shutting down pool runner")

	r.strategy.Close()
	if !r.strategy.Join(r.config.DrainTimeout) {
		r.logger.Warn("Timed out draining lanes during shutdown, queued items discarded")
	}

	r.logger.Info("Pool runner shutdown complete")
}
