package lanes

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/hugolhafner/go-lanes/kafka"
	"github.com/hugolhafner/go-lanes/offsets"
	lanesotel "github.com/hugolhafner/go-lanes/otel"
	"go.opentelemetry.io/otel/metric"
)

// Decoder turns a raw record into a work payload. Returning (nil, nil) is a
// legitimate skip signal: the record's offset still counts toward checkpoint
// progress. An error is treated as a data-quality problem, not a pipeline
// fault.
type Decoder[T any] func(rec kafka.ConsumerRecord) (*T, error)

// GroupFunc derives the group key that decides which lane serializes a
// payload. It must be stable for payloads that need mutual ordering.
type GroupFunc[T any] func(value T) string

// Strategy is the ingress boundary between a stream consumer and the lane
// pool: it decodes records, derives their group key and submits them.
//
// Decode and grouping failures are fail-open: the offset is marked admitted
// and completed immediately so a poison record cannot stall checkpointing.
type Strategy[T any] struct {
	pool   *Pool[T]
	decode Decoder[T]
	group  GroupFunc[T]

	closing atomic.Bool
}

// NewStrategy wires a strategy to an existing pool and installs the initial
// partition assignment and commit function.
func NewStrategy[T any](
	pool *Pool[T],
	decode Decoder[T],
	group GroupFunc[T],
	partitions []kafka.TopicPartition,
	commit CommitFunc,
) *Strategy[T] {
	pool.UpdateAssignments(partitions, commit)

	return &Strategy[T]{
		pool:   pool,
		decode: decode,
		group:  group,
	}
}

// UpdateAssignments forwards a rebalance to the pool.
func (s *Strategy[T]) UpdateAssignments(partitions []kafka.TopicPartition, commit CommitFunc) {
	s.pool.UpdateAssignments(partitions, commit)
}

// Submit decodes a record and hands it to the pool. Returns ErrRejected
// while shutting down; the caller should back off and retry.
func (s *Strategy[T]) Submit(rec kafka.ConsumerRecord) (err error) {
	if s.closing.Load() {
		return ErrRejected
	}

	tp := rec.TopicPartition()

	defer func() {
		if r := recover(); r != nil {
			s.pool.logger.Error(
				"Panic while submitting record, skipping it",
				"partition", tp,
				"offset", rec.Offset,
				"panic", r,
			)
			s.markDone(tp, rec.Offset)
			err = nil
		}
	}()

	value, decodeErr := s.decode(rec)
	if decodeErr != nil {
		s.pool.logger.Error(
			"Failed to decode record, skipping it",
			"partition", tp,
			"offset", rec.Offset,
			"error", decodeErr,
		)
		s.markDone(tp, rec.Offset)
		return nil
	}

	if value == nil {
		// deliberate skip, offset still counts toward checkpoint progress
		s.markDone(tp, rec.Offset)
		return nil
	}

	item := Item[T]{
		Partition: tp,
		Offset:    rec.Offset,
		Value:     *value,
		Record:    rec,
	}

	if err := s.pool.Submit(s.group(*value), item); err != nil && errors.Is(err, ErrPoolClosed) {
		return ErrRejected
	}

	return nil
}

// markDone admits and immediately completes an offset so it is included in
// the next checkpoint without being processed.
func (s *Strategy[T]) markDone(tp kafka.TopicPartition, offset int64) {
	if err := s.pool.tracker.Add(tp, offset); err != nil {
		if !errors.Is(err, offsets.ErrUnassignedPartition) {
			s.pool.logger.Error("Failed to track skipped record", "partition", tp, "offset", offset, "error", err)
		}
		return
	}
	s.pool.tracker.Complete(tp, offset)
}

// Stats returns the pool's current queue depths.
func (s *Strategy[T]) Stats() Stats {
	return s.pool.Stats()
}

// Poll reports aggregate queue depth. It has no correctness effect.
func (s *Strategy[T]) Poll() {
	stats := s.pool.Stats()
	s.pool.telemetry.QueueDepth.Record(
		context.Background(), int64(stats.Total), metric.WithAttributes(
			lanesotel.AttrIdentifier.String(s.pool.identifier),
		),
	)
}

// Close signals shutdown; further Submit calls return ErrRejected.
func (s *Strategy[T]) Close() {
	s.closing.Store(true)
}

// Terminate signals shutdown and immediately discards queued work.
func (s *Strategy[T]) Terminate() {
	s.closing.Store(true)
	s.pool.Flush(0)
}

// Join drains the pool with the given timeout, discarding whatever is still
// queued when it elapses. Returns whether the drain completed in time.
func (s *Strategy[T]) Join(timeout time.Duration) bool {
	return s.pool.Flush(timeout)
}
