package lanes

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hugolhafner/go-lanes/kafka"
	"github.com/hugolhafner/go-lanes/logger"
	"github.com/hugolhafner/go-lanes/offsets"
	lanesotel "github.com/hugolhafner/go-lanes/otel"
	"go.opentelemetry.io/otel/metric"
)

// Processor is the per-item processing callback. An error (or panic) is
// logged and the item still counts as processed for checkpoint purposes;
// retries are the callback's own responsibility.
type Processor[T any] func(ctx context.Context, identifier string, value T) error

// Pool is a fixed set of ordered lanes, each drained by exactly one worker.
//
// A group key is hashed to a lane at submission time and the lane count
// never changes, so all items sharing a group key are processed by the same
// worker in FIFO order. The pool owns the offset tracker and the checkpoint
// driver; callers feed it through Submit (usually via a Strategy) and hear
// about commits through the CommitFunc given to UpdateAssignments.
type Pool[T any] struct {
	config     Config
	identifier string

	tracker   *offsets.Tracker
	lanes     []*lane[T]
	workers   []*laneWorker[T]
	committer *checkpointer

	logger    logger.Logger
	telemetry *lanesotel.Telemetry

	mu     sync.RWMutex
	closed bool
}

// Stats is a point-in-time view of queue depths, used for backpressure
// decisions and observability, not correctness.
type Stats struct {
	QueueDepths []int
	Total       int
}

// NewPool creates the pool and immediately starts its workers and the
// checkpoint driver. No offsets are tracked until UpdateAssignments is
// called with the initial assignment.
func NewPool[T any](identifier string, processor Processor[T], opts ...Option) *Pool[T] {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	p := &Pool[T]{
		config:     config,
		identifier: identifier,
		tracker:    offsets.NewTracker(),
		logger:     config.Logger.With("component", "lane-pool", "identifier", identifier),
		telemetry:  config.Telemetry,
	}

	p.committer = newCheckpointer(p.tracker, config.CommitInterval, identifier, config.Logger, config.Telemetry)
	p.committer.start()

	for i := 0; i < config.Lanes; i++ {
		ln := newLane[T]()
		p.lanes = append(p.lanes, ln)

		worker := newLaneWorker(i, ln, processor, identifier, p.tracker, config.Logger, config.Telemetry)
		worker.start()
		p.workers = append(p.workers, worker)
	}

	return p
}

// Tracker exposes the pool's offset tracker for callers that need to admit
// and complete offsets outside a lane, such as a strategy skipping records.
func (p *Pool[T]) Tracker() *offsets.Tracker {
	return p.tracker
}

// laneFor maps a group key onto a lane. Stable for the life of the pool,
// which is the whole ordering guarantee.
func (p *Pool[T]) laneFor(groupKey string) int {
	return int(xxhash.Sum64String(groupKey) % uint64(len(p.lanes)))
}

// Submit admits the item's offset and enqueues it on the lane for its group
// key. Items for unassigned partitions are dropped: nothing was promised to
// the caller yet, and the partition's new owner will see the record.
// Returns ErrPoolClosed after Shutdown.
func (p *Pool[T]) Submit(groupKey string, item Item[T]) error {
	if err := p.tracker.Add(item.Partition, item.Offset); err != nil {
		p.logger.Warn(
			"Record for unassigned partition, skipping",
			"partition", item.Partition,
			"offset", item.Offset,
		)
		p.telemetry.ItemsDropped.Add(
			context.Background(), 1, metric.WithAttributes(
				lanesotel.AttrIdentifier.String(p.identifier),
				lanesotel.AttrDropReason.String("unassigned_partition"),
			),
		)
		return nil
	}

	ln := p.lanes[p.laneFor(groupKey)]
	if err := ln.push(item); err != nil {
		// shutting down: complete the offset so the tracker is not left
		// with an entry no worker will ever finish
		p.tracker.Complete(item.Partition, item.Offset)
		return err
	}

	p.telemetry.ItemsSubmitted.Add(
		context.Background(), 1, metric.WithAttributes(
			lanesotel.AttrIdentifier.String(p.identifier),
		),
	)
	return nil
}

// Stats returns the current depth of every lane and their sum.
func (p *Pool[T]) Stats() Stats {
	depths := make([]int, len(p.lanes))
	total := 0
	for i, ln := range p.lanes {
		depths[i] = ln.depth()
		total += depths[i]
	}
	return Stats{QueueDepths: depths, Total: total}
}

// WaitUntilEmpty polls until every lane queue is empty or the timeout
// elapses.
func (p *Pool[T]) WaitUntilEmpty(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.Stats().Total == 0 {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return p.Stats().Total == 0
}

// Flush drains the lanes, waiting up to timeout. With a zero timeout it does
// not wait at all. If the wait fails, every queued, not-yet-started item is
// discarded. Either way all tracker state is cleared: discarded offsets are
// never checkpointed, the next assignment starts clean. Returns whether the
// drain succeeded.
func (p *Pool[T]) Flush(timeout time.Duration) bool {
	success := false
	if timeout > 0 {
		success = p.WaitUntilEmpty(timeout)
	}

	if !success {
		discarded := 0
		for _, ln := range p.lanes {
			discarded += ln.discard()
		}
		if discarded > 0 {
			p.logger.Warn("Flush timed out, discarding queued items", "discarded", discarded)
			p.telemetry.ItemsDropped.Add(
				context.Background(), int64(discarded), metric.WithAttributes(
					lanesotel.AttrIdentifier.String(p.identifier),
					lanesotel.AttrDropReason.String("flush_timeout"),
				),
			)
		}
	}

	p.tracker.Clear()
	return success
}

// UpdateAssignments atomically resets offset tracking for the new partition
// set and swaps the commit function used by the checkpoint driver. Called on
// every rebalance, including startup.
func (p *Pool[T]) UpdateAssignments(partitions []kafka.TopicPartition, commit CommitFunc) {
	p.tracker.UpdateAssignments(partitions)
	p.committer.setCommitFunc(commit)

	p.logger.Info("Updated partition assignments", "partitions", len(partitions))
}

// Shutdown stops the workers after their current item, closes the lanes so
// producers fail fast, joins the workers with a bounded timeout, then stops
// the checkpoint driver. Items still queued are not processed.
func (p *Pool[T]) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for _, worker := range p.workers {
		worker.stop()
	}

	for _, ln := range p.lanes {
		ln.close()
	}

	for _, worker := range p.workers {
		if err := worker.waitForStop(p.config.ShutdownTimeout); err != nil {
			p.logger.Warn("Lane worker did not stop in time", "error", err)
		}
	}

	p.committer.stop(p.config.ShutdownTimeout)

	p.logger.Info("Lane pool shut down")
}
