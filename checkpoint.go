package lanes

import (
	"context"
	"sync"
	"time"

	"github.com/hugolhafner/go-lanes/kafka"
	"github.com/hugolhafner/go-lanes/logger"
	"github.com/hugolhafner/go-lanes/offsets"
	lanesotel "github.com/hugolhafner/go-lanes/otel"
	"go.opentelemetry.io/otel/metric"
)

// CommitFunc transmits committable offsets to the upstream source. It must
// be idempotent: the checkpoint driver only ever supplies monotonically
// increasing offsets per partition, but a commit may be retried after a
// rebalance swapped the function.
type CommitFunc func(offsets map[kafka.TopicPartition]int64) error

// checkpointer periodically asks the tracker for committable offsets and
// hands them to the registered commit function. It runs independently of the
// data path; an error in one iteration never stops the next.
type checkpointer struct {
	tracker    *offsets.Tracker
	interval   time.Duration
	identifier string
	logger     logger.Logger
	telemetry  *lanesotel.Telemetry

	mu     sync.RWMutex
	commit CommitFunc

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newCheckpointer(
	tracker *offsets.Tracker,
	interval time.Duration,
	identifier string,
	l logger.Logger,
	telemetry *lanesotel.Telemetry,
) *checkpointer {
	return &checkpointer{
		tracker:    tracker,
		interval:   interval,
		identifier: identifier,
		logger:     l.With("component", "checkpointer"),
		telemetry:  telemetry,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

func (c *checkpointer) start() {
	go c.run()
}

func (c *checkpointer) run() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			// no final forced commit: the last real commit is at most one
			// interval old and a flush clears the tracker anyway
			return
		case <-ticker.C:
			c.commitOnce()
		}
	}
}

func (c *checkpointer) commitOnce() {
	committable := c.tracker.Committable()
	if len(committable) == 0 {
		return
	}

	c.mu.RLock()
	commit := c.commit
	c.mu.RUnlock()

	if commit == nil {
		return
	}

	if err := commit(committable); err != nil {
		c.logger.Error("Commit function failed, will retry next interval", "error", err)
		return
	}

	c.telemetry.OffsetsCommitted.Add(
		context.Background(), int64(len(committable)), metric.WithAttributes(
			lanesotel.AttrIdentifier.String(c.identifier),
		),
	)

	for tp, offset := range committable {
		c.tracker.MarkCommitted(tp, offset)
	}

	c.logger.Debug("Checkpointed offsets", "partitions", len(committable))
}

// setCommitFunc swaps the commit function. Commits already in flight may
// still use the previous one; commits are idempotent upstream so this is
// safe.
func (c *checkpointer) setCommitFunc(commit CommitFunc) {
	c.mu.Lock()
	c.commit = commit
	c.mu.Unlock()
}

func (c *checkpointer) stop(timeout time.Duration) {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})

	select {
	case <-c.doneCh:
	case <-time.After(timeout):
		c.logger.Warn("Timeout waiting for checkpointer to stop")
	}
}
