package lanes

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hugolhafner/go-lanes/logger"
	"github.com/hugolhafner/go-lanes/offsets"
	lanesotel "github.com/hugolhafner/go-lanes/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// laneWorker drains a single lane in FIFO order. Whatever the processing
// callback does, the item's offset is completed afterwards so checkpoint
// progress is never blocked by a failing record.
type laneWorker[T any] struct {
	id         int
	lane       *lane[T]
	processor  Processor[T]
	identifier string
	tracker    *offsets.Tracker
	logger     logger.Logger
	telemetry  *lanesotel.Telemetry

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newLaneWorker[T any](
	id int,
	ln *lane[T],
	processor Processor[T],
	identifier string,
	tracker *offsets.Tracker,
	l logger.Logger,
	telemetry *lanesotel.Telemetry,
) *laneWorker[T] {
	return &laneWorker[T]{
		id:         id,
		lane:       ln,
		processor:  processor,
		identifier: identifier,
		tracker:    tracker,
		logger:     l.With("component", "lane-worker", "lane", id),
		telemetry:  telemetry,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

func (w *laneWorker[T]) start() {
	go w.run()
}

func (w *laneWorker[T]) run() {
	defer close(w.doneCh)

	w.logger.Debug("Lane worker started")

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		item, ok := w.lane.pop()
		if !ok {
			w.logger.Debug("Lane closed, worker exiting")
			return
		}

		w.process(item)
	}
}

func (w *laneWorker[T]) process(item Item[T]) {
	defer w.tracker.Complete(item.Partition, item.Offset)

	ctx, span := w.telemetry.Tracer.Start(
		context.Background(), w.identifier+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	start := time.Now()
	status := lanesotel.StatusSuccess

	err := w.invoke(ctx, item)
	if err != nil {
		status = lanesotel.StatusError
		span.RecordError(err)
		w.logger.Error(
			"Processing callback failed, offset will still be checkpointed",
			"partition", item.Partition,
			"offset", item.Offset,
			"error", err,
		)
	}

	w.telemetry.ProcessDuration.Record(
		ctx, time.Since(start).Seconds(), metric.WithAttributes(
			lanesotel.AttrIdentifier.String(w.identifier),
			lanesotel.AttrLane.String(strconv.Itoa(w.id)),
			lanesotel.AttrProcessStatus.String(status),
		),
	)
}

// invoke runs the callback, converting a panic into an error so one poison
// record cannot kill the lane.
func (w *laneWorker[T]) invoke(ctx context.Context, item Item[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in processing callback: %v", r)
		}
	}()

	return w.processor(ctx, w.identifier, item.Value)
}

// stop signals the worker to exit after its current item.
func (w *laneWorker[T]) stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// waitForStop waits for the worker goroutine to exit.
func (w *laneWorker[T]) waitForStop(timeout time.Duration) error {
	select {
	case <-w.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for lane worker %d to stop", w.id)
	}
}
