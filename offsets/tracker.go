package offsets

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hugolhafner/go-lanes/kafka"
)

// ErrUnassignedPartition is returned when offset tracking is attempted for a
// partition outside the current assignment. Callers should drop the record:
// the assignment changed concurrently and another consumer owns it now.
var ErrUnassignedPartition = errors.New("partition not assigned to this consumer")

// partitionState is the bookkeeping for a single assigned partition.
// admitted holds every offset accepted since the last commit prune,
// outstanding the subset still being processed.
type partitionState struct {
	mu            sync.Mutex
	admitted      map[int64]struct{}
	outstanding   map[int64]struct{}
	lastCommitted int64
}

func newPartitionState() *partitionState {
	return &partitionState{
		admitted:      make(map[int64]struct{}),
		outstanding:   make(map[int64]struct{}),
		lastCommitted: -1,
	}
}

// Tracker records which offsets have been admitted, which are still being
// processed, and the highest offset already handed to the committer, per
// partition.
//
// The registry of partition states is replaced wholesale on every
// UpdateAssignments call. In-flight operations holding a state from the old
// registry finish against that discarded state, which is harmless: its
// results are never read again.
type Tracker struct {
	mu         sync.RWMutex
	partitions map[kafka.TopicPartition]*partitionState
}

func NewTracker() *Tracker {
	return &Tracker{
		partitions: make(map[kafka.TopicPartition]*partitionState),
	}
}

func (t *Tracker) state(tp kafka.TopicPartition) (*partitionState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ps, ok := t.partitions[tp]
	return ps, ok
}

// Add records that processing of an offset has been admitted.
func (t *Tracker) Add(tp kafka.TopicPartition, offset int64) error {
	ps, ok := t.state(tp)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnassignedPartition, tp)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.admitted[offset] = struct{}{}
	ps.outstanding[offset] = struct{}{}
	return nil
}

// Complete marks an offset as done. Completing an offset on a partition that
// is no longer tracked is a no-op: the work was queued before a reassignment
// and its completion no longer matters.
func (t *Tracker) Complete(tp kafka.TopicPartition, offset int64) {
	ps, ok := t.state(tp)
	if !ok {
		return
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.outstanding, offset)
}

// Committable returns, per partition, the highest offset such that every
// offset from the commit cursor up to it has been admitted and completed.
// The walk starts at the lowest admitted offset when that lies beyond the
// cursor (the consumer may have joined mid-stream) and stops at the first
// hole or still-outstanding offset. Only partitions that can advance are
// returned.
//
// Each partition is inspected under its own lock; the result is a
// per-partition snapshot, not a global one. A stale snapshot only delays a
// commit, it can never produce an unsafe one.
func (t *Tracker) Committable() map[kafka.TopicPartition]int64 {
	t.mu.RLock()
	registry := t.partitions
	t.mu.RUnlock()

	committable := make(map[kafka.TopicPartition]int64)

	for tp, ps := range registry {
		ps.mu.Lock()

		if len(ps.admitted) == 0 {
			ps.mu.Unlock()
			continue
		}

		minAdmitted := int64(-1)
		for offset := range ps.admitted {
			if minAdmitted < 0 || offset < minAdmitted {
				minAdmitted = offset
			}
		}

		start := ps.lastCommitted + 1
		if minAdmitted > start {
			start = minAdmitted
		}

		highest := ps.lastCommitted
		for next := start; ; next++ {
			if _, ok := ps.admitted[next]; !ok {
				break
			}
			if _, ok := ps.outstanding[next]; ok {
				break
			}
			highest = next
		}

		if highest > ps.lastCommitted {
			committable[tp] = highest
		}

		ps.mu.Unlock()
	}

	return committable
}

// MarkCommitted advances the commit cursor for a partition and prunes
// admitted offsets at or below it. The cursor never moves backwards.
func (t *Tracker) MarkCommitted(tp kafka.TopicPartition, offset int64) {
	ps, ok := t.state(tp)
	if !ok {
		return
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if offset <= ps.lastCommitted {
		return
	}

	ps.lastCommitted = offset
	for o := range ps.admitted {
		if o <= offset {
			delete(ps.admitted, o)
		}
	}
}

// UpdateAssignments replaces all tracking state with fresh state for exactly
// the given partitions. Called on every rebalance, including the initial
// assignment.
func (t *Tracker) UpdateAssignments(partitions []kafka.TopicPartition) {
	registry := make(map[kafka.TopicPartition]*partitionState, len(partitions))
	for _, tp := range partitions {
		registry[tp] = newPartitionState()
	}

	t.mu.Lock()
	t.partitions = registry
	t.mu.Unlock()
}

// Clear drops all tracking state.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.partitions = make(map[kafka.TopicPartition]*partitionState)
	t.mu.Unlock()
}
