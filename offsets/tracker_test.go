//go:build unit

package offsets_test

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/hugolhafner/go-lanes/kafka"
	"github.com/hugolhafner/go-lanes/offsets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tp0 = kafka.TopicPartition{Topic: "results", Partition: 0}
var tp1 = kafka.TopicPartition{Topic: "results", Partition: 1}

func newTracker(partitions ...kafka.TopicPartition) *offsets.Tracker {
	t := offsets.NewTracker()
	t.UpdateAssignments(partitions)
	return t
}

func TestTracker_AddUnassignedPartition(t *testing.T) {
	tracker := newTracker(tp0)

	require.NoError(t, tracker.Add(tp0, 0))

	err := tracker.Add(tp1, 0)
	require.ErrorIs(t, err, offsets.ErrUnassignedPartition)
}

func TestTracker_CompleteUntrackedIsNoop(t *testing.T) {
	tracker := newTracker(tp0)

	// must not panic or create state
	tracker.Complete(tp1, 42)
	assert.Empty(t, tracker.Committable())
}

func TestTracker_CommittableStopsAtHole(t *testing.T) {
	tracker := newTracker(tp0)

	for _, o := range []int64{5, 6, 7, 9} {
		require.NoError(t, tracker.Add(tp0, o))
	}
	tracker.Complete(tp0, 5)
	tracker.Complete(tp0, 6)
	tracker.Complete(tp0, 7)
	// 8 was never admitted, 9 is still outstanding

	committable := tracker.Committable()
	require.Equal(t, map[kafka.TopicPartition]int64{tp0: 7}, committable)
}

func TestTracker_CommittableStopsAtOutstanding(t *testing.T) {
	tracker := newTracker(tp0)

	for _, o := range []int64{0, 1, 2} {
		require.NoError(t, tracker.Add(tp0, o))
	}
	tracker.Complete(tp0, 0)
	tracker.Complete(tp0, 2)

	committable := tracker.Committable()
	require.Equal(t, map[kafka.TopicPartition]int64{tp0: 0}, committable)

	tracker.Complete(tp0, 1)
	committable = tracker.Committable()
	require.Equal(t, map[kafka.TopicPartition]int64{tp0: 2}, committable)
}

func TestTracker_CommittableEmptyWhenNothingCompleted(t *testing.T) {
	tracker := newTracker(tp0)

	require.NoError(t, tracker.Add(tp0, 0))
	assert.Empty(t, tracker.Committable())
}

func TestTracker_MidStreamStart(t *testing.T) {
	tracker := newTracker(tp0)

	// consumer joined mid-stream, first record is offset 100
	require.NoError(t, tracker.Add(tp0, 100))
	require.NoError(t, tracker.Add(tp0, 101))
	tracker.Complete(tp0, 100)
	tracker.Complete(tp0, 101)

	committable := tracker.Committable()
	require.Equal(t, map[kafka.TopicPartition]int64{tp0: 101}, committable)
}

func TestTracker_MarkCommittedPrunesAndAdvances(t *testing.T) {
	tracker := newTracker(tp0)

	for o := int64(0); o < 4; o++ {
		require.NoError(t, tracker.Add(tp0, o))
		tracker.Complete(tp0, o)
	}

	committable := tracker.Committable()
	require.Equal(t, int64(3), committable[tp0])

	tracker.MarkCommitted(tp0, 3)
	assert.Empty(t, tracker.Committable(), "nothing new to commit after marking")

	// progress continues from the cursor
	require.NoError(t, tracker.Add(tp0, 4))
	tracker.Complete(tp0, 4)
	require.Equal(t, map[kafka.TopicPartition]int64{tp0: 4}, tracker.Committable())
}

func TestTracker_MarkCommittedNeverDecreases(t *testing.T) {
	tracker := newTracker(tp0)

	for o := int64(0); o < 10; o++ {
		require.NoError(t, tracker.Add(tp0, o))
		tracker.Complete(tp0, o)
	}

	tracker.MarkCommitted(tp0, 9)
	tracker.MarkCommitted(tp0, 4)

	// a lower mark must not reopen already-committed offsets
	require.NoError(t, tracker.Add(tp0, 10))
	tracker.Complete(tp0, 10)
	require.Equal(t, map[kafka.TopicPartition]int64{tp0: 10}, tracker.Committable())
}

func TestTracker_PartitionsAreIndependent(t *testing.T) {
	tracker := newTracker(tp0, tp1)

	require.NoError(t, tracker.Add(tp0, 0))
	require.NoError(t, tracker.Add(tp1, 0))
	tracker.Complete(tp1, 0)

	committable := tracker.Committable()
	require.Equal(t, map[kafka.TopicPartition]int64{tp1: 0}, committable)
}

func TestTracker_UpdateAssignmentsResetsState(t *testing.T) {
	tracker := newTracker(tp0, tp1)

	require.NoError(t, tracker.Add(tp0, 0))
	require.NoError(t, tracker.Add(tp1, 0))
	tracker.Complete(tp0, 0)

	tracker.UpdateAssignments([]kafka.TopicPartition{tp1})

	// old state is gone entirely
	assert.Empty(t, tracker.Committable())

	err := tracker.Add(tp0, 1)
	require.ErrorIs(t, err, offsets.ErrUnassignedPartition)

	// completing for the dropped partition is a safe no-op
	tracker.Complete(tp0, 0)

	require.NoError(t, tracker.Add(tp1, 0))
}

func TestTracker_Clear(t *testing.T) {
	tracker := newTracker(tp0)

	require.NoError(t, tracker.Add(tp0, 0))
	tracker.Clear()

	assert.Empty(t, tracker.Committable())
	require.ErrorIs(t, tracker.Add(tp0, 1), offsets.ErrUnassignedPartition)
}

// Randomized interleaving of adds, completions and a committing driver:
// committed offsets must be strictly increasing per partition, and a commit
// must never cover an offset that was not completed at the time it was
// returned.
func TestTracker_CommitMonotonicUnderConcurrency(t *testing.T) {
	tracker := newTracker(tp0, tp1)
	partitions := []kafka.TopicPartition{tp0, tp1}

	const perPartition = 500

	var wg sync.WaitGroup
	for _, tp := range partitions {
		wg.Add(1)
		go func(tp kafka.TopicPartition) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(tp.Partition)))

			outstanding := make([]int64, 0, 8)
			next := int64(0)
			for next < perPartition || len(outstanding) > 0 {
				if next < perPartition && (len(outstanding) == 0 || rng.Intn(2) == 0) {
					assert.NoError(t, tracker.Add(tp, next))
					outstanding = append(outstanding, next)
					next++
				} else {
					i := rng.Intn(len(outstanding))
					tracker.Complete(tp, outstanding[i])
					outstanding = append(outstanding[:i], outstanding[i+1:]...)
				}
			}
		}(tp)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	lastSeen := map[kafka.TopicPartition]int64{tp0: -1, tp1: -1}
	drive := func() {
		committable := tracker.Committable()
		for tp, offset := range committable {
			assert.Greater(t, offset, lastSeen[tp], "committable offsets must be strictly increasing")
			lastSeen[tp] = offset
			tracker.MarkCommitted(tp, offset)
		}
	}

	for {
		select {
		case <-done:
			// final pass picks up whatever completed last
			drive()
			for _, tp := range partitions {
				assert.Equal(t, int64(perPartition-1), lastSeen[tp])
			}
			return
		default:
			drive()
		}
	}
}
