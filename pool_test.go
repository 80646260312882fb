//go:build unit

package lanes

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/hugolhafner/go-lanes/kafka"
	"github.com/hugolhafner/go-lanes/offsets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Group string
	Seq   int
}

// groupRecorder captures processed payloads in arrival order per group.
type groupRecorder struct {
	mu      sync.Mutex
	byGroup map[string][]int
	total   int
}

func newGroupRecorder() *groupRecorder {
	return &groupRecorder{byGroup: make(map[string][]int)}
}

func (r *groupRecorder) processor(delay time.Duration) Processor[payload] {
	return func(ctx context.Context, identifier string, value payload) error {
		if delay > 0 {
			time.Sleep(time.Duration(rand.Int63n(int64(delay))))
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.byGroup[value.Group] = append(r.byGroup[value.Group], value.Seq)
		r.total++
		return nil
	}
}

func (r *groupRecorder) totalProcessed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *groupRecorder) sequence(group string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.byGroup[group]))
	copy(out, r.byGroup[group])
	return out
}

func testPartitions(n int32) []kafka.TopicPartition {
	partitions := make([]kafka.TopicPartition, n)
	for i := int32(0); i < n; i++ {
		partitions[i] = kafka.TopicPartition{Topic: "results", Partition: i}
	}
	return partitions
}

func TestPool_LaneSelectionIsStable(t *testing.T) {
	recorder := newGroupRecorder()
	pool := NewPool("test", recorder.processor(0), WithLanes(7))
	defer pool.Shutdown()

	for _, key := range []string{"a", "b", "c", "subscription-123"} {
		first := pool.laneFor(key)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, pool.laneFor(key))
		}
	}
}

func TestPool_SameGroupOrderedAcrossPartitions(t *testing.T) {
	recorder := newGroupRecorder()
	pool := NewPool("test", recorder.processor(time.Millisecond), WithLanes(3))
	defer pool.Shutdown()

	partitions := testPartitions(2)
	pool.UpdateAssignments(partitions, nil)

	// interleave one group key across two partitions
	offsets := map[kafka.TopicPartition]int64{}
	for seq := 0; seq < 40; seq++ {
		tp := partitions[seq%2]
		item := Item[payload]{
			Partition: tp,
			Offset:    offsets[tp],
			Value:     payload{Group: "g", Seq: seq},
		}
		offsets[tp]++
		require.NoError(t, pool.Submit("g", item))
	}

	require.True(t, pool.WaitUntilEmpty(5*time.Second))

	require.Eventually(t, func() bool {
		return recorder.totalProcessed() == 40
	}, time.Second, 10*time.Millisecond)

	sequence := recorder.sequence("g")
	for i, seq := range sequence {
		require.Equal(t, i, seq, "same group must process in submission order")
	}
}

func TestPool_EndToEndExactlyOnceInOrder(t *testing.T) {
	recorder := newGroupRecorder()

	committed := struct {
		sync.Mutex
		offsets map[kafka.TopicPartition]int64
	}{offsets: make(map[kafka.TopicPartition]int64)}

	pool := NewPool(
		"test", recorder.processor(2*time.Millisecond),
		WithLanes(3),
		WithCommitInterval(50*time.Millisecond),
	)
	defer pool.Shutdown()

	partitions := testPartitions(5)
	pool.UpdateAssignments(partitions, func(offsets map[kafka.TopicPartition]int64) error {
		committed.Lock()
		defer committed.Unlock()
		for tp, o := range offsets {
			committed.offsets[tp] = o
		}
		return nil
	})

	nextOffset := map[kafka.TopicPartition]int64{}
	submittedPerGroup := map[string][]int{}
	for seq := 0; seq < 100; seq++ {
		tp := partitions[seq%len(partitions)]
		group := fmt.Sprintf("group-%d", seq%5)

		item := Item[payload]{
			Partition: tp,
			Offset:    nextOffset[tp],
			Value:     payload{Group: group, Seq: seq},
		}
		nextOffset[tp]++
		submittedPerGroup[group] = append(submittedPerGroup[group], seq)

		require.NoError(t, pool.Submit(group, item))
	}

	require.True(t, pool.WaitUntilEmpty(10*time.Second))

	require.Eventually(t, func() bool {
		return recorder.totalProcessed() == 100
	}, 2*time.Second, 10*time.Millisecond)

	for group, want := range submittedPerGroup {
		assert.Equal(t, want, recorder.sequence(group), "group %s out of order", group)
	}

	// every partition received 20 contiguous offsets, all completed
	require.Eventually(t, func() bool {
		committed.Lock()
		defer committed.Unlock()
		for _, tp := range partitions {
			if committed.offsets[tp] != 19 {
				return false
			}
		}
		return true
	}, 5*time.Second, 25*time.Millisecond, "all offsets should be checkpointed")
}

func TestPool_UnassignedPartitionDropped(t *testing.T) {
	recorder := newGroupRecorder()
	pool := NewPool("test", recorder.processor(0), WithLanes(2))
	defer pool.Shutdown()

	pool.UpdateAssignments(testPartitions(1), nil)

	unassigned := kafka.TopicPartition{Topic: "results", Partition: 9}
	require.NoError(t, pool.Submit("g", Item[payload]{Partition: unassigned, Offset: 0}))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, recorder.totalProcessed())
	assert.Equal(t, 0, pool.Stats().Total)
}

func TestPool_ProcessorFailureStillCheckpoints(t *testing.T) {
	committed := struct {
		sync.Mutex
		offsets map[kafka.TopicPartition]int64
	}{offsets: make(map[kafka.TopicPartition]int64)}

	failing := func(ctx context.Context, identifier string, value payload) error {
		if value.Seq%2 == 0 {
			return errors.New("boom")
		}
		panic("poison record")
	}

	pool := NewPool("test", failing, WithLanes(2), WithCommitInterval(25*time.Millisecond))
	defer pool.Shutdown()

	partitions := testPartitions(1)
	pool.UpdateAssignments(partitions, func(offsets map[kafka.TopicPartition]int64) error {
		committed.Lock()
		defer committed.Unlock()
		for tp, o := range offsets {
			committed.offsets[tp] = o
		}
		return nil
	})

	for seq := 0; seq < 10; seq++ {
		item := Item[payload]{
			Partition: partitions[0],
			Offset:    int64(seq),
			Value:     payload{Group: "g", Seq: seq},
		}
		require.NoError(t, pool.Submit("g", item))
	}

	require.Eventually(t, func() bool {
		committed.Lock()
		defer committed.Unlock()
		return committed.offsets[partitions[0]] == 9
	}, 5*time.Second, 25*time.Millisecond, "failures must not block checkpoint progress")
}

func TestPool_CommitRetriesAfterCommitError(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	var last map[kafka.TopicPartition]int64

	recorder := newGroupRecorder()
	pool := NewPool("test", recorder.processor(0), WithLanes(1), WithCommitInterval(20*time.Millisecond))
	defer pool.Shutdown()

	partitions := testPartitions(1)
	pool.UpdateAssignments(partitions, func(offsets map[kafka.TopicPartition]int64) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("commit failed")
		}
		last = offsets
		return nil
	})

	require.NoError(t, pool.Submit("g", Item[payload]{Partition: partitions[0], Offset: 0, Value: payload{Group: "g"}}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != nil && last[partitions[0]] == 0
	}, 5*time.Second, 10*time.Millisecond, "commit should be retried on the next interval")
}

func TestPool_FlushZeroDiscardsAndResets(t *testing.T) {
	release := make(chan struct{})
	var processed sync.Map

	blocking := func(ctx context.Context, identifier string, value payload) error {
		<-release
		processed.Store(value.Seq, true)
		return nil
	}

	pool := NewPool("test", blocking, WithLanes(1))
	defer pool.Shutdown()

	partitions := testPartitions(1)
	pool.UpdateAssignments(partitions, nil)

	for seq := 0; seq < 5; seq++ {
		item := Item[payload]{
			Partition: partitions[0],
			Offset:    int64(seq),
			Value:     payload{Group: "g", Seq: seq},
		}
		require.NoError(t, pool.Submit("g", item))
	}

	// the worker is blocked on the first item, the rest are queued
	require.Eventually(t, func() bool {
		return pool.Stats().Total == 4
	}, time.Second, 5*time.Millisecond)

	require.False(t, pool.Flush(0))
	assert.Equal(t, 0, pool.Stats().Total)

	// tracker was cleared along with the queues
	require.ErrorIs(t, pool.Tracker().Add(partitions[0], 100), offsets.ErrUnassignedPartition)

	close(release)

	// a fresh assignment works with no residual state
	pool.UpdateAssignments(partitions, nil)
	require.NoError(t, pool.Submit("g", Item[payload]{
		Partition: partitions[0],
		Offset:    0,
		Value:     payload{Group: "g", Seq: 100},
	}))

	require.Eventually(t, func() bool {
		_, ok := processed.Load(100)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	recorder := newGroupRecorder()
	pool := NewPool("test", recorder.processor(0), WithLanes(2))

	partitions := testPartitions(1)
	pool.UpdateAssignments(partitions, nil)
	pool.Shutdown()

	err := pool.Submit("g", Item[payload]{Partition: partitions[0], Offset: 0})
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_WaitUntilEmpty(t *testing.T) {
	recorder := newGroupRecorder()
	pool := NewPool("test", recorder.processor(0), WithLanes(2))
	defer pool.Shutdown()

	assert.True(t, pool.WaitUntilEmpty(100*time.Millisecond))
}
