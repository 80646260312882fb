package lanes

import (
	"sync"
)

// lane is an unbounded FIFO queue feeding exactly one worker. Backpressure
// is not applied here: the surrounding framework is expected to slow
// ingestion based on queue depth instead of blocking producers.
type lane[T any] struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	items    []Item[T]
	closed   bool
}

func newLane[T any]() *lane[T] {
	l := &lane[T]{}
	l.nonEmpty = sync.NewCond(&l.mu)
	return l
}

// push enqueues an item. Returns ErrPoolClosed once the lane has been
// closed, so producers fail fast instead of queueing work nobody will run.
func (l *lane[T]) push(item Item[T]) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrPoolClosed
	}

	l.items = append(l.items, item)
	l.nonEmpty.Signal()
	return nil
}

// pop blocks until an item is available or the lane is closed. The second
// return value is false once the lane is closed; remaining items are not
// drained, workers stop after their current item.
func (l *lane[T]) pop() (Item[T], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.items) == 0 && !l.closed {
		l.nonEmpty.Wait()
	}

	if l.closed {
		var zero Item[T]
		return zero, false
	}

	item := l.items[0]
	l.items = l.items[1:]
	return item, true
}

func (l *lane[T]) depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// discard removes and returns the number of queued, not-yet-started items.
func (l *lane[T]) discard() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.items)
	l.items = nil
	return n
}

// close wakes any blocked pop and makes further pushes fail.
func (l *lane[T]) close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.nonEmpty.Broadcast()
}
