package ingest

import (
	"sync"

	"github.com/qtcstream/qtcstream/creator/internal/observation"
)

// Queue is a FIFO of pending items, safe for concurrent Push and Pop.
//
// With limit <= 0 the queue never drops; memory grows with the backlog and
// callers are expected to watch Len. With limit > 0 a Push onto a full queue
// evicts the oldest item first.
type Queue struct {
	mu      sync.Mutex
	items   []observation.Item
	head    int
	limit   int
	dropped uint64
}

// NewQueue returns an empty queue. limit <= 0 means unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{limit: limit}
}

// Push appends it to the tail. It reports whether an older item was evicted.
func (q *Queue) Push(it observation.Item) (evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limit > 0 && q.lenLocked() >= q.limit {
		q.items[q.head] = observation.Item{}
		q.head++
		q.dropped++
		evicted = true
		q.compactLocked()
	}
	q.items = append(q.items, it)
	return evicted
}

// Pop removes and returns the head. ok is false when the queue is empty.
func (q *Queue) Pop() (it observation.Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lenLocked() == 0 {
		return observation.Item{}, false
	}
	it = q.items[q.head]
	q.items[q.head] = observation.Item{}
	q.head++
	q.compactLocked()
	return it, true
}

// compactLocked reclaims the consumed prefix once it dominates the backing
// array, so a queue at its limit reuses the same slots.
func (q *Queue) compactLocked() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Dropped returns how many items were evicted by the limit since creation.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) lenLocked() int {
	return len(q.items) - q.head
}
