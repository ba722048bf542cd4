package ingest

import (
	"log/slog"

	"github.com/qtcstream/qtcstream/creator/internal/observation"
)

// Inbox receives both observation streams and hands queued items to the tick
// loop one at a time.
type Inbox struct {
	observer ObserverCell
	queue    *Queue
}

// NewInbox returns an Inbox backed by a queue with the given limit
// (<= 0 for unbounded).
func NewInbox(limit int) *Inbox {
	return &Inbox{queue: NewQueue(limit)}
}

// OnObserver records the latest observer pose.
func (in *Inbox) OnObserver(p observation.Point) {
	in.observer.Store(p)
}

// OnEntities enqueues b together with the observer pose known right now.
func (in *Inbox) OnEntities(b observation.Batch) {
	item := observation.Item{Batch: b, Observer: in.observer.Load()}
	if in.queue.Push(item) {
		slog.Warn("ingest: queue full, evicted oldest batch",
			"limit", in.queue.limit, "dropped_total", in.queue.Dropped())
	}
}

// Next pops the oldest pending item.
func (in *Inbox) Next() (observation.Item, bool) {
	return in.queue.Pop()
}

// Depth returns the number of pending items.
func (in *Inbox) Depth() int {
	return in.queue.Len()
}

// Dropped returns the number of items evicted by the queue limit.
func (in *Inbox) Dropped() uint64 {
	return in.queue.Dropped()
}

// Observer returns the latest observer pose, or nil.
func (in *Inbox) Observer() *observation.Point {
	return in.observer.Load()
}
