// Package ingest is the boundary between the asynchronous observation streams
// and the single tick-loop consumer.
//
// ObserverCell holds the latest observer pose (last write wins). Queue is a
// mutex-guarded FIFO of pending items; it is unbounded unless a limit is set,
// in which case the oldest item is dropped to make room and counted.
//
// Inbox ties the two together: OnObserver overwrites the cell, OnEntities
// snapshots the cell and enqueues the batch with that snapshot. Neither call
// blocks. Next pops exactly one item for the tick loop.
package ingest
