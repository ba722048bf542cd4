// Package pipeline runs the creator's tick loop.
//
// Each tick snapshots the live parameters, pops at most one entity batch from
// the inbox, moves detections into the working frame, feeds them through the
// smoothing windows, appends flushed means to the per-entity histories,
// classifies every entity whose history grew, and hands the resulting batch
// to the sinks unless the output gate suppresses it. The decay sweep runs
// last, against the batch stamp.
//
// All stage state is owned by the goroutine calling Tick. The admin API reads
// an immutable Status snapshot instead.
package pipeline
