// Package smoothing averages raw observer/entity samples per entity over a
// fixed time window before they enter the history.
//
// A window opens with the first sample for an entity and collects every
// further sample until a flush at a stamp at or past start + rate. Flushing
// emits the column-wise mean of the collected samples and deletes the window;
// the next sample opens a new one. Windows do not slide or overlap.
//
// Step is the per-batch entry point used by the tick loop: it closes mature
// windows, adds the batch's samples, then closes windows that matured
// immediately.
package smoothing
