// Package history accumulates the smoothed samples of each entity and forgets
// entities that stop reporting.
//
// Append grows an entity's buffer and refreshes its last-seen stamp. Decay
// removes every buffer whose last-seen stamp plus the decay time lies before
// now; removal is total, and an entity that comes back starts an empty buffer.
package history
