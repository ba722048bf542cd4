// Package store keeps the latest QTC result per entity in memory, with TTL
// eviction of entities the creator has stopped reporting.
package store
