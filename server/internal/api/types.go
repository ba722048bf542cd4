package api

import "github.com/qtcstream/qtcstream/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "ok" while at least one entity is live, "idle" otherwise.
	State       string  `json:"state"`
	EntityCount int     `json:"entity_count"`
	BatchCount  uint64  `json:"batch_count"`
	LastBatchAt string  `json:"last_batch_at,omitempty"` // RFC3339
	TTLSeconds  float64 `json:"ttl_seconds"`
}

// EntityResponse is one entity in GET /api/v1/entities or
// GET /api/v1/entities/{uuid}: the last Result plus the batch that carried it.
type EntityResponse struct {
	types.Result
	FrameID  string `json:"frame_id"`
	Seq      uint64 `json:"seq"`
	BatchID  string `json:"batch_id"`
	Stamp    string `json:"stamp"`     // RFC3339Nano, creator clock
	LastSeen string `json:"last_seen"` // RFC3339, collector clock
}

// BatchResponse describes the most recent batch.
type BatchResponse struct {
	ID         string `json:"id"`
	FrameID    string `json:"frame_id"`
	Seq        uint64 `json:"seq"`
	Results    int    `json:"results"`
	Stamp      string `json:"stamp"`
	ReceivedAt string `json:"received_at"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket message.
type SnapshotResponse struct {
	Entities    []EntityResponse `json:"entities"`
	BatchCount  uint64           `json:"batch_count"`
	LastBatch   *BatchResponse   `json:"last_batch,omitempty"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
