// Package api implements the collector's HTTP REST API.
//
// New(store) returns an http.Handler that serves:
//
//	GET /api/v1/health          state ("ok" or "idle"), entity and batch counts
//	GET /api/v1/entities        every live entity, ordered by uuid
//	GET /api/v1/entities/{uuid} one entity; 404 if unknown or stale
//	GET /api/v1/snapshot        all live entities, last batch and generated_at
//
// All endpoints respond with Content-Type: application/json and return 405
// for non-GET methods.
package api
