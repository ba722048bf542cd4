// Package ws streams the collector snapshot to WebSocket clients at
// /ws/stream.
//
// A client receives the current snapshot on connect, then one message per
// broadcast interval and one per received batch:
//
//	{
//	  "event": "snapshot" | "batch",
//	  "data":  { same schema as GET /api/v1/snapshot }
//	}
package ws
