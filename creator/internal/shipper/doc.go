// Package shipper delivers result batches to the collector server over gRPC
// (qtcstream.v1.ResultService/Publish, JSON codec).
//
// Shipper is a pipeline sink. Publish only enqueues into a bounded channel
// and evicts the oldest batch when it is full, so a slow or absent collector
// never stalls the tick loop. Run drains the channel and reconnects with
// truncated exponential backoff (1s to 60s, ±25% jitter). Batches rejected
// with a permanent status (InvalidArgument, Unauthenticated,
// PermissionDenied, Unimplemented) are discarded; any other failure keeps
// the batch and retries it first after reconnecting.
//
// Auth: mTLS transport credentials, an API key in gRPC metadata, or
// plaintext for local development.
package shipper
