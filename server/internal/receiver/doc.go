// Package receiver implements resultrpc.ResultServiceServer, the gRPC endpoint
// that accepts result batches from creator shippers.
//
// Receiver.Publish rejects batches without a frame_id, without results or
// with a result lacking a uuid (codes.InvalidArgument), assigns every
// accepted batch an id, and stores it. The id is returned in the Ack.
package receiver
