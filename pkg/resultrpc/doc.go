// Package resultrpc declares the ResultService gRPC service used by the
// creator's shipper to deliver output batches to the collector server.
//
// The service carries pkg/types values encoded as JSON. The codec registers
// itself under the "json" content subtype; the client forces it on every call
// and the server selects it from the request's content type, so no generated
// protobuf code is involved.
//
//	service ResultService {
//	  rpc Publish(Batch) returns (Ack);
//	}
package resultrpc
