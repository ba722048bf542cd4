// Package types defines the wire types shared by the creator and the
// collector server. Result and Batch are what leaves the pipeline, on MQTT as
// JSON and over gRPC through package resultrpc.
package types
