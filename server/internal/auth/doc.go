// Package auth guards the collector's gRPC receiver.
//
// APIKeyInterceptor(mode, header, key) compares the named metadata header
// against the configured key. With auth disabled (mode "none" or an empty
// key) every call passes.
package auth
