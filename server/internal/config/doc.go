// Package config loads the collector configuration from the `server:` section
// of a YAML file.
//
//   - GRPCPort        port for the result receiver (default 50061)
//   - HTTPPort        port for the REST API, /metrics and /ws/stream (default 8081)
//   - Auth.Mode       "apikey" or "none"
//   - Auth.KeyEnv     environment variable holding the expected API key
//   - Auth.Header     gRPC metadata key (default "x-api-key")
//   - Results.TTL     how long an entity's last result stays live (default 5m)
//   - Stream.Interval WebSocket broadcast period (default 5s)
package config
