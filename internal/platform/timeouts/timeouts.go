// Package timeouts defines shared timeout constants used across the gateway.
// Centralizing these values prevents drift between surfaces and makes the
// durations discoverable.
package timeouts

import "time"

// NetworkFetch caps how long a network-first fetch waits before the
// strategy falls back to cache. Deployments may override it via config,
// but the wait is always finite.
const NetworkFetch = 10 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
