// Package server provides the HTTP server of resilienced: Gin behind an h2c
// handler so clients may speak HTTP/1.1 or cleartext HTTP/2.
//
// The server is a component: Start binds the listener, Stop drains it and
// Health reports whether it is serving.
//
// # Middleware
//
// Applied to every request (server/middleware):
//
//   - Recovery: panic recovery with structured logging
//   - RequestID: request ID generation and propagation
//   - RequestLogger: request logging with duration tracking
//   - CORS: cross-origin resource sharing
//   - BodySizeLimit: request body size limits
//
// Applied per route group by server/handler:
//
//   - RateLimit: the adaptive per-tenant limiter on /v1
//   - Operator: operator token verification on /v1/admin
//
// # Endpoints
//
// Health probes (server/endpoint):
//
//   - /health: aggregated component health
//   - /health/live: liveness probe
//   - /health/ready: readiness probe
package server
