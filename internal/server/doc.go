// Package server provides a unified HTTP server for this service
// using Gin with HTTP/2 and h2c support for serving both REST and gRPC traffic.
//
// The server follows the toolkit's component pattern with lifecycle management,
// health endpoints, and configurable middleware.
//
// # Middleware
//
// Built-in middleware (server/middleware):
//
//   - Recovery: Panic recovery with structured logging
//   - Logging: Request/response logging with duration tracking
//   - CORS: Cross-origin resource sharing configuration
//   - RequestID: Request ID generation and propagation
//   - RateLimit: Per-key request limiting over a sliding one-minute window
//   - BodySize: Request body size limits
//   - Auth: JWT authentication middleware
//
// # Endpoints
//
// Built-in endpoint handlers (server/endpoint). RegisterDefaultEndpoints
// mounts /health, /info and /metrics:
//
//   - /health: Health check aggregation
//   - /info: Application information
//   - /metrics: Runtime memory and goroutine statistics as JSON
//   - Liveness, Readiness, Version: liveness, readiness and build version
//     handlers; they are not mounted by RegisterDefaultEndpoints
package server
