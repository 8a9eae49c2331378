// Package gateway orchestrates the polydev-mcp server components.
//
// # Overview
//
// The gateway owns every long-lived component and wires them together:
// SQLite store, bearer token authenticator, provider invoker, perspective
// aggregator, MCP dispatcher, optional rate limiter and metrics registry,
// and the HTTP server that fronts them.
//
// # HTTP Routes
//
//   - POST/GET/OPTIONS /mcp - MCP JSON-RPC endpoint (rate limited when enabled)
//   - /api/mcp - alias of /mcp
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (database ping)
//   - GET /metrics - Prometheus scrape endpoint when metrics.enabled
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled, then shuts down
//
// Shutdown drains the HTTP server for up to five seconds, then stops the
// limiter sweeper and the preference cache, and closes the store.
package gateway
