// Package server wires the Gmail operations into a running MCP server.
//
// ServerContext owns the credential store, caches one Gmail session per
// mailbox and exposes the dispatcher built on top of them. Sessions are
// created lazily on the first request for a mailbox; a session whose
// credential stops working is dropped so the next request resolves it again.
//
// HTTPServer mounts the streamable-http transport at /mcp next to the
// health endpoints (/healthz, /readyz, /healthz/detailed). MetricsServer
// exposes Prometheus metrics on a separate address.
package server
