// Package mcpclient implements the core of a Model Context Protocol (MCP)
// client: the transport-agnostic concurrency and protocol engine that drives
// a connection to an MCP server through its version-negotiation handshake,
// correlates JSON-RPC requests with their responses, routes server-initiated
// notifications, and tears the connection down cleanly on every exit path.
//
// The package does not implement any concrete transport. It consumes
// transports through the narrow Transport interface; see the transport/stdio
// and transport/sse subpackages for child-process and HTTP+SSE
// implementations respectively.
//
// A typical caller does not talk to a Connection directly. It constructs a
// Manager, registers one or more ServerConfigs, and uses the manager's
// blocking facade (EnsureConnected, SendRequestAndWait, Disconnect) from
// ordinary synchronous code while the manager drives the async connection
// engine underneath.
package mcpclient
