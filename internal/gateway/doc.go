// Package gateway is the HTTP front door: a JSON-RPC 2.0 endpoint at /mcp
// speaking the MCP tools surface, plus liveness routes and CORS handling.
//
// # Statelessness
//
// The endpoint keeps no per-client state. There are no sessions and no
// Mcp-Session-Id header; initialize returns a static announcement and every
// tools/call authenticates and resolves credentials on its own. Any number
// of clients with different upstream accounts can share one gateway.
//
// # Request handling
//
// Each POST to /mcp passes the gateway-key check before anything is parsed,
// then a 1MB body cap, then JSON-RPC validation. A message without an id
// member is a notification and is answered with HTTP 202 and no body. All
// other messages get exactly one response whose id is the request id echoed
// byte for byte, including an explicit null.
//
// # Error codes
//
// Caller mistakes (unknown tool, schema violations, half-open date windows)
// map to -32602. Missing upstream credentials and gateway-key failures map
// to -32001. Upstream failures of any kind map to -32000 with the upstream
// message preserved, so callers can distinguish a login rejection from an
// expired session. Everything unexpected is -32603, with the detail
// collapsed to a generic message unless debug mode is enabled.
package gateway
