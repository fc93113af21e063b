// Package tools holds the fixed catalog of Monarch Money tools the gateway
// publishes and the dispatcher that runs them.
//
// The catalog never changes at runtime: tools/list always returns the same
// eight descriptors, and tools/call only ever routes to one of the eight
// kinds. Each tool carries a JSON schema compiled at startup; arguments are
// validated against it before anything touches the upstream, so a bad call
// costs no network traffic and cannot half-execute.
//
// Dispatch is an exhaustive switch over a kind tag rather than a handler
// map. With a closed catalog the switch keeps the compiler involved: a new
// kind without a handler is visible right where the routing happens.
package tools
