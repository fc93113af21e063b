// Package monarch maintains an authenticated session against the Monarch
// Money API and exposes the fixed set of GraphQL operations the gateway
// needs.
//
// # Session lifecycle
//
// A Client is created with a set of credentials but does not log in until
// the first operation runs. Login posts email and password (and a TOTP
// code when multi-factor is enabled) to the REST login endpoint and holds
// the returned token in memory for the life of the client. Nothing is ever
// written to disk.
//
// When the upstream answers a GraphQL call with 401 the token is assumed
// expired: the client discards it, logs in again, and replays the call
// exactly once. A second 401 surfaces as ErrAuthExpired rather than
// looping.
//
// # Multi-factor codes
//
// Credentials may carry either a one-time code or a TOTP seed. The seed
// wins when both are present, since a code captured earlier has likely
// already expired by the time a relogin needs it. Codes are derived with
// the standard 30-second TOTP algorithm.
//
// # Error taxonomy
//
// Callers branch on a small set of types: ErrMFARequired and LoginError
// for login failures, ErrAuthExpired for a dead session that relogin
// could not revive, OperationError for GraphQL-level errors returned with
// a 2xx status, TransportError for non-2xx responses and network
// failures, and DateRangeError for a half-open date window rejected
// before any request is made.
package monarch
