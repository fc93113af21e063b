// Package auth implements the two authentication concerns at the gateway's
// front door: verifying that a caller is allowed to talk to this deployment
// at all, and working out which upstream credentials the call should use.
//
// # Gateway key
//
// A deployment may configure a shared gateway key. Callers present it in
// either the X-API-Key header or a bearer Authorization header, and it is
// compared in constant time. A deployment with no configured key accepts
// every caller; that is an explicit opt-out, not an oversight, and the
// server logs a warning at startup when it applies.
//
// # Upstream credentials
//
// Credentials for the upstream financial API arrive one of two ways:
//
//   - Per call: Authorization: Bearer <base64 of JSON {email, password,
//     mfaCode?, mfaSecretKey?}>. When the header decodes to a payload with
//     both an email and a password, those credentials are used.
//   - Fallback: identifier, secret, and optional MFA seed from deployment
//     configuration.
//
// Caller-supplied credentials always win over the fallback. Credentials
// implement slog.LogValuer so a value logged directly never emits the
// password or seed, only a masked email and presence flags.
package auth
