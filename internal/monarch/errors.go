// ABOUTME: Error taxonomy for the upstream session client
// ABOUTME: Distinguishes login failures, expired sessions, GraphQL errors, and transport faults

package monarch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMFARequired is returned when the upstream demands a second factor and
// the credentials carried neither a code nor a seed to derive one from.
var ErrMFARequired = errors.New("multi-factor authentication required")

// ErrAuthExpired is returned when a call still gets a 401 after the single
// transparent re-authentication. The credentials no longer produce a usable
// session, so there is no point in a third attempt.
var ErrAuthExpired = errors.New("upstream session expired after re-authentication")

// LoginError reports a failed login attempt, carrying the upstream status
// and response body for diagnostics.
type LoginError struct {
	Status int
	Body   string
}

func (e *LoginError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream login failed: %s", e.Body)
	}
	return fmt.Sprintf("upstream login failed: status %d: %s", e.Status, e.Body)
}

// OperationError reports application-level errors: a 2xx GraphQL response
// whose envelope carried a non-empty error list.
type OperationError struct {
	Operation string
	Messages  []string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("upstream operation %s failed: %s", e.Operation, strings.Join(e.Messages, "; "))
}

// TransportError reports a non-2xx response or a failed HTTP exchange.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream request failed: %s", e.Body)
	}
	return fmt.Sprintf("upstream request failed: status %d: %s", e.Status, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DateRangeError reports a half-open date window: filters must supply both
// ends or neither.
type DateRangeError struct {
	Have    string
	Missing string
}

func (e *DateRangeError) Error() string {
	return fmt.Sprintf("invalid date range: %s supplied without %s", e.Have, e.Missing)
}
