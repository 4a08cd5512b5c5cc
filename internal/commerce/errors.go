// Package commerce implements the authenticated client for the remote
// headless-commerce backend: typed catalog/cart/customer/checkout operations,
// lazy bearer-token refresh, and a permanent on-disk cache for product
// photography.
//
// This file centralizes the error taxonomy of the package. Callers are
// expected to branch with errors.As:
//
//   - *AuthError: the client-credentials exchange failed. Fatal for the
//     in-flight request; never retried in a loop.
//   - *BackendError: a data call returned a non-2xx status. The controller
//     recovers from these at its boundary (error screen, back to the menu).
//
// Transport-level failures (DNS, timeouts, connection resets) propagate as
// the underlying *url.Error so the HTTP client's own timeout semantics stay
// visible to callers.
package commerce

import "fmt"

// BackendError reports a non-2xx response from a commerce data call. Body
// holds the raw (truncated) response payload for logging and diagnostics.
type BackendError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("commerce backend: status %d: %s", e.Status, e.Body)
}

// AuthError reports a failed token exchange against the backend's OAuth
// endpoint. Status and Body are set when the endpoint answered with a non-2xx
// response; Err is set when the exchange failed before a status was received.
type AuthError struct {
	Status int
	Body   string
	Err    error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("commerce auth: %v", e.Err)
	}
	return fmt.Sprintf("commerce auth: status %d: %s", e.Status, e.Body)
}

// Unwrap exposes the underlying transport error, if any.
func (e *AuthError) Unwrap() error { return e.Err }
