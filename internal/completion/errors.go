package completion

import (
	"fmt"
	"net/http"
)

// TerminalError is a domain-level failure: the whole completion fails, the
// failure response is cached on the key, and retries replay it without
// re-attempting side effects.
type TerminalError struct {
	Code    int    // HTTP-shaped status code persisted with the response
	Kind    string // machine-readable tag, e.g. "cart_not_found"
	Message string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Terminal builds a TerminalError.
func Terminal(code int, kind, message string) *TerminalError {
	return &TerminalError{Code: code, Kind: kind, Message: message}
}

// NotFound is a terminal failure for a missing cart/order/variant.
func NotFound(kind, message string) *TerminalError {
	return &TerminalError{Code: http.StatusNotFound, Kind: kind, Message: message}
}

// RecoverableError is a transient failure inside a step. The recovery point
// does not advance and the client may retry the same request.
type RecoverableError struct {
	Err error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("recoverable step failure: %v", e.Err)
}

func (e *RecoverableError) Unwrap() error { return e.Err }

// Recoverable wraps a transient failure.
func Recoverable(err error) *RecoverableError {
	return &RecoverableError{Err: err}
}
