// Package tradeerr defines the error taxonomy surfaced by the SDK's
// outward-facing operations: transport failures, timeouts, rejected
// trades, validation failures and internal faults, each distinguished
// so callers can branch with errors.As instead of string matching.
package tradeerr

import "fmt"

// TransportError wraps a failure to reach the API or stream transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tradeerr: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError is returned when an operation did not complete within
// its deadline.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tradeerr: %s timed out", e.Op)
}

// TradeError is a rejected trade request, carrying both the numeric
// and string error codes the remote terminal returned so callers can
// match on whichever they already key off of.
type TradeError struct {
	NumericCode int
	StringCode  string
	Message     string
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("tradeerr: trade rejected (%s/%d): %s", e.StringCode, e.NumericCode, e.Message)
}

// ValidationError is returned when a request was rejected before it
// ever reached the transport, e.g. an empty symbol or a negative
// volume.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tradeerr: invalid %s: %s", e.Field, e.Message)
}

// InternalError wraps an unexpected failure within the SDK itself,
// distinct from anything the remote side returned.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("tradeerr: internal error: %v", e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }
