// Package apierr provides the error taxonomy shared across codr's
// components: a small, closed set of kinds that every public boundary
// (HTTP handler, WebSocket handshake, worker loop) maps to a stable
// HTTP status or WS close code.
package apierr

import "fmt"

// Kind is a closed enum of error categories.
type Kind int

const (
	// InvalidInput indicates malformed or out-of-policy request data.
	InvalidInput Kind = iota
	// AuthMissing indicates no credential was presented.
	AuthMissing
	// AuthInvalid indicates a credential was presented but rejected.
	AuthInvalid
	// RateLimited indicates a caller exceeded an IP or key rate limit.
	RateLimited
	// ScreeningRejected indicates static code screening rejected the submission.
	ScreeningRejected
	// JobNotFound indicates the referenced job record is absent or expired.
	// This is not surfaced as an error to callers — GetResult returns
	// status "unknown" with a 200 — but the kind exists so internal
	// helpers can distinguish "absent" from "broker unreachable".
	JobNotFound
	// BrokerTransient indicates a retryable broker transport error.
	BrokerTransient
	// BrokerUnavailable indicates retries were exhausted against the broker.
	BrokerUnavailable
	// SandboxFailure indicates the external sandbox failed to execute the job.
	SandboxFailure
	// ControlPlaneFailure indicates a machine control-plane call failed.
	ControlPlaneFailure
	// InternalBug indicates an unexpected internal error.
	InternalBug
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case AuthMissing:
		return "auth_missing"
	case AuthInvalid:
		return "auth_invalid"
	case RateLimited:
		return "rate_limited"
	case ScreeningRejected:
		return "screening_rejected"
	case JobNotFound:
		return "job_not_found"
	case BrokerTransient:
		return "broker_transient"
	case BrokerUnavailable:
		return "broker_unavailable"
	case SandboxFailure:
		return "sandbox_failure"
	case ControlPlaneFailure:
		return "control_plane_failure"
	case InternalBug:
		return "internal_bug"
	default:
		return "unknown"
	}
}

// Error is a typed error carrying enough to map to an HTTP status or WS
// close code at the boundary, without every component re-deriving it.
type Error struct {
	Kind    Kind
	Message string
	Detail  string // e.g. the triggering keyword/pattern for ScreeningRejected
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithDetail attaches a detail string (e.g. the screening match) and
// returns the same error for chaining.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// ToHTTPStatus maps a Kind to its HTTP status code per the error taxonomy.
func (k Kind) ToHTTPStatus() int {
	switch k {
	case InvalidInput, ScreeningRejected:
		return 400
	case AuthMissing:
		return 401
	case AuthInvalid:
		return 403
	case RateLimited:
		return 429
	case JobNotFound:
		return 200
	case BrokerUnavailable, InternalBug:
		return 500
	default:
		return 500
	}
}

// WS close codes per RFC 6455 / the stream protocol in use.
const (
	WSCloseNormal          = 1000
	WSClosePolicyViolation = 1008
	WSCloseInternalError   = 1011
)

// ToCloseCode maps a Kind to its WebSocket close code.
func (k Kind) ToCloseCode() int {
	switch k {
	case AuthMissing, AuthInvalid, RateLimited:
		return WSClosePolicyViolation
	case InternalBug, BrokerUnavailable:
		return WSCloseInternalError
	default:
		return WSCloseNormal
	}
}

// As extracts an *Error from a generic error, returning (nil, false) if it
// isn't one — mirrors the stdlib errors.As convenience without pulling in
// the whole unwrap chain, since apierr.Error values are never wrapped.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
