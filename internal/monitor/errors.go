package monitor

import (
	"context"
	"errors"
)

// Failure classes a Source reports by wrapping one of these with %w.
var (
	// ErrConnection covers unreachable servers and transport failures.
	ErrConnection = errors.New("connection error")
	// ErrAuthentication means the credentials were rejected.
	ErrAuthentication = errors.New("authentication error")
	// ErrMalformedResponse means the payload was missing expected fields
	// or could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// ErrAlreadyStarted is returned by Start on a coordinator that was started
// or stopped before. Coordinators are single-use.
var ErrAlreadyStarted = errors.New("monitor: coordinator already started")

// Error kinds as reported in logs, status and metrics.
const (
	KindConnection     = "connection"
	KindAuthentication = "authentication"
	KindMalformed      = "malformed_response"
	KindCanceled       = "canceled"
	KindUnknown        = "unknown"
)

// ErrorKind classifies err into one of the Kind constants. A nil error has
// no kind.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}
