// Package apperr is the error taxonomy shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	InvalidInput  Code = "INVALID_INPUT"
	NotConfigured Code = "NOT_CONFIGURED"
	RateLimited   Code = "RATE_LIMITED"
	NotFound      Code = "NOT_FOUND"
	Conflict      Code = "CONFLICT"
	Upstream      Code = "UPSTREAM_ERROR"
	Internal      Code = "INTERNAL_ERROR"
)

// Error carries a machine code, a client-safe reason and the wrapped cause.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func Invalid(reason string) *Error {
	return New(InvalidInput, reason, nil)
}

func Unconfigured(reason string) *Error {
	return New(NotConfigured, reason, nil)
}

func UpstreamErr(reason string, err error) *Error {
	return New(Upstream, reason, err)
}

func InternalErr(reason string, err error) *Error {
	return New(Internal, reason, err)
}

// statusCoder is implemented by provider errors that know the upstream status.
type statusCoder interface {
	HTTPStatusCode() int
}

// Status maps err to the HTTP status the API should answer with.
//
// Upstream 429s and 404s are mirrored. Other upstream 4xx answers are the
// server's own fault (bad key, bad payload), so they surface as 502.
func Status(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}

	switch ae.Code {
	case InvalidInput:
		return http.StatusBadRequest
	case NotConfigured:
		return http.StatusServiceUnavailable
	case RateLimited:
		return http.StatusTooManyRequests
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Upstream:
		var sc statusCoder
		if errors.As(ae.Err, &sc) {
			switch code := sc.HTTPStatusCode(); {
			case code == http.StatusTooManyRequests, code == http.StatusNotFound:
				return code
			case code >= 500:
				return http.StatusBadGateway
			}
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Reason != "" {
		return ae.Reason
	}
	return "Internal server error"
}
