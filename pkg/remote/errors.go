package remote

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrNonHTTPResponse covers every failure where no usable HTTP response
	// came back: dial errors, broken connections, undecodable bodies.
	ErrNonHTTPResponse = errors.New("non-http response")
)

// StatusError is returned for any status outside the allowed set of a call.
// It unwraps to ErrUnauthorized, ErrNotFound or ErrUnexpectedStatus.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote responded with status %d", e.Code)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return ErrUnexpectedStatus
}

type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureNonHTTPResponse  FailureKind = "non_http_response"
	FailureUnauthorized     FailureKind = "unauthorized"
	FailureNotFound         FailureKind = "not_found"
	FailureUnexpectedStatus FailureKind = "unexpected_status"
)

// KindOf classifies err. Anything that isn't a status error is treated as a
// non-HTTP failure.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrUnauthorized):
		return FailureUnauthorized
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	case errors.Is(err, ErrUnexpectedStatus):
		return FailureUnexpectedStatus
	}
	return FailureNonHTTPResponse
}

// IsFailure reports whether err came from a call to the remote server.
func IsFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnexpectedStatus) ||
		errors.Is(err, ErrNonHTTPResponse)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// checkStatus maps a response status. 2xx and the explicitly allowed codes
// are success.
func checkStatus(resp *http.Response, allowed ...int) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	for _, code := range allowed {
		if resp.StatusCode == code {
			return nil
		}
	}
	return errors.WithStack(&StatusError{Code: resp.StatusCode})
}
