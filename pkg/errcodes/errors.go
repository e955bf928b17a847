package errcodes

import (
	"fmt"
	"net/http"

	"github.com/iancoleman/strcase"
	"github.com/kyonifer/silveran-reader-sub004/pkg/remote"
)

type Error struct {
	HTTPCode int
	Message  string
	Code     string
	// Details is rendered next to the code and message when set.
	Details map[string]interface{}
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.HTTPCode = err.HTTPCode
	te.Message = err.Message
	te.Code = err.Code
	te.Details = err.Details
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.HTTPCode == err.HTTPCode &&
		te.Message == err.Message &&
		te.Code == err.Code
}

// NotFound returns a 404 error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		HTTPCode: http.StatusNotFound,
		Message:  resource + " not found.",
		Code:     "not_found",
		Details:  map[string]interface{}{"resource": strcase.ToSnake(resource)},
	}
}

func UnsupportedMediaType() error {
	return &Error{
		HTTPCode: http.StatusUnsupportedMediaType,
		Message:  "Unsupported Media Type",
		Code:     "unsupported_media_type",
	}
}

func UnknownParameter(param string) error {
	return &Error{
		HTTPCode: http.StatusUnprocessableEntity,
		Message:  fmt.Sprintf("Unknown Parameter %q", param),
		Code:     "unknown_parameter",
	}
}

func ValidationTypeError(msg string) error {
	return &Error{
		HTTPCode: http.StatusUnprocessableEntity,
		Message:  msg,
		Code:     "validation_type_error",
	}
}

func ValidationError(msg string) error {
	return &Error{
		HTTPCode: http.StatusUnprocessableEntity,
		Message:  msg,
		Code:     "validation_error",
	}
}

func MalformedPayload() error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  "Malformed Payload",
		Code:     "malformed_payload",
	}
}

func EmptyRequestBody() error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  "Request body can't be empty.",
		Code:     "empty_request_body",
	}
}

// Conflict returns a 409 error for a request that clashes with current state.
func Conflict(msg string) error {
	return &Error{
		HTTPCode: http.StatusConflict,
		Message:  msg,
		Code:     "conflict",
	}
}

// PayloadTooLarge returns a 413 error for a body over limit bytes.
func PayloadTooLarge(limit int64) error {
	return &Error{
		HTTPCode: http.StatusRequestEntityTooLarge,
		Message:  fmt.Sprintf("Request body can't be larger than %d bytes.", limit),
		Code:     "payload_too_large",
	}
}

// RemoteFailure returns a 502 error for a call to the remote server that
// didn't succeed. The code names how it failed, and the status the server
// answered with is included when there was one.
func RemoteFailure(err error) *Error {
	kind := remote.KindOf(err)
	details := map[string]interface{}{"kind": string(kind)}
	if status := remote.StatusCode(err); status != 0 {
		details["remote_status"] = status
	}
	return &Error{
		HTTPCode: http.StatusBadGateway,
		Message:  remoteMessages[kind],
		Code:     "remote_" + string(kind),
		Details:  details,
	}
}

var remoteMessages = map[remote.FailureKind]string{
	remote.FailureUnauthorized:     "The remote server rejected our credentials.",
	remote.FailureNotFound:         "The remote server doesn't know this resource.",
	remote.FailureUnexpectedStatus: "The remote server answered with an unexpected status.",
	remote.FailureNonHTTPResponse:  "The remote server couldn't be reached.",
}

func ServiceUnavailable(msg string) error {
	return &Error{
		HTTPCode: http.StatusServiceUnavailable,
		Message:  msg,
		Code:     "service_unavailable",
	}
}
