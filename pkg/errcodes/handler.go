package errcodes

import (
	"net/http"

	"github.com/iancoleman/strcase"
	"github.com/kyonifer/silveran-reader-sub004/pkg/remote"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/errutils"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Handle is an Echo error handler. Errors of this package keep their status,
// failed calls to the remote server become 502s, and anything else is an
// internal server error.
func (h *Handler) Handle(err error, c echo.Context) {
	if errutils.IsIgnorableErr(err) {
		logger.FromEchoContext(c).Err(err).Warn("broken pipe")
		return
	}
	if c.Response().Committed {
		// Streams such as /events have already sent their status.
		logger.FromEchoContext(c).Err(err).Debug("error after response was committed")
		return
	}

	e := toError(err)
	switch {
	case e.HTTPCode == http.StatusInternalServerError:
		logger.FromEchoContext(c).Err(err).Error("server error")
	case e.HTTPCode == http.StatusBadGateway:
		logger.FromEchoContext(c).Err(err).Warn("remote server error")
	}

	if err := c.JSON(e.HTTPCode, payload(e)); err != nil {
		logger.FromEchoContext(c).Err(errors.WithStack(err)).Error("error handler json error")
	}
}

func toError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if remote.IsFailure(err) {
		return RemoteFailure(err)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, _ := he.Message.(string)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		return &Error{HTTPCode: he.Code, Message: msg, Code: strcase.ToSnake(msg)}
	}

	return &Error{
		HTTPCode: http.StatusInternalServerError,
		Message:  "Internal Server Error",
		Code:     "internal_server_error",
	}
}

func payload(e *Error) map[string]interface{} {
	body := map[string]interface{}{
		"code":        e.Code,
		"message":     e.Message,
		"status_code": e.HTTPCode,
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return map[string]interface{}{"error": body}
}
