package errcodes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kyonifer/silveran-reader-sub004/pkg/remote"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error struct {
		Code       string                 `json:"code"`
		Message    string                 `json:"message"`
		StatusCode int                    `json:"status_code"`
		Details    map[string]interface{} `json:"details"`
	} `json:"error"`
}

func handle(t *testing.T, err error) (int, errorBody) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	NewHandler().Handle(err, c)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, rec.Code, body.Error.StatusCode)
	return rec.Code, body
}

func TestHandle(t *testing.T) {
	t.Parallel()

	t.Run("not found names the resource", func(t *testing.T) {
		code, body := handle(t, errors.WithStack(NotFound("Book")))
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "not_found", body.Error.Code)
		assert.Equal(t, "Book not found.", body.Error.Message)
		assert.Equal(t, map[string]interface{}{"resource": "book"}, body.Error.Details)
	})

	t.Run("remote status errors become bad gateway", func(t *testing.T) {
		err := errors.Wrap(&remote.StatusError{Code: http.StatusNotFound}, "update book")
		code, body := handle(t, err)
		assert.Equal(t, http.StatusBadGateway, code)
		assert.Equal(t, "remote_not_found", body.Error.Code)
		assert.Equal(t, "not_found", body.Error.Details["kind"])
		assert.EqualValues(t, http.StatusNotFound, body.Error.Details["remote_status"])
	})

	t.Run("rejected credentials", func(t *testing.T) {
		code, body := handle(t, errors.WithStack(&remote.StatusError{Code: http.StatusForbidden}))
		assert.Equal(t, http.StatusBadGateway, code)
		assert.Equal(t, "remote_unauthorized", body.Error.Code)
	})

	t.Run("unreachable remote has no status", func(t *testing.T) {
		code, body := handle(t, errors.Wrap(remote.ErrNonHTTPResponse, "dial tcp: refused"))
		assert.Equal(t, http.StatusBadGateway, code)
		assert.Equal(t, "remote_non_http_response", body.Error.Code)
		assert.NotContains(t, body.Error.Details, "remote_status")
	})

	t.Run("echo errors keep their status", func(t *testing.T) {
		code, body := handle(t, echo.NewHTTPError(http.StatusMethodNotAllowed, "Method Not Allowed"))
		assert.Equal(t, http.StatusMethodNotAllowed, code)
		assert.Equal(t, "method_not_allowed", body.Error.Code)
		assert.Nil(t, body.Error.Details)
	})

	t.Run("anything else is internal", func(t *testing.T) {
		code, body := handle(t, errors.New("disk on fire"))
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "internal_server_error", body.Error.Code)
		assert.NotContains(t, body.Error.Message, "disk")
	})
}

func TestError_IsComparesCodes(t *testing.T) {
	t.Parallel()

	err := errors.Wrap(Conflict("Asset is already present locally."), "download")
	assert.ErrorIs(t, err, Conflict("Asset is already present locally."))
	assert.NotErrorIs(t, err, Conflict("something else"))

	var e *Error
	require.ErrorAs(t, NotFound("Transfer"), &e)
	assert.Equal(t, "transfer", e.Details["resource"])
}
