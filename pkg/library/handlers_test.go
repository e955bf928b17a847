package library

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kyonifer/silveran-reader-sub004/pkg/binder"
	"github.com/kyonifer/silveran-reader-sub004/pkg/errcodes"
	"github.com/kyonifer/silveran-reader-sub004/pkg/events"
	"github.com/kyonifer/silveran-reader-sub004/pkg/mediafile"
	"github.com/kyonifer/silveran-reader-sub004/pkg/scanner"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEcho(t *testing.T, svc *Service) *echo.Echo {
	t.Helper()
	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	RegisterRoutes(e, svc)
	return e
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

type listResponse struct {
	Books []struct {
		UUID  string            `json:"uuid"`
		Title string            `json:"title"`
		Paths map[string]string `json:"paths"`
	} `json:"books"`
	Total int `json:"total"`
}

func TestHandler_ListBooks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := f.service(t, f.client)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	e := newTestEcho(t, svc)

	rec := doRequest(e, http.MethodGet, "/books", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Equal(t, 2, all.Total)
	assert.Equal(t, "r1", all.Books[0].UUID)

	rec = doRequest(e, http.MethodGet, "/books?missing=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var missing listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &missing))
	require.Equal(t, 1, missing.Total)
	assert.Equal(t, "r1", missing.Books[0].UUID)

	rec = doRequest(e, http.MethodGet, "/books?search=local&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var search listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &search))
	require.Len(t, search.Books, 1)
	assert.Equal(t, "Local Book", search.Books[0].Title)
	assert.NotEmpty(t, search.Books[0].Paths["ebook"])

	rec = doRequest(e, http.MethodGet, "/books?offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var past listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &past))
	assert.Equal(t, 2, past.Total)
	assert.Empty(t, past.Books)

	rec = doRequest(e, http.MethodGet, "/books?variant=scroll", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_RetrieveBook(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := f.service(t, f.client)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	e := newTestEcho(t, svc)

	rec := doRequest(e, http.MethodGet, "/books/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Remote Book"`)

	rec = doRequest(e, http.MethodGet, "/books/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestHandler_ProgressAndFlush(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	e := newTestEcho(t, f.service(t, f.client))

	rec := doRequest(e, http.MethodPost, "/books/r1/progress", `{"fraction_complete": 0.4, "chapter_index": 2}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"revision":1`)

	rec = doRequest(e, http.MethodPost, "/books/r1/progress", `{"fraction_complete": 1.5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(e, http.MethodPost, "/books/r1/progress", `{"pages": 3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(e, http.MethodGet, "/sync/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = doRequest(e, http.MethodPost, "/sync/flush", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"synced":1`)

	rec = doRequest(e, http.MethodGet, "/sync/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)
}

func TestHandler_SyncDisabled(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, NewService(Options{}))

	rec := doRequest(e, http.MethodPost, "/sync/flush", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(e, http.MethodPost, "/books/r1/r1/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(e, http.MethodPost, "/books/r1/ebook/download", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_DownloadAndTransfers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := f.service(t, f.client)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	e := newTestEcho(t, svc)

	rec := doRequest(e, http.MethodPost, "/books/r1/audiobook/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(e, http.MethodPost, "/books/r1/ebook/download", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var info struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.NotEmpty(t, info.ID)

	require.Eventually(t, func() bool {
		return len(svc.Missing()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	rec = doRequest(e, http.MethodPost, "/books/r1/ebook/download", `{"resume": true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(e, http.MethodGet, "/transfers", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodDelete, "/transfers/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_UpdateBookMapsRemoteFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	e := newTestEcho(t, f.service(t, f.client))

	rec := doRequest(e, http.MethodPatch, "/books/r1", `{"title": "Renamed"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(e, http.MethodPatch, "/books/r2", `{"title": "Renamed"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "remote_not_found", errorCode(t, rec))
}

func TestHandler_EventsStream(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	hub := events.NewHub(0)
	svc := NewService(Options{
		LibraryRoot: f.root,
		Scanner:     scanner.New(mediafile.NewExtractor(mediafile.Options{}), scanner.Options{}),
		Hub:         hub,
	})
	srv := httptest.NewServer(newTestEcho(t, svc))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err = svc.Refresh(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, string(events.TypeCatalogUpdated), ev.Type)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
