package library

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kyonifer/silveran-reader-sub004/pkg/downloads"
	"github.com/kyonifer/silveran-reader-sub004/pkg/errcodes"
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/kyonifer/silveran-reader-sub004/pkg/progresssync"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

const eventWriteTimeout = 5 * time.Second

type handler struct {
	svc      *Service
	upgrader websocket.Upgrader
}

type bookResponse struct {
	*models.Book
	Paths models.MediaPaths `json:"paths,omitempty"`
}

func (h *handler) list(c echo.Context) error {
	params := ListBooksQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	catalog := h.svc.Snapshot()
	matched := make([]bookResponse, 0, len(catalog.Books))
	for _, b := range catalog.Books {
		if !matchesQuery(b, params) {
			continue
		}
		matched = append(matched, bookResponse{b, catalog.Paths[b.UUID]})
	}

	total := len(matched)
	start := min(params.Offset, total)
	end := min(start+params.Limit, total)

	resp := struct {
		Books       []bookResponse `json:"books"`
		Total       int            `json:"total"`
		GeneratedAt time.Time      `json:"generated_at"`
	}{matched[start:end], total, catalog.GeneratedAt}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func matchesQuery(b *models.Book, q ListBooksQuery) bool {
	if q.Variant != nil && b.Asset(models.Variant(*q.Variant)) == nil {
		return false
	}
	if q.Missing != nil {
		anyMissing := false
		for _, v := range b.Variants() {
			if b.Asset(v).Missing {
				anyMissing = true
				break
			}
		}
		if anyMissing != *q.Missing {
			return false
		}
	}
	if q.Search != nil && *q.Search != "" {
		needle := strings.ToLower(*q.Search)
		if strings.Contains(strings.ToLower(b.Title), needle) {
			return true
		}
		for _, name := range b.Authors() {
			if strings.Contains(strings.ToLower(name), needle) {
				return true
			}
		}
		return false
	}
	return true
}

func (h *handler) retrieve(c echo.Context) error {
	book, paths, err := h.svc.Book(c.Param("uuid"))
	if err != nil {
		return mapError(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, bookResponse{book, paths}))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	params := UpdateBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.svc.UpdateBook(ctx, c.Param("uuid"), params.toUpdate()); err != nil {
		return mapError(err)
	}
	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) addToCollection(c echo.Context) error {
	ctx := c.Request().Context()

	params := AddToCollectionPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.svc.AddToCollection(ctx, c.Param("uuid"), params.BookUUIDs); err != nil {
		return mapError(err)
	}
	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) refresh(c echo.Context) error {
	result, err := h.svc.Refresh(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, result))
}

func (h *handler) missing(c echo.Context) error {
	missing := h.svc.Missing()
	if missing == nil {
		missing = []models.MissingAsset{}
	}
	return errors.WithStack(c.JSON(http.StatusOK, missing))
}

func (h *handler) enqueueProgress(c echo.Context) error {
	ctx := c.Request().Context()

	params := ProgressPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	entry, err := h.svc.EnqueueProgress(ctx, c.Param("uuid"), params.toPayload())
	if err != nil {
		return mapError(err)
	}
	return errors.WithStack(c.JSON(http.StatusAccepted, entry))
}

func (h *handler) flush(c echo.Context) error {
	result, err := h.svc.FlushProgress(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, result))
}

func (h *handler) pending(c echo.Context) error {
	entries, err := h.svc.PendingProgress(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	if entries == nil {
		entries = []*models.SyncEntry{}
	}

	resp := struct {
		Entries []*models.SyncEntry `json:"entries"`
		Total   int                 `json:"total"`
	}{entries, len(entries)}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) download(c echo.Context) error {
	params := DownloadPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	variant, err := models.ParseVariant(c.Param("variant"))
	if err != nil {
		return errcodes.NotFound("Asset")
	}

	// The transfer outlives the request.
	ctx := context.WithoutCancel(c.Request().Context())
	session, err := h.svc.DownloadAsset(ctx, c.Param("uuid"), variant, downloads.Options{Resume: params.Resume})
	if err != nil {
		return mapError(err)
	}
	return errors.WithStack(c.JSON(http.StatusAccepted, session.Info()))
}

func (h *handler) downloadMissing(c echo.Context) error {
	params := DownloadPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	ctx := context.WithoutCancel(c.Request().Context())
	sessions, err := h.svc.DownloadMissing(ctx, downloads.Options{Resume: params.Resume})
	if err != nil {
		return mapError(err)
	}

	infos := make([]downloads.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return errors.WithStack(c.JSON(http.StatusAccepted, infos))
}

func (h *handler) upload(c echo.Context) error {
	variant, err := models.ParseVariant(c.Param("variant"))
	if err != nil {
		return errcodes.NotFound("Asset")
	}

	result, err := h.svc.UploadAsset(c.Request().Context(), c.Param("uuid"), variant)
	if err != nil {
		return mapError(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, result))
}

func (h *handler) transfers(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, h.svc.Transfers()))
}

func (h *handler) cancelTransfer(c echo.Context) error {
	if !h.svc.CancelTransfer(c.Param("id")) {
		return errcodes.NotFound("Transfer")
	}
	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

// events streams catalog, transfer and sync events over a websocket until
// the client goes away.
func (h *handler) events(c echo.Context) error {
	log := logger.FromContext(c.Request().Context())

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote the response.
		log.Err(err).Warn("websocket upgrade failed")
		return nil
	}
	defer ws.Close()

	id, ch := h.svc.Subscribe()
	defer h.svc.Unsubscribe(id)

	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				h.svc.Unsubscribe(id)
				return
			}
		}
	}()

	for ev := range ch {
		_ = ws.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		if err := ws.WriteJSON(ev); err != nil {
			log.Err(err).Debug("event stream closed")
			return nil
		}
	}
	return nil
}

// mapError turns service errors into API errors.
func mapError(err error) error {
	switch {
	case errors.Is(err, ErrBookNotFound):
		return errcodes.NotFound("Book")
	case errors.Is(err, ErrAssetNotDeclared):
		return errcodes.NotFound("Asset")
	case errors.Is(err, ErrAssetPresent):
		return errcodes.Conflict("Asset is already present locally.")
	case errors.Is(err, downloads.ErrTransferInProgress):
		return errcodes.Conflict("A transfer for this asset is already in progress.")
	case errors.Is(err, ErrRemoteNotConfigured):
		return errcodes.ServiceUnavailable("No remote server is configured.")
	case errors.Is(err, ErrSyncDisabled):
		return errcodes.ServiceUnavailable("Progress sync is not available.")
	case errors.Is(err, progresssync.ErrMissingBookUUID):
		return errcodes.ValidationError(`"uuid" is required`)
	}
	// Remote failures keep their chain for the error handler.
	return errors.WithStack(err)
}
