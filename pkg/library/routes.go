package library

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/kyonifer/silveran-reader-sub004/pkg/binder"
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, svc *Service) {
	h := &handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is local and already allows any origin through CORS.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	books := e.Group("/books")
	books.GET("", h.list)
	books.GET("/:uuid", h.retrieve)
	books.PATCH("/:uuid", h.update)
	books.POST("/:uuid/progress", h.enqueueProgress)
	books.POST("/:uuid/:variant/download", h.download, binder.AllowEmptyBody)
	books.POST("/:uuid/:variant/upload", h.upload)

	e.POST("/collections/:uuid/books", h.addToCollection)

	lib := e.Group("/library")
	lib.POST("/refresh", h.refresh)
	lib.GET("/missing", h.missing)
	lib.POST("/download-missing", h.downloadMissing, binder.AllowEmptyBody)

	sync := e.Group("/sync")
	sync.POST("/flush", h.flush)
	sync.GET("/pending", h.pending)

	e.GET("/transfers", h.transfers)
	e.DELETE("/transfers/:id", h.cancelTransfer)

	e.GET("/events", h.events)
}
