package remote

import (
	"context"
	"net/http"

	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
)

// SendProgress records a playback position for a book.
func (c *Client) SendProgress(ctx context.Context, bookUUID string, payload models.ProgressPayload) error {
	_, err := c.doJSON(ctx, jsonCall{
		method:   http.MethodPost,
		endpoint: c.endpoint("books", bookUUID, "positions"),
		body:     positionToDTO(payload),
	})
	return err
}

// UpdateBook sends the present fields of update. An empty update is a no-op.
func (c *Client) UpdateBook(ctx context.Context, bookUUID string, update models.BookUpdate) error {
	if update.Empty() {
		return nil
	}
	_, err := c.doJSON(ctx, jsonCall{
		method:   http.MethodPut,
		endpoint: c.endpoint("books", bookUUID),
		body:     bookUpdateToDTO(update),
	})
	return err
}

func (c *Client) AddToCollection(ctx context.Context, collectionUUID string, bookUUIDs []string) error {
	_, err := c.doJSON(ctx, jsonCall{
		method:   http.MethodPost,
		endpoint: c.endpoint("collections", collectionUUID, "books"),
		body:     collectionBooksDTO{Books: bookUUIDs},
	})
	return err
}
