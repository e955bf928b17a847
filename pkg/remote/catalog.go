package remote

import (
	"context"
	"net/http"

	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
)

type FetchOptions struct {
	// ETag of the last successful fetch, sent as If-None-Match.
	ETag string
}

type CatalogResponse struct {
	Books []*models.Book
	ETag  string
	// NotModified is set when the server confirmed the ETag is current. Books
	// is empty in that case.
	NotModified bool
}

// FetchCatalog lists every book the server knows about.
func (c *Client) FetchCatalog(ctx context.Context, opts FetchOptions) (*CatalogResponse, error) {
	header := http.Header{}
	if opts.ETag != "" {
		header.Set("If-None-Match", opts.ETag)
	}

	var dtos []bookDTO
	resp, err := c.doJSON(ctx, jsonCall{
		method:   http.MethodGet,
		endpoint: c.endpoint("books"),
		header:   header,
		out:      &dtos,
		allowed:  []int{http.StatusNotModified},
	})
	if err != nil {
		return nil, err
	}

	out := &CatalogResponse{ETag: resp.Header.Get("ETag")}
	if resp.StatusCode == http.StatusNotModified {
		out.NotModified = true
		if out.ETag == "" {
			out.ETag = opts.ETag
		}
		return out, nil
	}
	out.Books = mapBooks(dtos)
	return out, nil
}
