package remote

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/pkg/errors"
)

// AssetRef names one asset of one book on the server.
type AssetRef struct {
	BookUUID string         `json:"book_uuid"`
	Variant  models.Variant `json:"variant"`
}

func (r AssetRef) String() string {
	return r.BookUUID + "/" + string(r.Variant)
}

// ResponseDescription is what the server told us about a download before
// any body bytes were read.
type ResponseDescription struct {
	Filename string `json:"filename"`
	// ExpectedBytes is the full size of the asset, or nil when the server
	// didn't say.
	ExpectedBytes *int64 `json:"expected_bytes,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	ETag          string `json:"etag,omitempty"`
	LastModified  string `json:"last_modified,omitempty"`
	// Offset is where the body starts within the asset. It is non-zero only
	// when a range request was honoured.
	Offset int64 `json:"offset"`
}

type DownloadOptions struct {
	// Offset requests the asset from this byte on.
	Offset int64
	// IfRange makes the range conditional on the validator still matching.
	IfRange string
}

// DownloadStream is an open download. The caller must close Body.
type DownloadStream struct {
	Description ResponseDescription
	Body        io.ReadCloser
}

// OpenDownload starts streaming an asset.
func (c *Client) OpenDownload(ctx context.Context, ref AssetRef, opts DownloadOptions) (*DownloadStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.assetURL(ref), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if opts.Offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", opts.Offset))
		if opts.IfRange != "" {
			req.Header.Set("If-Range", opts.IfRange)
		}
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, err
	}

	return &DownloadStream{
		Description: describe(resp, ref),
		Body:        resp.Body,
	}, nil
}

// Upload streams body to the asset's URL. size may be -1 when unknown.
func (c *Client) Upload(ctx context.Context, ref AssetRef, body io.Reader, size int64, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.assetURL(ref), body)
	if err != nil {
		return errors.WithStack(err)
	}
	req.ContentLength = size
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return checkStatus(resp)
}

func (c *Client) assetURL(ref AssetRef) string {
	return c.endpoint("books", ref.BookUUID, string(ref.Variant), "file")
}

func describe(resp *http.Response, ref AssetRef) ResponseDescription {
	d := ResponseDescription{
		Filename:     filenameFor(resp, ref),
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	if resp.StatusCode == http.StatusPartialContent {
		start, total, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if ok {
			d.Offset = start
			if total >= 0 {
				d.ExpectedBytes = &total
			} else if resp.ContentLength >= 0 {
				size := start + resp.ContentLength
				d.ExpectedBytes = &size
			}
			return d
		}
	}

	if resp.ContentLength >= 0 {
		size := resp.ContentLength
		d.ExpectedBytes = &size
	}
	return d
}

func filenameFor(resp *http.Response, ref AssetRef) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" && !strings.ContainsAny(name, `/\`) {
				return name
			}
		}
	}
	ext := ".epub"
	if ref.Variant == models.VariantAudiobook {
		ext = ".m4b"
	}
	return ref.BookUUID + ext
}

// parseContentRange reads "bytes start-end/total". total is -1 for "*".
func parseContentRange(v string) (start, total int64, ok bool) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "bytes ") {
		return 0, 0, false
	}
	rangePart, totalPart, found := strings.Cut(strings.TrimPrefix(v, "bytes "), "/")
	if !found {
		return 0, 0, false
	}
	startPart, _, found := strings.Cut(rangePart, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(startPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if totalPart == "*" {
		return start, -1, true
	}
	total, err = strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, total, true
}
