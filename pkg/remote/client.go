package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kyonifer/silveran-reader-sub004/pkg/version"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

const defaultTimeout = 30 * time.Second

type Options struct {
	BaseURL string
	// Token is sent as a bearer token. JWTs are checked for expiry before
	// every request; opaque tokens are sent as is.
	Token string
	// Timeout applies when HTTPClient is nil.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the remote catalog server. It never retries on its own.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	now        func() time.Time
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Configured reports whether a remote server was set up at all.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// checkToken fails fast when the token is a JWT that has already expired.
func (c *Client) checkToken() error {
	if c.token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !exp.After(c.now()) {
		return errors.Wrap(ErrUnauthorized, "token expired")
	}
	return nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return c.baseURL + "/api/v2/" + strings.Join(escaped, "/")
}

// do sends req after attaching auth headers. The caller owns resp.Body.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.checkToken(); err != nil {
		return nil, err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	log := logger.FromContext(ctx)
	log.Debug("remote request", logger.Data{"method": req.Method, "url": req.URL.String()})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.WithStack(ctxErr)
		}
		return nil, errors.Wrap(ErrNonHTTPResponse, err.Error())
	}
	return resp, nil
}

type jsonCall struct {
	method   string
	endpoint string
	header   http.Header
	// body is encoded as the request body when non-nil.
	body interface{}
	// out receives the decoded response when non-nil.
	out     interface{}
	allowed []int
}

func (c *Client) doJSON(ctx context.Context, call jsonCall) (*http.Response, error) {
	var reader io.Reader
	if call.body != nil {
		b, err := json.Marshal(call.body)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, call.endpoint, reader)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for k, vs := range call.header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")
	if call.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, call.allowed...); err != nil {
		return resp, err
	}

	if call.out == nil || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotModified {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(call.out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return resp, errors.WithStack(ctxErr)
		}
		return resp, errors.Wrapf(ErrNonHTTPResponse, "decoding response: %s", err.Error())
	}
	return resp, nil
}
