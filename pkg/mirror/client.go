package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errs "collectordl/pkg/errors"
	"collectordl/pkg/logger"
)

// Response is what a mirror returned for one beatmapset.
// The caller owns Body and must close it.
type Response struct {
	StatusCode    int
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// HasBody reports whether the response carries a payload to save
func (r *Response) HasBody() bool {
	return r != nil && r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

// Close releases the body
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// TokenSource supplies an optional bearer token per mirror host
type TokenSource interface {
	Token(host string) (string, error)
}

// Options configures a Client
type Options struct {
	// Primary and Alternate are URL templates with a single %d for the id
	Primary   string
	Alternate string
	UserAgent string
	Timeout   time.Duration
	Tokens    TokenSource
}

// Client downloads beatmapset archives from the primary or alternate mirror
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	primary    string
	alternate  string
	tokens     TokenSource
	logger     logger.Logger
}

// NewClient creates a new mirror client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "collectordl"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		headers: map[string]string{
			"User-Agent": opts.UserAgent,
			"Accept":     "application/octet-stream, application/x-osu-beatmap-archive, */*",
		},
		primary:   opts.Primary,
		alternate: opts.Alternate,
		tokens:    opts.Tokens,
		logger:    log.WithField("component", "mirror"),
	}
}

// SetHeader sets a custom header for every request
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// URL returns the download URL of id on the selected mirror
func (c *Client) URL(id int, useAlternate bool) string {
	if useAlternate {
		return fmt.Sprintf(c.alternate, id)
	}
	return fmt.Sprintf(c.primary, id)
}

// Fetch requests the archive for id. Any HTTP status is returned as a
// Response; only failures to get a response at all are errors.
func (c *Client) Fetch(ctx context.Context, id int, useAlternate bool) (*Response, error) {
	rawURL := c.URL(id, useAlternate)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	c.applyHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.DebugWithFields("HTTP request failed", map[string]interface{}{
			"beatmapset_id": id,
			"url":           rawURL,
			"error":         err.Error(),
			"duration":      duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "network error")
	}

	logger.LogRequest(c.logger, req.Method, rawURL, resp.StatusCode, duration)

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
	}, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if c.tokens == nil {
		return
	}
	host := HostOf(req.URL.String())
	if token, err := c.tokens.Token(host); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// HostOf returns the lower-cased host of a URL or URL template
func HostOf(rawURL string) string {
	u, err := url.Parse(strings.ReplaceAll(rawURL, "%d", "0"))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
