package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errs "collectordl/pkg/errors"
	"collectordl/pkg/logger"
	"collectordl/pkg/models"
)

// DefaultBaseURL is the osu!collector site
const DefaultBaseURL = "https://osucollector.com"

// maxResponseSize bounds a collection document
const maxResponseSize = 32 << 20

// Options configures a Client
type Options struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between retries
	RetryDelay time.Duration
}

// Client reads collections from the osu!collector API
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	logger     logger.Logger
}

// NewClient creates a new catalog client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "collectordl"
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		headers: map[string]string{
			"User-Agent": opts.UserAgent,
			"Accept":     "application/json",
		},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		logger:     log.WithField("component", "catalog"),
	}
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// collectionResponse is the subset of the API document we use
type collectionResponse struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Uploader struct {
		Username string `json:"username"`
	} `json:"uploader"`
	Beatmapsets []struct {
		ID      int    `json:"id"`
		Artist  string `json:"artist"`
		Title   string `json:"title"`
		Creator string `json:"creator"`
	} `json:"beatmapsets"`
}

// CollectionURL returns the API URL of collection id
func (c *Client) CollectionURL(id int) string {
	return fmt.Sprintf("%s/api/collections/%d", c.baseURL, id)
}

// GetCollection fetches collection id. Duplicate beatmapsets are dropped,
// keeping the first occurrence.
func (c *Client) GetCollection(ctx context.Context, id int) (*models.Collection, error) {
	resp, err := c.doRequestWithRetry(ctx, c.CollectionURL(id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.FromStatus(resp.StatusCode)
	}

	var doc collectionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&doc); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to decode collection")
	}

	collection := &models.Collection{
		ID:       doc.ID,
		Name:     doc.Name,
		Uploader: doc.Uploader.Username,
	}
	if collection.ID == 0 {
		collection.ID = id
	}

	seen := make(map[int]struct{}, len(doc.Beatmapsets))
	for _, set := range doc.Beatmapsets {
		if set.ID <= 0 {
			continue
		}
		if _, dup := seen[set.ID]; dup {
			continue
		}
		seen[set.ID] = struct{}{}
		collection.Targets = append(collection.Targets, models.Target{
			ID:          set.ID,
			DisplayName: displayName(set.Artist, set.Title),
		})
	}

	c.logger.InfoWithFields("Collection fetched", map[string]interface{}{
		"collection_id": collection.ID,
		"name":          collection.Name,
		"uploader":      collection.Uploader,
		"beatmapsets":   len(collection.Targets),
	})
	return collection, nil
}

func displayName(artist, title string) string {
	switch {
	case artist != "" && title != "":
		return artist + " - " + title
	case title != "":
		return title
	default:
		return artist
	}
}

// FromIDs builds an ad-hoc collection from an explicit id list, dropping
// non-positive and duplicate ids
func FromIDs(name string, ids []int) *models.Collection {
	collection := &models.Collection{Name: name}
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		collection.Targets = append(collection.Targets, models.Target{ID: id})
	}
	return collection
}

// doRequest performs one GET with the configured headers
func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "network error")
	}

	logger.LogRequest(c.logger, req.Method, url, resp.StatusCode, duration)
	return resp, nil
}

// doRequestWithRetry repeats network errors and retryable statuses up to
// maxRetries times with a linear delay
func (c *Client) doRequestWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WarnWithFields("Retrying HTTP request", map[string]interface{}{
				"url":     url,
				"attempt": attempt,
				"error":   lastErr.Error(),
			})

			timer := time.NewTimer(c.retryDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		resp, err := c.doRequest(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if errs.IsRetryableStatusCode(resp.StatusCode) {
			lastErr = errs.FromStatus(resp.StatusCode)
			resp.Body.Close()
			continue
		}

		return resp, nil
	}

	c.logger.ErrorWithFields("Max retries exceeded", map[string]interface{}{
		"url":         url,
		"max_retries": c.maxRetries,
		"last_error":  lastErr.Error(),
	})
	return nil, lastErr
}
