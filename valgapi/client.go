// Package valgapi fetches election result documents from the upstream
// API. It owns the network policy (timeouts, retry with exponential
// backoff) so the archive core never blocks on the network.
package valgapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/eklundh/valgarkiv/entity"
	"github.com/eklundh/valgarkiv/snapshot"
)

// Client talks to the election result API.
type Client struct {
	http        *http.Client
	baseURL     string
	logger      *slog.Logger
	maxAttempts int
	retryDelay  time.Duration
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithLogger(l *slog.Logger) Option     { return func(c *Client) { c.logger = l } }

// WithBackoff overrides the retry policy: attempts tries in total, with
// delays initial, 2*initial, 4*initial, ...
func WithBackoff(attempts int, initial time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = attempts
		c.retryDelay = initial
	}
}

// NewClient builds a client for the given API base URL, e.g.
// "https://valgresultat.no/api".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{Timeout: 30 * time.Second},
		baseURL:     trimTrailingSlash(baseURL),
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: 5,
		retryDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// resultPath maps an entity to its result endpoint for an election year.
func resultPath(year string, e entity.Entity) (string, error) {
	switch e.Level {
	case entity.LevelNation:
		return fmt.Sprintf("/%s/st", year), nil
	case entity.LevelCounty:
		return fmt.Sprintf("/%s/st/%s", year, e.CountyNr), nil
	case entity.LevelMunicipality:
		return fmt.Sprintf("/%s/st/%s/%s", year, e.CountyNr, e.MunicipalityNr), nil
	case entity.LevelDistrict:
		return fmt.Sprintf("/%s/st/%s/%s/%s", year, e.CountyNr, e.MunicipalityNr, e.DistrictNr), nil
	}
	return "", fmt.Errorf("no result endpoint for level %q", e.Level)
}

// Fetch downloads the current result document for one entity.
func (c *Client) Fetch(ctx context.Context, year string, e entity.Entity) (snapshot.Document, error) {
	path, err := resultPath(year, e)
	if err != nil {
		return nil, err
	}

	var doc snapshot.Document
	if err := c.getJSON(ctx, path, &doc); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", e.Key(), err)
	}
	return doc, nil
}

// getJSON performs a GET with retries and decodes the response body.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.retryDelay << (attempt - 1)
			c.logger.Warn("retrying fetch", "url", url, "attempt", attempt+1, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		lastErr = c.getJSONOnce(ctx, url, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) getJSONOnce(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
