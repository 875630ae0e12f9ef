// Package steam implements source.Source against the Steam store: the HTML
// search listing, the appdetails API and the review histogram.
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/steam-harvest/pkg/fetcher"
	"github.com/lisanmuaddib/steam-harvest/pkg/source"
)

// maxBodySize bounds how much of a response is read.
const maxBodySize = 16 << 20

// ClientOption allows for customization of the client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// Client talks to the Steam store. Every method performs a single request;
// the caller is expected to run it through a fetcher.Fetcher.
type Client struct {
	config *Config
	http   *http.Client
	logger *logrus.Logger
}

var _ source.Source = (*Client)(nil)

// NewClient creates a Steam client. Timeouts come from the caller's context.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := &Client{
		config: config,
		http:   &http.Client{},
		logger: config.Logger,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// get performs a GET and returns the body of a 200 response. Any other
// status is turned into a classified fetch error.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := strings.TrimRight(c.config.BaseURL, "/") + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.WithField("url", fullURL).Debug("Sending Steam request")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		c.logger.WithFields(logrus.Fields{
			"url":         fullURL,
			"status_code": resp.StatusCode,
		}).Debug("Unexpected Steam status")
		return nil, fetcher.FromStatus(resp.StatusCode, resp.Header)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v interface{}) error {
	body, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fetcher.NewMalformedError(err, fmt.Sprintf("invalid JSON from %s", path))
	}
	return nil
}
