package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/taxico2/pkg/config"
	"github.com/wonny/taxico2/pkg/logger"
)

// Client is an HTTP client wrapper with request logging. Requests are
// never retried.
// ⭐ SSOT: every outbound HTTP request goes through this client
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// New creates a new HTTP client from config
// ⭐ SSOT: http.Client instances are only created here
func New(cfg *config.Config, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Source.FetchTimeout,
		},
		logger: log,
	}
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}

	return c.do(req)
}

// Download streams url into destPath and returns the number of bytes
// written. A partially written file is removed on failure.
func (c *Client) Download(ctx context.Context, url, destPath string) (int64, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}

	tmp := destPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmp, err)
	}

	n, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("write %s: %w", destPath, err)
	}

	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename %s: %w", tmp, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"url":   url,
		"bytes": n,
	}).Debug("Download complete")

	return n, nil
}

// do executes the request once with logging
func (c *Client) do(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	method := req.Method
	startTime := time.Now()

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    url,
	}).Debug("HTTP request started")

	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"method":   method,
			"url":      url,
			"duration": duration,
			"error":    err.Error(),
		}).Error("HTTP request failed")
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": resp.StatusCode,
		"duration":    duration,
	}).Debug("HTTP request completed")

	return resp, nil
}
