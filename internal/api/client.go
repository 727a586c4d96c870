package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okamoto/hr-dashboard/internal/config"
	"github.com/okamoto/hr-dashboard/internal/models"
	"go.uber.org/zap"
)

const userAgent = "hr-dashboard/1.0"

// maxBodySnippet bounds how much of an error body ends up in StatusError
const maxBodySnippet = 512

// ErrMalformedResponse is returned when a 2xx body is not a users listing
var ErrMalformedResponse = errors.New("malformed users response")

// StatusError is returned when the source answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source returned error status %d: %s", e.StatusCode, e.Body)
}

// Client fetches user listings from the external demo API
type Client struct {
	config     *config.SourceConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new source client
func NewClient(cfg *config.SourceConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
	}
}

// FetchUsers requests one page of users of the configured size
func (c *Client) FetchUsers(ctx context.Context) ([]models.SourceUser, error) {
	endpoint, err := c.usersURL(c.config.PageSize)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetching users",
		zap.String("url", endpoint),
		zap.Int("limit", c.config.PageSize))

	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Wait before retry
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}

			c.logger.Info("retrying users request", zap.Int("attempt", attempt))
		}

		page, err := c.fetchOnce(ctx, endpoint)
		if err == nil {
			return page.Users, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			break
		}

		c.logger.Warn("users request failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return nil, fmt.Errorf("fetch users: %w", lastErr)
}

// fetchOnce sends a single request without retries
func (c *Client) fetchOnce(ctx context.Context, endpoint string) (*models.SourceUsersPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("users request completed",
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(startTime)))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	var page models.SourceUsersPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if page.Users == nil {
		return nil, fmt.Errorf("%w: no users array", ErrMalformedResponse)
	}

	return &page, nil
}

func (c *Client) usersURL(limit int) (string, error) {
	base, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/") + "/users")
	if err != nil {
		return "", fmt.Errorf("invalid source base URL: %w", err)
	}
	q := base.Query()
	q.Set("limit", strconv.Itoa(limit))
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// retryable reports whether another attempt could succeed. Client errors and
// malformed payloads are final.
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, ErrMalformedResponse)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= maxBodySnippet {
		return s
	}
	return s[:maxBodySnippet] + "..."
}

// HealthCheck performs a health check on the source
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint, err := c.usersURL(1)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read and discard body
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("source health check failed with status %d", resp.StatusCode)
	}

	c.logger.Debug("source health check passed", zap.Int("status_code", resp.StatusCode))
	return nil
}

// Close closes the client and releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	c.logger.Info("source client closed")
	return nil
}
