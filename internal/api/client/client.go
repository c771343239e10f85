// Package client is a typed REST client for the scan backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hugh/reconsole/internal/api/dto"
	"github.com/hugh/reconsole/internal/models"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 32 << 20

	HeaderRequestID  = "X-Request-ID"
	HeaderScanID     = "X-Scan-ID"
	HeaderGeneration = "X-Poll-Generation"
)

// APIError is returned for any non-2xx response. Message holds the
// backend's "error" field when the body carried one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type Option func(*Client)

// WithTimeout bounds every request, body read included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit caps outgoing requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client rooted at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    trimSlash(baseURL),
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateScan submits a scan request and returns the new, minimal record.
func (c *Client) CreateScan(ctx context.Context, req models.ScanRequest) (*models.ScanRecord, error) {
	var resp dto.CreateScanResponse
	if err := c.do(ctx, http.MethodPost, "/api/scan", req, &resp); err != nil {
		return nil, fmt.Errorf("creating scan: %w", err)
	}
	return resp.Record(), nil
}

// GetScan fetches the latest snapshot of a scan.
func (c *Client) GetScan(ctx context.Context, scanID string) (*models.ScanRecord, error) {
	var rec models.ScanRecord
	if err := c.do(ctx, http.MethodGet, "/api/scan/"+url.PathEscape(scanID), nil, &rec); err != nil {
		return nil, fmt.Errorf("fetching scan %s: %w", scanID, err)
	}
	return &rec, nil
}

// ListFiles returns the artifact metadata of a scan, without contents.
func (c *Client) ListFiles(ctx context.Context, scanID string) ([]models.FileArtifact, error) {
	var resp dto.FilesResponse
	if err := c.do(ctx, http.MethodGet, "/api/scan/"+url.PathEscape(scanID)+"/files", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing files for %s: %w", scanID, err)
	}
	return resp.Files, nil
}

// GetFile returns the content of one artifact.
func (c *Client) GetFile(ctx context.Context, scanID, name string) (string, error) {
	var resp dto.FileContentResponse
	path := "/api/scan/" + url.PathEscape(scanID) + "/file/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("fetching file %s: %w", name, err)
	}
	return resp.Content, nil
}

// ListScans returns past scans in backend order.
func (c *Client) ListScans(ctx context.Context) ([]models.ScanSummary, error) {
	var resp dto.ScansResponse
	if err := c.do(ctx, http.MethodGet, "/api/scans", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return resp.Scans, nil
}

func (c *Client) Tools(ctx context.Context) (*models.ToolStatus, error) {
	var resp models.ToolStatus
	if err := c.do(ctx, http.MethodGet, "/api/tools", nil, &resp); err != nil {
		return nil, fmt.Errorf("checking tools: %w", err)
	}
	return &resp, nil
}

func (c *Client) Health(ctx context.Context) (*dto.HealthResponse, error) {
	var resp dto.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("checking health: %w", err)
	}
	return &resp, nil
}

// WaitHealthy retries Health with exponential backoff until the backend
// reports healthy, maxWait elapses or ctx is done. A zero maxWait means a
// single attempt.
func (c *Client) WaitHealthy(ctx context.Context, maxWait time.Duration) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 250 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second
	expBackoff.MaxElapsedTime = maxWait

	var b backoff.BackOff = expBackoff
	if maxWait <= 0 {
		b = &backoff.StopBackOff{}
	}

	attempt := 0
	operation := func() error {
		attempt++
		resp, err := c.Health(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Debug("backend not ready", "attempt", attempt, "error", err)
			return err
		}
		if resp.Status != "healthy" {
			return fmt.Errorf("backend status %q", resp.Status)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("backend at %s not healthy after %d attempts: %w", c.baseURL, attempt, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)
	if t, ok := tagFrom(ctx); ok {
		req.Header.Set(HeaderScanID, t.ScanID)
		req.Header.Set(HeaderGeneration, strconv.FormatUint(t.Generation, 10))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp dto.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
