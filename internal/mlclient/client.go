// Package mlclient calls the external prediction and seating model services.
package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

const maxResponseBytes = 4 << 20

// Service is an external model collaborator.
type Service interface {
	Name() string
	CheckHealth(ctx context.Context) bool
	Request(ctx context.Context, path string, payload, out interface{}) error
}

// Observer receives per-call timings and availability.
type Observer interface {
	ObserveExternalRequest(service, path string, ok bool, duration time.Duration)
	SetExternalServiceUp(service string, up bool)
}

// HealthFunc decides whether a 2xx health response body means the service is usable.
type HealthFunc func(body []byte) bool

// Option customises a Client.
type Option func(*Client)

// WithHealthFunc sets an additional body check for GET /health.
func WithHealthFunc(fn HealthFunc) Option {
	return func(c *Client) { c.healthy = fn }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// RequireHealthyStatus accepts only bodies shaped like {"status":"healthy"}.
func RequireHealthyStatus(body []byte) bool {
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return strings.EqualFold(payload.Status, "healthy")
}

// Client is an HTTP implementation of Service.
type Client struct {
	name     string
	baseURL  string
	client   *http.Client
	logger   *zap.Logger
	observer Observer
	healthy  HealthFunc
}

// NewClient builds a client for the service at baseURL. A non-positive timeout defaults to 30s.
func NewClient(name, baseURL string, timeout time.Duration, logger *zap.Logger, observer Observer, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		name:     name,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		observer: observer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the service in logs and metrics.
func (c *Client) Name() string {
	return c.name
}

// CheckHealth probes GET /health. Any failure reports unavailable.
func (c *Client) CheckHealth(ctx context.Context) bool {
	ok := c.checkHealth(ctx)
	if c.observer != nil {
		c.observer.SetExternalServiceUp(c.name, ok)
	}
	return ok
}

func (c *Client) checkHealth(ctx context.Context) bool {
	if c.baseURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.observe("/health", false, time.Since(start))
		c.logger.Warn("external service health check failed", zap.String("service", c.name), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok && c.healthy != nil {
		ok = c.healthy(body)
	}
	c.observe("/health", ok, time.Since(start))
	return ok
}

// Request POSTs payload as JSON to path and decodes the response into out.
func (c *Client) Request(ctx context.Context, path string, payload, out interface{}) error {
	if c.baseURL == "" {
		return appErrors.Clone(appErrors.ErrServiceUnavailable, fmt.Sprintf("%s service URL not configured", c.name))
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return c.unavailable(err, "invalid request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.observe(path, false, duration)
		c.logger.Warn("external service unreachable", zap.String("service", c.name), zap.String("path", path), zap.Error(err))
		return c.unavailable(err, "unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.observe(path, false, duration)
		return c.unavailable(err, "response could not be read")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(path, false, duration)
		c.logger.Warn("external service error",
			zap.String("service", c.name),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(body, 512)),
		)
		return c.unavailable(fmt.Errorf("received status %d", resp.StatusCode), "returned an error")
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			c.observe(path, false, duration)
			return c.unavailable(err, "returned a malformed response")
		}
	}
	c.observe(path, true, duration)
	return nil
}

func (c *Client) unavailable(err error, detail string) error {
	return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status,
		fmt.Sprintf("%s service %s", c.name, detail))
}

func (c *Client) observe(path string, ok bool, duration time.Duration) {
	if c.observer != nil {
		c.observer.ObserveExternalRequest(c.name, path, ok, duration)
	}
}

func truncate(body []byte, limit int) []byte {
	if len(body) <= limit {
		return body
	}
	return body[:limit]
}
