// Package jupiter implements the token-search and wallet-holdings provider.
package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mintwatch/internal/observability"
	"mintwatch/internal/provider"
)

const providerName = "jupiter"

// Default configuration values.
const (
	DefaultBaseURL      = "https://api.jup.ag"
	DefaultHoldingsPath = "/ultra/v1/holdings"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 1
	DefaultRetryDelay   = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultBackoffMult  = 2.0
)

// Client calls the Jupiter HTTP API.
type Client struct {
	baseURL      string
	holdingsPath string
	apiKey       string
	client       *http.Client
	limiter      *rate.Limiter
	maxRetries   int
	retryDelay   time.Duration
	maxDelay     time.Duration
	backoffMult  float64
	logger       *log.Logger
	metrics      *observability.Metrics
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHoldingsPath overrides the wallet holdings endpoint path.
func WithHoldingsPath(path string) ClientOption {
	return func(c *Client) {
		c.holdingsPath = path
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Jupiter API client. baseURL falls back to the public
// API when empty.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		holdingsPath: DefaultHoldingsPath,
		apiKey:       apiKey,
		client:       &http.Client{Timeout: DefaultTimeout},
		limiter:      rate.NewLimiter(rate.Inf, 1),
		maxRetries:   DefaultMaxRetries,
		retryDelay:   DefaultRetryDelay,
		maxDelay:     DefaultMaxDelay,
		backoffMult:  DefaultBackoffMult,
		logger:       log.Default(),
		metrics:      observability.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// statusError carries a non-2xx HTTP status.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// isNotFound reports whether err is an HTTP 404 from this client.
func isNotFound(err error) bool {
	var se *statusError
	return asStatusError(err, &se) && se.status == http.StatusNotFound
}

func asStatusError(err error, target **statusError) bool {
	for err != nil {
		if se, ok := err.(*statusError); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// doJSON performs one logical API call, recording request count, latency and
// error metrics under the given operation label.
func (c *Client) doJSON(ctx context.Context, op, method, url string, body []byte, result any) error {
	c.metrics.ProviderRequests.WithLabelValues(providerName, op).Inc()
	started := time.Now()
	err := c.roundTrip(ctx, method, url, body, result)
	c.metrics.ProviderLatency.WithLabelValues(providerName, op).Observe(time.Since(started).Seconds())
	if err != nil {
		reason := "http"
		if errors.Is(err, provider.ErrRateLimited) {
			reason = "rate_limited"
		}
		c.metrics.ProviderErrors.WithLabelValues(providerName, reason).Inc()
	}
	return err
}

// roundTrip performs one request with retries and exponential backoff,
// decoding the response body into result. 429 is not retried; it maps to
// provider.ErrRateLimited so the caller can open a backoff window.
func (c *Client) roundTrip(ctx context.Context, method, url string, body []byte, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		var reader io.Reader
		if body != nil {
			reader = strings.NewReader(string(body))
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("X-API-KEY", c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%s: %w", url, provider.ErrRateLimited)
		}
		if resp.StatusCode >= 500 {
			lastErr = &statusError{status: resp.StatusCode, body: truncate(respBody)}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return &statusError{status: resp.StatusCode, body: truncate(respBody)}
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func truncate(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
