// Package helius implements the transaction-enrichment indexer and the
// per-mint token-accounts fallback provider.
package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"mintwatch/internal/observability"
	"mintwatch/internal/provider"
)

const providerName = "helius"

// Default configuration values.
const (
	DefaultAPIBaseURL  = "https://api.helius.xyz"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client calls the Helius REST API and JSON-RPC endpoint.
type Client struct {
	apiBaseURL  string
	rpcURL      string
	apiKey      string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      *log.Logger
	metrics     *observability.Metrics
	requestID   atomic.Uint64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithAPIBaseURL overrides the REST API base URL.
func WithAPIBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.apiBaseURL = u
	}
}

// WithRPCURL overrides the JSON-RPC endpoint.
func WithRPCURL(u string) ClientOption {
	return func(c *Client) {
		c.rpcURL = u
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

// NewClient creates a Helius client. The JSON-RPC endpoint defaults to the
// mainnet RPC keyed by apiKey.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiBaseURL:  DefaultAPIBaseURL,
		rpcURL:      fmt.Sprintf("https://mainnet.helius-rpc.com/?api-key=%s", apiKey),
		apiKey:      apiKey,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Inf, 1),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      log.Default(),
		metrics:     observability.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// post performs one logical API call, recording request count, latency and
// error metrics under the given operation label.
func (c *Client) post(ctx context.Context, op, url string, body []byte, result any) error {
	c.metrics.ProviderRequests.WithLabelValues(providerName, op).Inc()
	started := time.Now()
	err := c.roundTrip(ctx, url, body, result)
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

// roundTrip sends a JSON POST with retries and exponential backoff, decoding
// the response into result. 429 is not retried; it maps to
// provider.ErrRateLimited so the caller can open a backoff window.
func (c *Client) roundTrip(ctx context.Context, url string, body []byte, result any) error {
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

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

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
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody))
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
