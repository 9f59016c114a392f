// Package httpclient is a retrying HTTP client for upstream APIs that
// rate-limit. Rate-limit responses honor Retry-After; transient server
// errors get a short fixed backoff; everything else returns immediately.
package httpclient

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ordermesh/ordermesh/pkg/logger"
)

// RetryStrategy picks how an attempt's failure is retried.
type RetryStrategy int

const (
	// NoRetry fails immediately.
	NoRetry RetryStrategy = iota
	// ConservativeRetry allows up to two quick retries for transient
	// server errors.
	ConservativeRetry
	// SmartRetry honors rate-limit headers with exponential fallback.
	SmartRetry
)

// RetryStrategyFunc maps a response status code to a strategy.
type RetryStrategyFunc func(statusCode int) RetryStrategy

// Client wraps http.Client with retry behavior.
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	strategyFunc RetryStrategyFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

// WithMaxRetries sets the retry ceiling for rate-limited requests.
func WithMaxRetries(max int) Option {
	return func(c *Client) { c.maxRetries = max }
}

// WithBaseDelay sets the base for exponential backoff.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) { c.baseDelay = delay }
}

// WithRetryStrategy replaces the status-code-to-strategy mapping.
func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) { c.strategyFunc = strategyFunc }
}

// New builds a Client. Defaults: 60s request timeout, 5 retries, 2s base
// delay, DefaultRetryStrategy.
func New(opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   5,
		baseDelay:    2 * time.Second,
		strategyFunc: DefaultRetryStrategy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultRetryStrategy rate-limit-retries 429/503 and quick-retries other
// transient 5xx codes.
func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do executes the request, retrying per the configured strategy. Requests
// with bodies must carry GetBody (http.NewRequest sets it for common body
// types) so retries can replay them.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("recreating request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 400 {
			return resp, nil
		}

		strategy := c.strategyFunc(resp.StatusCode)
		delay := c.delayFor(strategy, attempt, resp.Header)
		if strategy == NoRetry || delay <= 0 || attempt == c.maxRetries {
			if attempt == c.maxRetries && strategy != NoRetry {
				return resp, &RetryableError{
					StatusCode: resp.StatusCode,
					Message:    fmt.Sprintf("retries exhausted after %d attempts", attempt+1),
					RetryAfter: delay,
				}
			}
			return resp, nil
		}

		resp.Body.Close()
		logger.GetLogger().Debug("retrying request",
			"status", resp.StatusCode,
			"delay", delay,
			"attempt", attempt+1,
			"max", c.maxRetries,
		)
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}
	// Unreachable: the loop always returns on the final attempt.
	return nil, fmt.Errorf("retry loop exhausted")
}

// delayFor computes the wait before the next attempt; <= 0 means stop.
func (c *Client) delayFor(strategy RetryStrategy, attempt int, hdr http.Header) time.Duration {
	switch strategy {
	case SmartRetry:
		if ra := parseRetryAfter(hdr); ra > 0 {
			return ra
		}
		backoff := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		return backoff + time.Duration(float64(backoff)*0.1)
	case ConservativeRetry:
		if attempt >= 2 {
			return 0
		}
		return time.Duration(2+attempt) * time.Second
	default:
		return 0
	}
}

// parseRetryAfter reads a Retry-After header given in whole seconds.
func parseRetryAfter(hdr http.Header) time.Duration {
	v := hdr.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
