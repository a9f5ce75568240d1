// Package httpclient provides the outbound HTTP client used to reach
// third-party providers, with retries and circuit breaking.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Config tunes the retrying client.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
}

// DefaultConfig suits a low-volume provider API like an email service.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    time.Second,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 100,
	}
}

// Client retries transient failures with capped exponential backoff.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// New builds the client with its own pooled transport.
func New(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
				MaxConnsPerHost:       cfg.MaxConnsPerHost,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		},
		cfg: cfg,
	}
}

// Do executes the request, retrying network errors and 5xx responses (501
// excepted, it will never get better). Requests with consumable bodies must
// set Request.GetBody so retries can replay them; http.NewRequest does this
// for the common body types.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.httpClient.Do(req)
		switch {
		case err == nil && !retryableStatus(resp.StatusCode):
			return resp, nil
		case err == nil:
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server returned %d", resp.StatusCode)
		case retryableError(err):
			lastErr = err
		default:
			return nil, fmt.Errorf("http request failed: %w", err)
		}

		if attempt >= c.cfg.MaxRetries {
			return nil, fmt.Errorf("http request failed after %d attempts: %w", attempt+1, lastErr)
		}
		if err := c.backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

// backoff sleeps for RetryWaitMin doubled per attempt, capped at RetryWaitMax.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	wait := c.cfg.RetryWaitMin << uint(attempt)
	if wait > c.cfg.RetryWaitMax {
		wait = c.cfg.RetryWaitMax
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func retryableStatus(code int) bool {
	return code >= 500 && code != http.StatusNotImplemented
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
