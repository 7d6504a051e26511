package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Log         *zerolog.Logger
}

var DefaultRetry = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
}

// Do executes an HTTP request with exponential backoff retry on network errors
// and 5xx responses. The buildReq function is called on each attempt to produce
// a fresh request (required because request bodies are consumed on each attempt).
func Do(ctx context.Context, client *http.Client, cfg RetryConfig, buildReq func() (*http.Request, error)) (*http.Response, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetry.MaxAttempts
	}

	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}

		if attempt == cfg.MaxAttempts || ctx.Err() != nil {
			break
		}

		if cfg.Log != nil {
			cfg.Log.Warn().Err(lastErr).
				Int("attempt", attempt).
				Int("max_attempts", cfg.MaxAttempts).
				Dur("retry_in", delay).
				Msg("request failed, retrying")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return nil, fmt.Errorf("all %d attempts failed, last error: %w", cfg.MaxAttempts, lastErr)
}

var errBodyNotReplayable = errors.New("request body cannot be replayed")

// Client is an http.Client wrapper whose Do retries like the package-level Do.
// It satisfies the HTTPClient interface of the Telegram bot library.
type Client struct {
	HTTP  *http.Client
	Retry RetryConfig
}

func NewClient(timeout time.Duration, retry RetryConfig) *Client {
	return &Client{
		HTTP:  &http.Client{Timeout: timeout},
		Retry: retry,
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	first := true
	return Do(req.Context(), c.HTTP, c.Retry, func() (*http.Request, error) {
		if first {
			first = false
			return req, nil
		}
		r := req.Clone(req.Context())
		if req.Body != nil && req.Body != http.NoBody {
			if req.GetBody == nil {
				return nil, errBodyNotReplayable
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = body
		}
		return r, nil
	})
}
