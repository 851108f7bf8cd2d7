package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/c360studio/tripsync/model"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 10 * 1024 * 1024

// send performs one HTTP round trip to ep.
func (c *Client) send(ctx context.Context, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	body, err := provider.Encode(ep.Model, req)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("encode request: %w", err))
	}

	url := provider.Endpoint(ep.URL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.Authorize(httpReq)

	c.logger.Debug("Sending LLM request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"messages", len(req.Messages),
		"json", req.JSONMode)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp, respBody)
	}

	resp, err := provider.Decode(respBody, ep.Model)
	if err != nil {
		// Undecodable 200s are not retried.
		return nil, NewFatalError(err)
	}
	return resp, nil
}

// classifyHTTPError marks 429 and 5xx transient and everything else fatal.
// A 429 carrying Retry-After also tells the backoff how long to wait.
func classifyHTTPError(resp *http.Response, body []byte) error {
	text := string(body)
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	err := fmt.Errorf("LLM API error (status %d): %s", resp.StatusCode, text)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); wait > 0 {
			return NewTransientError(fmt.Errorf("%w (%w)", err, &backoff.RetryAfterError{Duration: wait}))
		}
		return NewTransientError(err)
	case resp.StatusCode >= 500:
		return NewTransientError(err)
	default:
		return NewFatalError(err)
	}
}

// parseRetryAfter reads delay-seconds or an HTTP date. Invalid or past
// values give 0.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return max(time.Duration(secs)*time.Second, 0)
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(at.Sub(now), 0)
	}
	return 0
}

// RetryConfig holds per-endpoint retry settings.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per endpoint.
	MaxAttempts int `yaml:"max_attempts"`

	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
}

// DefaultRetryConfig returns the default retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// do runs op until it succeeds, fails fatally, or runs out of attempts.
// Waits grow exponentially with 25% jitter; a server-provided Retry-After
// replaces the next wait, capped at MaxBackoff.
func (rc RetryConfig) do(ctx context.Context, op func() (*Response, error), notify backoff.Notify) (*Response, error) {
	attempts := uint(max(rc.MaxAttempts, 1))

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = rc.BackoffBase
	schedule.Multiplier = max(rc.BackoffMultiplier, 1)
	if rc.MaxBackoff > 0 {
		schedule.MaxInterval = rc.MaxBackoff
	}
	schedule.RandomizationFactor = 0.25

	resp, err := backoff.Retry(ctx, func() (*Response, error) {
		resp, err := op()
		if err == nil {
			return resp, nil
		}
		if IsFatal(err) {
			return nil, backoff.Permanent(err)
		}
		var after *backoff.RetryAfterError
		if errors.As(err, &after) && rc.MaxBackoff > 0 && after.Duration > rc.MaxBackoff {
			after.Duration = rc.MaxBackoff
		}
		return nil, err
	},
		backoff.WithBackOff(schedule),
		backoff.WithMaxTries(attempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return resp, err
}
