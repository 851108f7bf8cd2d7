// Package llm is the chat completion client behind the registry generation
// backend. A request names a capability; the client resolves it through
// model.Registry to a chain of endpoints, retries each with exponential
// backoff, and moves down the chain on transient failures. Endpoints that keep
// failing are skipped until their circuit recovers.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/c360studio/tripsync/model"
)

// Client is a provider-agnostic chat client with retry and fallback.
type Client struct {
	registry   *model.Registry
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
	recorder   CallRecorder
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the per-endpoint retry policy.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithCallRecorder records every completed or failed call.
func WithCallRecorder(r CallRecorder) ClientOption {
	return func(client *Client) {
		client.recorder = r
	}
}

// NewClient creates a client over registry. A nil registry uses model.Global().
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	if registry == nil {
		registry = model.Global()
	}
	c := &Client{
		registry:   registry,
		retry:      DefaultRetryConfig(),
		httpClient: &http.Client{Timeout: 180 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// endpoint is one usable link of a capability's fallback chain.
type endpoint struct {
	name string
	cfg  *model.EndpointConfig
}

// chain returns the configured, circuit-closed endpoints for capability in
// fallback order. Unknown capabilities resolve as fast.
func (c *Client) chain(capability string) []endpoint {
	capVal := model.ParseCapability(capability)
	if capVal == "" {
		capVal = model.CapabilityFast
	}
	names := c.registry.GetAvailableFallbackChain(capVal)
	return lo.FilterMap(names, func(name string, _ int) (endpoint, bool) {
		cfg := c.registry.GetEndpoint(name)
		if cfg == nil {
			c.logger.Debug("No endpoint for model, skipping", "model", name)
			return endpoint{}, false
		}
		if !c.registry.IsEndpointAvailable(name) {
			c.logger.Debug("Endpoint circuit open, skipping", "model", name)
			return endpoint{}, false
		}
		return endpoint{name: name, cfg: cfg}, true
	})
}

// Complete sends req down the capability's fallback chain. A fatal error, or
// a cancelled context, ends the walk at the endpoint that produced it.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	record := &CallRecord{
		RequestID:  uuid.New().String(),
		Capability: req.Capability,
		StartedAt:  time.Now(),
	}

	var lastErr error
	for _, ep := range c.chain(req.Capability) {
		record.Model = ep.name
		record.Provider = ep.cfg.Provider

		resp, tries, err := c.completeWith(ctx, ep, req)
		record.Retries += tries - 1
		if err == nil {
			resp.RequestID = record.RequestID
			record.Usage = resp.Usage
			record.FinishReason = resp.FinishReason
			c.finish(ctx, record, nil)
			return resp, nil
		}

		record.FallbacksUsed = append(record.FallbacksUsed, ep.name)
		lastErr = err

		if IsFatal(err) || ctx.Err() != nil {
			c.logger.Warn("LLM call failed, not trying fallbacks",
				"model", ep.name,
				"provider", ep.cfg.Provider,
				"error", err)
			c.finish(ctx, record, err)
			return nil, err
		}
		c.logger.Warn("Endpoint failed, trying fallback",
			"model", ep.name,
			"provider", ep.cfg.Provider,
			"error", err)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no endpoints configured")
	}
	err := fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
	c.finish(ctx, record, err)
	return nil, err
}

// completeWith retries one endpoint and reports how many attempts it made.
// Only an endpoint that exhausts its retries counts against its circuit.
func (c *Client) completeWith(ctx context.Context, ep endpoint, req Request) (*Response, int, error) {
	tries := 0
	resp, err := c.retry.do(ctx, func() (*Response, error) {
		tries++
		return c.send(ctx, ep.cfg, req)
	}, func(err error, wait time.Duration) {
		c.logger.Debug("Request failed, retrying",
			"model", ep.name,
			"attempt", tries,
			"backoff", wait,
			"error", err)
	})

	switch {
	case err == nil:
		c.registry.MarkEndpointSuccess(ep.name)
	case !IsFatal(err) && ctx.Err() == nil:
		c.registry.MarkEndpointFailure(ep.name)
	}
	return resp, tries, err
}

func (c *Client) finish(ctx context.Context, record *CallRecord, err error) {
	record.CompletedAt = time.Now()
	record.Duration = record.CompletedAt.Sub(record.StartedAt)
	if err != nil {
		record.Error = err.Error()
	}
	if c.recorder == nil {
		return
	}
	if rerr := c.recorder.Record(ctx, record); rerr != nil {
		c.logger.Warn("Failed to record LLM call",
			"request_id", record.RequestID,
			"capability", record.Capability,
			"error", rerr)
	}
}
