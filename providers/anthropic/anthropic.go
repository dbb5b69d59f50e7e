// Package anthropic implements a streaming tool-use client for the
// Anthropic Messages API: it parses the SSE wire format, accumulates
// partial text, thinking and tool-call state, executes local tools and
// chains follow-up requests until the conversation settles.
package anthropic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calebwray/relay"
	"github.com/calebwray/relay/providers/base"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
	providerName   = "anthropic"

	// statusOverloaded is Anthropic's non-standard overload status.
	statusOverloaded = 529
)

// streamClient is shared across all streaming calls. A single shared
// Transport reuses connections; DisableCompression avoids gzip over
// chunked transfer, which breaks incremental SSE reads.
var streamClient = &http.Client{
	Transport: &http.Transport{
		TLSHandshakeTimeout:   30 * time.Second,
		ResponseHeaderTimeout: 2 * time.Minute,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   4,
	},
}

// Config configures the Anthropic Messages API provider.
type Config struct {
	base.Config

	// Thinking options
	ThinkingEnabled bool
	ThinkingBudget  *int
}

// Option is a functional option for this provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTemperature sets the temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = &t }
}

// WithTopP sets the nucleus sampling parameter.
func WithTopP(p float64) Option {
	return func(c *Config) { c.TopP = &p }
}

// WithMaxOutputTokens sets the max output tokens.
func WithMaxOutputTokens(n int) Option {
	return func(c *Config) { c.MaxOutputTokens = &n }
}

// WithDebug enables JSONL debug logging to the specified file path.
func WithDebug(path string) Option {
	return func(c *Config) { c.DebugPath = path }
}

// WithExtraHeader adds a custom header to requests.
func WithExtraHeader(key, value string) Option {
	return func(c *Config) {
		if c.ExtraHeaders == nil {
			c.ExtraHeaders = make(map[string]string)
		}
		c.ExtraHeaders[key] = value
	}
}

// WithExtraBody adds a custom field to the request body.
func WithExtraBody(key string, value any) Option {
	return func(c *Config) {
		if c.ExtraBody == nil {
			c.ExtraBody = make(map[string]any)
		}
		c.ExtraBody[key] = value
	}
}

// WithThinking enables extended thinking with the given token budget.
func WithThinking(budget int) Option {
	return func(c *Config) {
		c.ThinkingEnabled = true
		c.ThinkingBudget = &budget
	}
}

// New creates a relay.Provider using the Anthropic Messages API.
// It reads ANTHROPIC_API_KEY and ANTHROPIC_BASE_URL from the
// environment if not explicitly set.
func New(model string, opts ...Option) *Provider {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	base.ApplyEnvDefaults(&cfg.Config, "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL")
	return &Provider{model: model, cfg: cfg}
}

// Provider speaks the Anthropic Messages API.
type Provider struct {
	model string
	cfg   Config
}

var _ relay.Provider = (*Provider)(nil)

// Stream opens a streamed exchange. Tool-use turns are driven
// transparently: the returned stream spans every hop of the tool call
// chain, up to the request's MaxSteps.
func (p *Provider) Stream(ctx context.Context, req *relay.Request) (relay.Stream, error) {
	if len(req.Messages) == 0 {
		return nil, relay.ErrNoMessages
	}

	debug, err := base.NewDebugLogger(p.cfg.DebugPath, providerName, p.model)
	if err != nil {
		return nil, err
	}

	s := newStream(p, req, debug)
	if err := s.open(ctx); err != nil {
		_ = debug.Close()
		return nil, err
	}
	return s, nil
}

// send issues one streaming request for the request's current
// conversation and returns the open response. Non-200 statuses are
// classified into the public error taxonomy.
func (p *Provider) send(ctx context.Context, req *relay.Request) (*http.Response, error) {
	body, err := buildPayload(p.model, p.cfg, req)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/")
	if endpoint == "" {
		endpoint = defaultBaseURL
	}
	endpoint += "/messages"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &relay.ProviderRequestError{Model: p.model, Err: err}
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("accept", "text/event-stream")
	for k, v := range p.cfg.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, &relay.ProviderRequestError{Model: p.model, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, classifyHTTPError(p.model, resp)
	}
	return resp, nil
}

// classifyHTTPError maps a non-200 response to the error taxonomy.
func classifyHTTPError(model string, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		limits, retryAfter := parseRateLimitHeaders(resp.Header)
		return &relay.RateLimitedError{RateLimits: limits, RetryAfterSeconds: retryAfter}
	case statusOverloaded:
		return &relay.OverloadedError{}
	case http.StatusRequestEntityTooLarge:
		return &relay.RequestTooLargeError{}
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &relay.ProviderRequestError{
			Model: model,
			Err:   fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(raw)),
		}
	}
}
