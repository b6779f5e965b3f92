// Package llm sends review prompts to a chat-completion endpoint and owns
// the retry, timeout and response validation policy for those calls.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/codereview/internal/cache"
	"github.com/joescharf/codereview/internal/models"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultBaseURL is the OpenAI-compatible OpenRouter endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1/"

const (
	defaultMaxAttempts = 3
	defaultBackoff     = time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultTimeout     = 60 * time.Second
	pingMaxTokens      = 10
	pingPrompt         = "Reply with the single word OK."
)

// Config configures a Client.
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	ModelID     string // used by Ping
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Timeout     time.Duration // per-attempt default, also bounds Ping
	HTTPClient  *http.Client
	Cache       *cache.Cache
	Logger      *slog.Logger
}

// RequestConfig holds the per-call generation parameters.
type RequestConfig struct {
	ModelID     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// completion is what a transport extracts from a 2xx body.
type completion struct {
	Text     string
	Usage    models.TokenUsage
	HasUsage bool
	ModelID  string
}

// completer performs a single request against an endpoint. It must not retry.
type completer interface {
	complete(ctx context.Context, prompt string, rc RequestConfig) (*completion, error)
}

// Client calls the LLM endpoint with bounded retries.
type Client struct {
	tr          completer
	provider    string
	modelID     string
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
	timeout     time.Duration
	cache       *cache.Cache
	logger      *slog.Logger
	sleep       func(context.Context, time.Duration) error
	now         func() time.Time
}

// NewClient creates a Client for the configured provider.
func NewClient(cfg Config) (*Client, error) {
	var tr completer
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		cfg.Provider = ProviderOpenAI
		tr = newOpenAITransport(cfg)
	case ProviderAnthropic:
		tr = newAnthropicTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (use: openai, anthropic)", cfg.Provider)
	}
	return newClient(cfg, tr), nil
}

func newClient(cfg Config, tr completer) *Client {
	c := &Client{
		tr:          tr,
		provider:    strings.ToLower(cfg.Provider),
		modelID:     cfg.ModelID,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		maxBackoff:  cfg.MaxBackoff,
		timeout:     cfg.Timeout,
		cache:       cfg.Cache,
		logger:      cfg.Logger,
		sleep:       sleepContext,
		now:         time.Now,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.backoff == 0 {
		c.backoff = defaultBackoff
	}
	if c.maxBackoff == 0 {
		c.maxBackoff = defaultMaxBackoff
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Review sends prompt and returns the validated completion.
// Failures are reported as *Error.
func (c *Client) Review(ctx context.Context, prompt string, rc RequestConfig) (*models.RawReviewResponse, error) {
	if rc.ModelID == "" {
		rc.ModelID = c.modelID
	}
	if rc.Timeout <= 0 {
		rc.Timeout = c.timeout
	}

	key := cache.Key(c.provider, rc.ModelID, strconv.Itoa(rc.MaxTokens),
		strconv.FormatFloat(rc.Temperature, 'f', -1, 64), prompt)
	var cached models.RawReviewResponse
	if c.cache.Get(key, &cached) {
		c.logger.Debug("llm cache hit", "model", rc.ModelID)
		cached.Cached = true
		cached.LatencyMS = 0
		return &cached, nil
	}

	start := c.now()
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		comp, timedOut, err := c.attempt(ctx, prompt, rc)
		if err == nil {
			resp, verr := validate(comp, rc.ModelID)
			if verr != nil {
				return nil, &Error{Kind: KindMalformed, Attempts: attempt, Err: verr}
			}
			resp.LatencyMS = c.now().Sub(start).Milliseconds()
			if perr := c.cache.Put(key, resp); perr != nil {
				c.logger.Warn("llm cache write failed", "error", perr)
			}
			c.logger.Debug("llm review complete",
				"model", resp.ModelID, "attempts", attempt,
				"total_tokens", resp.Usage.Total, "latency_ms", resp.LatencyMS)
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, &Error{Kind: KindUnavailable, Attempts: attempt, Err: ctx.Err()}
		}
		if timedOut {
			return nil, &Error{Kind: KindTimeout, Attempts: attempt, Err: err}
		}
		retryable, kind := classify(err)
		if !retryable {
			return nil, &Error{Kind: kind, Attempts: attempt, StatusCode: statusCode(err), Err: err}
		}

		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		delay := backoffDelay(c.backoff, c.maxBackoff, attempt)
		c.logger.Warn("llm request failed, retrying",
			"attempt", attempt, "max_attempts", c.maxAttempts,
			"status", statusCode(err), "delay", delay, "error", err)
		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, &Error{Kind: KindUnavailable, Attempts: attempt, Err: serr}
		}
	}

	return nil, &Error{
		Kind:       KindUnavailable,
		Attempts:   c.maxAttempts,
		StatusCode: statusCode(lastErr),
		Err:        lastErr,
	}
}

// attempt runs one bounded request. timedOut is set when the per-attempt
// deadline, not the caller's context, ended the call.
func (c *Client) attempt(ctx context.Context, prompt string, rc RequestConfig) (*completion, bool, error) {
	actx, cancel := context.WithTimeout(ctx, rc.Timeout)
	defer cancel()
	comp, err := c.tr.complete(actx, prompt, rc)
	if err != nil {
		timedOut := ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded)
		return nil, timedOut, err
	}
	return comp, false, nil
}

// Ping issues a minimal completion without retries and reports whether
// the endpoint answered.
func (c *Client) Ping(ctx context.Context) bool {
	rc := RequestConfig{ModelID: c.modelID, MaxTokens: pingMaxTokens, Temperature: 0, Timeout: c.timeout}
	comp, _, err := c.attempt(ctx, pingPrompt, rc)
	if err != nil {
		c.logger.Warn("llm ping failed", "status", statusCode(err), "error", err)
		return false
	}
	return comp != nil
}

func validate(comp *completion, requested string) (*models.RawReviewResponse, error) {
	if comp == nil {
		return nil, errors.New("empty completion")
	}
	if strings.TrimSpace(comp.Text) == "" {
		return nil, errors.New("completion text is empty")
	}
	if !comp.HasUsage {
		return nil, errors.New("response has no usage block")
	}
	model := comp.ModelID
	if model == "" {
		model = requested
	}
	usage := comp.Usage
	if usage.Total == 0 {
		usage.Total = usage.Prompt + usage.Completion
	}
	return &models.RawReviewResponse{
		Text:    comp.Text,
		Usage:   usage,
		ModelID: model,
	}, nil
}
