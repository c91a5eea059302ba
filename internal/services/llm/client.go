package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

// Config captures the runtime settings required to talk to a chat-completions endpoint.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client talks to an OpenRouter-compatible chat-completions endpoint in JSON mode.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	headers  http.Header
	http     *http.Client
	retry    backoff
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. A nil client is ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts bounds how many requests a single CompleteJSON call may send.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.attempts = attempts }
}

// WithRetryBackoff sets the first retry delay and the ceiling it doubles towards.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.base = baseDelay
		c.retry.ceiling = maxDelay
	}
}

// WithSleeper replaces the timer used between attempts.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.retry.sleep = sleeper }
}

// NewClient builds a client from cfg. Blank fields fall back to the
// OpenRouter endpoint and a 120 second request timeout.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := 120 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	headers := http.Header{}
	if referer := strings.TrimSpace(cfg.Referer); referer != "" {
		headers.Set("HTTP-Referer", referer)
	}
	if title := strings.TrimSpace(cfg.Title); title != "" {
		headers.Set("X-Title", title)
	}
	c := &Client{
		endpoint: strings.TrimSpace(cfg.BaseURL),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    strings.TrimSpace(cfg.Model),
		headers:  headers,
		http:     &http.Client{Timeout: timeout},
		retry:    backoff{attempts: 2, base: time.Second, ceiling: 10 * time.Second},
	}
	if c.endpoint == "" {
		c.endpoint = defaultEndpoint
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the default model identifier.
func (c *Client) Model() string {
	return c.model
}

// Request is a single JSON-mode completion. Empty Model uses the client default.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature float64
}

// Completion is the raw JSON content plus the model that produced it.
type Completion struct {
	Content string
	Model   string
}

// CompleteJSON issues a JSON-only chat completion. Failures are tagged with
// services.ErrInvalidConfig for requests the endpoint will never accept and
// services.ErrExternalService for everything else.
func (c *Client) CompleteJSON(ctx context.Context, req Request) (Completion, error) {
	system, user := strings.TrimSpace(req.System), strings.TrimSpace(req.User)
	switch {
	case system == "" || user == "":
		return Completion{}, invalidRequest("system and user prompts are required")
	case c.apiKey == "":
		return Completion{}, invalidRequest("llm api key is not configured")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	body, err := json.Marshal(wireRequest{
		Model:          model,
		Messages:       []wireMessage{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature:    req.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Completion{}, invalidRequest("encode request: " + err.Error())
	}

	var content string
	err = c.retry.do(ctx, func() error {
		var callErr error
		content, callErr = c.exchange(ctx, body)
		return callErr
	})
	if err != nil {
		return Completion{}, classify(err)
	}
	return Completion{Content: content, Model: model}, nil
}

// HealthCheck verifies that an api key and endpoint are configured. It does
// not spend a completion.
func (c *Client) HealthCheck() error {
	if c.apiKey == "" {
		return errors.New("llm api key is not configured")
	}
	if c.model == "" {
		return errors.New("llm model is not configured")
	}
	return nil
}

// exchange sends one request and returns the usable reply text.
func (c *Client) exchange(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header = c.headers.Clone()
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", &statusError{
			code:       resp.StatusCode,
			body:       string(raw),
			retryAfter: retryAfterHeader(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	var reply wireResponse
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if reply.Error != nil {
		return "", fmt.Errorf("endpoint error: %s", strings.TrimSpace(reply.Error.Message))
	}
	if text := reply.text(); text != "" {
		return text, nil
	}
	return "", &emptyReplyError{
		choices: len(reply.Choices),
		finish:  reply.finishReason(),
		refusal: reply.refusal(),
		snippet: snippet(string(raw)),
	}
}
