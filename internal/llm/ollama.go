package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// DefaultContextSize is assumed when the model's context window cannot be
// read from the server.
const DefaultContextSize = 4096

// Client adapts a local Ollama server to the pipeline's completion
// capability. The adapter owns retry and timeout policy; the analysis core
// deliberately has neither.
type Client struct {
	api        *ollama.Client
	model      string
	stats      *Stats
	log        *slog.Logger
	maxRetries int
}

// NewClient connects to the Ollama server at host (e.g.
// "http://localhost:11434") using the given model.
func NewClient(host, model string, log *slog.Logger) (*Client, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	httpClient := &http.Client{
		Timeout: 300 * time.Second,
	}

	return &Client{
		api:        ollama.NewClient(u, httpClient),
		model:      model,
		stats:      NewStats(time.Hour),
		log:        log,
		maxRetries: maxRetries,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Stats returns the rolling latency aggregate for this client.
func (c *Client) Stats() StatsSnapshot { return c.stats.Snapshot() }

// Available reports whether the server answers a heartbeat.
func (c *Client) Available(ctx context.Context) bool {
	return c.api.Heartbeat(ctx) == nil
}

// Complete sends one prompt and returns the concatenated streamed response.
// Transient server errors are retried with jittered backoff; any terminal
// failure is returned as an error and left for the caller's degrade policy.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Warn("retrying completion", "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(backoff(attempt - 1)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			break
		}
	}
	return "", lastErr
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	var text strings.Builder
	req := &ollama.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
	}
	err := c.api.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		if gr.Response != "" {
			text.WriteString(gr.Response)
		}
		return nil
	})

	c.stats.Record(time.Since(start))
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return text.String(), nil
}

// ContextSize looks up the model's context window from the server's model
// info, falling back to DefaultContextSize when unavailable.
func (c *Client) ContextSize(ctx context.Context) int {
	resp, err := c.api.Show(ctx, &ollama.ShowRequest{Model: c.model})
	if err != nil {
		c.log.Warn("model info lookup failed, using default context size",
			"model", c.model, "default", DefaultContextSize, "error", err)
		return DefaultContextSize
	}

	for key, value := range resp.ModelInfo {
		if !strings.HasSuffix(key, ".context_length") {
			continue
		}
		if n, ok := asInt(value); ok && n > 0 {
			return n
		}
	}
	c.log.Warn("model info has no context length, using default",
		"model", c.model, "default", DefaultContextSize)
	return DefaultContextSize
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// isRetryable reports whether an error is a transient server fault worth
// another attempt (rate limiting or 5xx).
func isRetryable(err error) bool {
	var statusErr ollama.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return false
}
