package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// ErrMissingAPIKey is returned by New when no credential is configured.
var ErrMissingAPIKey = errors.New("completion: api key required")

// Config holds the connection settings for the completion API.
type Config struct {
	APIKey string
	// BaseURL overrides https://api.openai.com/v1.
	BaseURL     string
	Model string
	// Temperature is omitted from requests when nil.
	Temperature *float32
	Timeout     time.Duration
	MaxAttempts int
}

// Result is the model output of one successful request.
type Result struct {
	Content          string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
	Attempts         int
	Duration         time.Duration
}

// Client wraps the go-openai chat completion API.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	logger      *slog.Logger

	httpClient     *http.Client
	maxAttempts    int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	sleeper        func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger for request logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// New returns a client for cfg. It fails with ErrMissingAPIKey when
// cfg.APIKey is blank.
func New(cfg Config, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		model:          strings.TrimSpace(cfg.Model),
		logger:         slog.Default(),
		httpClient:     &http.Client{Timeout: timeout},
		maxAttempts:    cfg.MaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		retryMaxDelay:  defaultRetryMaxDelay,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 1
	}
	if c.model == "" {
		c.model = openai.GPT4oMini
	}
	if cfg.Temperature != nil {
		c.temperature = requestTemperature(*cfg.Temperature)
	}
	for _, opt := range opts {
		opt(c)
	}

	apiConfig := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		apiConfig.BaseURL = baseURL
	}
	apiConfig.HTTPClient = c.httpClient
	c.api = openai.NewClientWithConfig(apiConfig)
	return c, nil
}

// requestTemperature maps t onto the request field. go-openai drops a zero
// temperature from the JSON body, so an explicit 0 is sent as the smallest
// positive float32 instead.
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// MaxDuration is the longest CompleteJSON can run under the default
// backoff: every attempt hits timeout and every retry waits in full.
func MaxDuration(timeout time.Duration, attempts int) time.Duration {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if attempts <= 0 {
		attempts = 1
	}
	c := &Client{retryBaseDelay: defaultRetryBaseDelay, retryMaxDelay: defaultRetryMaxDelay}
	total := time.Duration(attempts) * timeout
	for attempt := 1; attempt < attempts; attempt++ {
		total += c.backoffDelay(attempt)
	}
	return total
}

type emptyContentError struct {
	FinishReason string
	Refusal      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("completion: empty content (finish_reason=%q, refusal=%q)", e.FinishReason, e.Refusal)
}

// CompleteJSON sends a system and a user message and asks for a JSON
// object in reply. The returned content is the model output verbatim.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (Result, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return Result{}, errors.New("completion: user prompt required")
	}
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	logger := c.logger.With("step", "completion", "model", c.model)
	logger.Info("Sending completion request", "promptChars", len([]rune(userPrompt)))
	startTime := time.Now()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := c.completeOnce(ctx, req)
		if err == nil {
			result.Attempts = attempt
			result.Duration = time.Since(startTime)
			logger.Info("Received completion",
				"duration", result.Duration,
				"attempts", attempt,
				"finishReason", result.FinishReason,
				"promptTokens", result.PromptTokens,
				"completionTokens", result.CompletionTokens,
			)
			return result, nil
		}
		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt)
		if !retry {
			break
		}
		logger.Warn("Completion attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	logger.Error("Completion request failed", "duration", time.Since(startTime), "error", lastErr)
	if c.maxAttempts > 1 {
		return Result{}, fmt.Errorf("completion: failed after %d attempts: %w", c.maxAttempts, lastErr)
	}
	return Result{}, fmt.Errorf("completion: %w", lastErr)
}

func (c *Client) completeOnce(ctx context.Context, req openai.ChatCompletionRequest) (Result, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return Result{}, err
	}
	result := Result{
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		return result, &emptyContentError{FinishReason: "no choices"}
	}
	choice := resp.Choices[0]
	result.FinishReason = string(choice.FinishReason)
	if strings.TrimSpace(choice.Message.Content) == "" {
		return result, &emptyContentError{FinishReason: result.FinishReason, Refusal: choice.Message.Refusal}
	}
	result.Content = choice.Message.Content
	return result, nil
}

// statusCode extracts the HTTP status from go-openai errors.
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= c.maxAttempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var emptyErr *emptyContentError
	if errors.As(err, &emptyErr) {
		return c.backoffDelay(attempt), true
	}

	switch code := statusCode(err); {
	case code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code >= http.StatusInternalServerError:
		return c.backoffDelay(attempt), true
	case code != 0:
		return 0, false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

// backoffDelay doubles the base delay per attempt up to the maximum.
func (c *Client) backoffDelay(attempt int) time.Duration {
	if c.retryBaseDelay <= 0 {
		return 0
	}
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if c.retryMaxDelay > 0 && delay > c.retryMaxDelay/2 {
			return c.retryMaxDelay
		}
		delay *= 2
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
