package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chrisx599/ChatEmail/internal/metrics"
	"github.com/chrisx599/ChatEmail/pkg/circuitbreaker"
	"github.com/chrisx599/ChatEmail/pkg/logger"
	"github.com/chrisx599/ChatEmail/pkg/retry"
)

// ErrEmptyCompletion is returned when the service answers with no choices.
var ErrEmptyCompletion = errors.New("completion has no choices")

// ChatCompleter is the part of the OpenAI client the Client uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Options struct {
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       float32
	MaxTokens         int
	Timeout           time.Duration
	OutputLanguage    string
	MaxBodyChars      int
	RequestsPerSecond float64
}

type Client struct {
	api         ChatCompleter
	opts        Options
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
	limiter     *rate.Limiter
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
	JSON         bool
	Operation    string
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return NewClientWithAPI(openai.NewClientWithConfig(cfg), opts)
}

// NewClientWithAPI builds a Client over any ChatCompleter.
func NewClientWithAPI(api ChatCompleter, opts Options) *Client {
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxBodyChars <= 0 {
		opts.MaxBodyChars = 8000
	}
	if opts.OutputLanguage == "" {
		opts.OutputLanguage = "English"
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	log := logger.Named("llm")

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		HalfOpenRequests: 2,
		Interval:         time.Minute,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure:        isServiceFailure,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		},
		Logger: log,
	})

	retryConfig := retry.Config{
		Name:           "chat_completion",
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		RetryIf:        isTransient,
		Logger:         log,
	}

	log.Info("LLM client initialized",
		zap.String("model", opts.Model),
		zap.String("language", opts.OutputLanguage),
		zap.Float64("requests_per_second", opts.RequestsPerSecond),
	)

	return &Client{
		api:         api,
		opts:        opts,
		cb:          cb,
		retryConfig: retryConfig,
		limiter:     rate.NewLimiter(limit, burst),
	}
}

func (c *Client) Model() string {
	return c.opts.Model
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.opts.Temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.opts.MaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	var result *CompletionResponse

	err := c.cb.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Permanent(fmt.Errorf("failed to wait for rate limiter: %w", err))
			}

			resp, err := c.api.CreateChatCompletion(ctx, chatReq)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return ErrEmptyCompletion
			}

			logger.Debug("LLM completion generated",
				zap.String("operation", req.Operation),
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}
			return nil
		})
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestDuration.WithLabelValues(req.Operation, status).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}

	metrics.LLMTokensUsed.WithLabelValues(c.opts.Model, "prompt").Add(float64(result.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(c.opts.Model, "completion").Add(float64(result.Usage.CompletionTokens))

	return result, nil
}

// isTransient reports rate limiting, server errors and network failures.
func isTransient(err error) bool {
	if errors.Is(err, ErrEmptyCompletion) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// isServiceFailure keeps client-side errors such as bad requests from opening the breaker.
func isServiceFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 0 || apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	return true
}
