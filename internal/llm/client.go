package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kbassist/backend/pkg/circuitbreaker"
	"github.com/kbassist/backend/pkg/logger"
	"github.com/kbassist/backend/pkg/retry"
)

var ErrEmptyResponse = errors.New("llm returned no choices")

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	SystemPrompt   string
	// RequestTimeout bounds a single Complete or embedding batch including retries.
	RequestTimeout time.Duration
}

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	systemPrompt   string
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
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

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Retryable:      isRetryable,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
		zap.Bool("custom_base_url", cfg.BaseURL != ""),
	)

	return &Client{
		client:         openai.NewClientWithConfig(oc),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		systemPrompt:   cfg.SystemPrompt,
		timeout:        cfg.RequestTimeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

// isRetryable treats rate limiting, server errors and transport failures as
// transient. Other API errors (bad key, bad request) are final.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return retry.Permanent(ErrEmptyResponse)
			}

			logger.Debug("LLM completion generated",
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

	if err != nil {
		return nil, err
	}

	return result, nil
}

// Generate answers a fully assembled prompt under the configured system prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: c.systemPrompt,
		UserPrompt:   prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	logger.Debug("Answer generated", zap.Int("answer_length", len(resp.Content)))

	return strings.TrimSpace(resp.Content), nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// GenerateBatchEmbeddings returns one vector per text in input order.
func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	embeddings := make([][]float32, 0, len(texts))

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]

		err := c.cb.Execute(ctx, func() error {
			return retry.Do(ctx, c.retryConfig, func() error {
				resp, err := c.client.CreateEmbeddings(
					ctx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(c.embeddingModel),
					},
				)

				if err != nil {
					return fmt.Errorf("failed to generate batch embeddings: %w", err)
				}
				if len(resp.Data) != len(batch) {
					return retry.Permanent(fmt.Errorf("embedding count mismatch: sent %d, got %d", len(batch), len(resp.Data)))
				}

				// The API may answer out of order; Index ties each vector to its input.
				out := make([][]float32, len(batch))
				for _, data := range resp.Data {
					if data.Index < 0 || data.Index >= len(batch) {
						return retry.Permanent(fmt.Errorf("embedding index %d out of range", data.Index))
					}
					embedding := make([]float32, len(data.Embedding))
					copy(embedding, data.Embedding)
					out[data.Index] = embedding
				}
				for j, e := range out {
					if e == nil {
						return retry.Permanent(fmt.Errorf("embedding for input %d missing", i+j))
					}
				}
				embeddings = append(embeddings, out...)

				return nil
			})
		})

		if err != nil {
			return nil, err
		}
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}
