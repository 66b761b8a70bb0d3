// Package llm sends normalized report screenshots to an OpenAI-compatible
// vision model and returns the raw completion text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"car-report/internal/apperr"
	"car-report/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	MaxRetries   uint64
	RetryBackoff time.Duration
	Timeout      time.Duration
	Language     string
}

type Client struct {
	api *openai.Client
	cfg Config
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperr.Config("missing OpenAI API key", nil)
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &reportHeaderTransport{base: http.DefaultTransport},
	}

	return &Client{api: openai.NewClientWithConfig(clientConfig), cfg: cfg}, nil
}

// Analyze sends every payload, in order, with the extraction instructions and
// returns the first choice's content. A completion cut off at MaxTokens is
// returned as is.
func (c *Client) Analyze(ctx context.Context, payloads []models.ImagePayload) (string, error) {
	if len(payloads) == 0 {
		return "", apperr.Validation("no images to analyze", nil)
	}

	req := c.buildRequest(payloads)
	logger := log.With().
		Str("report_id", ReportIDFromContext(ctx)).
		Str("model", c.cfg.Model).
		Int("images", len(payloads)).
		Logger()

	attempt := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryBackoff

	resp, err := backoff.RetryWithData(func() (openai.ChatCompletionResponse, error) {
		attempt++
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !retryable(ctx, err) {
			return resp, backoff.Permanent(err)
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("Chat completion failed, retrying")
		return resp, err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, c.cfg.MaxRetries), ctx))
	if err != nil {
		return "", apperr.API(fmt.Sprintf("chat completion failed after %d attempt(s)", attempt), err)
	}

	if len(resp.Choices) == 0 {
		return "", apperr.API("model returned no choices", nil)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		logger.Warn().Int("max_tokens", c.cfg.MaxTokens).Msg("Completion truncated at token limit")
	}
	logger.Info().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Chat completion received")

	return choice.Message.Content, nil
}

func (c *Client) buildRequest(payloads []models.ImagePayload) openai.ChatCompletionRequest {
	parts := make([]openai.ChatMessagePart, 0, len(payloads)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: userPrompt(c.cfg.Language, len(payloads)),
	})
	for _, p := range payloads {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    p.DataURL,
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(c.cfg.Language)},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	}
}

// retryable is true for rate limits, server errors and network failures.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
