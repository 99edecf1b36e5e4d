package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"querypilot-ai/internal/constants"

	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client              *openai.Client
	model               string
	maxCompletionTokens int
}

func NewOpenAIClient(config Config) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	client := openai.NewClient(config.APIKey)
	model := config.Model
	if model == "" {
		model = openai.GPT4o
	}

	return &OpenAIClient{
		client:              client,
		model:               model,
		maxCompletionTokens: config.MaxCompletionTokens,
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error) {
	// Check if the context is cancelled
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// go-openai drops a zero temperature because of omitempty, which turns
	// a deterministic call into the provider default of 1.
	temperature := float32(opts.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: maxTokensOrDefault(opts.MaxTokens, c.maxCompletionTokens),
		Temperature:         temperature,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: constants.OpenAI, Err: errors.New("no response from OpenAI")}
	}

	return &Completion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenAIClient) GetModelInfo() ModelInfo {
	return ModelInfo{
		Name:                c.model,
		Provider:            constants.OpenAI,
		MaxCompletionTokens: c.maxCompletionTokens,
	}
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   constants.OpenAI,
			StatusCode: apiErr.HTTPStatusCode,
			Transient:  isTransientStatus(apiErr.HTTPStatusCode),
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{
			Provider:   constants.OpenAI,
			StatusCode: reqErr.HTTPStatusCode,
			Transient:  isTransientStatus(reqErr.HTTPStatusCode),
			Err:        err,
		}
	}

	// Anything else is a transport failure before a status was received.
	return &ProviderError{Provider: constants.OpenAI, Transient: true, Err: err}
}
