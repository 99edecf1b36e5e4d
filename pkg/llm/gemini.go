package llm

import (
	"context"
	"errors"
	"fmt"
	"querypilot-ai/internal/constants"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

type GeminiClient struct {
	client              *genai.Client
	model               string
	maxCompletionTokens int
}

func NewGeminiClient(config Config) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	// Create the Gemini SDK client using the provided API key.
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %v", err)
	}

	return &GeminiClient{
		client:              client,
		model:               config.Model,
		maxCompletionTokens: config.MaxCompletionTokens,
	}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error) {
	// Check if the context is cancelled
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	model := c.client.GenerativeModel(c.model)
	model.SetMaxOutputTokens(int32(maxTokensOrDefault(opts.MaxTokens, c.maxCompletionTokens)))
	model.SetTemperature(float32(opts.Temperature))
	model.SafetySettings = []*genai.SafetySetting{
		{
			Category:  genai.HarmCategoryHarassment,
			Threshold: genai.HarmBlockNone,
		},
		{
			Category:  genai.HarmCategoryHateSpeech,
			Threshold: genai.HarmBlockNone,
		},
	}

	result, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, &ProviderError{Provider: constants.Gemini, Err: errors.New("no candidates in Gemini response")}
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	completion := &Completion{Text: text.String()}
	if result.UsageMetadata != nil {
		completion.PromptTokens = int(result.UsageMetadata.PromptTokenCount)
		completion.CompletionTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	return completion, nil
}

// GetModelInfo returns information about the Gemini model.
func (c *GeminiClient) GetModelInfo() ModelInfo {
	return ModelInfo{
		Name:                c.model,
		Provider:            constants.Gemini,
		MaxCompletionTokens: c.maxCompletionTokens,
	}
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &ProviderError{
			Provider:   constants.Gemini,
			StatusCode: gErr.Code,
			Transient:  isTransientStatus(gErr.Code),
			Err:        err,
		}
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if status := apiErr.HTTPCode(); status > 0 {
			return &ProviderError{Provider: constants.Gemini, StatusCode: status, Transient: isTransientStatus(status), Err: err}
		}
		switch apiErr.GRPCStatus().Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
			return &ProviderError{Provider: constants.Gemini, Transient: true, Err: err}
		}
		return &ProviderError{Provider: constants.Gemini, Err: err}
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &ProviderError{Provider: constants.Gemini, Err: err}
	}

	return &ProviderError{Provider: constants.Gemini, Transient: true, Err: err}
}
