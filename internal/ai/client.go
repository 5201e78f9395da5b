package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"invoice-recon/internal/apperr"
)

// Client is the capability boundary to the AI provider. Components hold
// this interface; whether the real provider is configured is decided
// once at startup, never checked ad hoc at call sites.
type Client interface {
	// ExtractWithSchema sends text for schema-constrained extraction and
	// returns the validated JSON object.
	ExtractWithSchema(ctx context.Context, systemPrompt, text string, schema *jsonschema.Schema) (map[string]any, error)

	// Embed returns a semantic embedding vector for the text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Explain produces a plain-English narrative for structured data.
	Explain(ctx context.Context, data any, contextText string) (string, error)

	// Model reports the model identifier recorded in document metadata.
	Model() string
}

// Config holds AI provider configuration.
type Config struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	MaxTokens      int
}

// OpenAIClient implements Client against the OpenAI API.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel string
	maxTokens      int
	logger         *zap.Logger
}

// NewClient selects the real client when an API key is configured and
// the disabled client otherwise. Extraction against the disabled client
// fails loudly instead of fabricating data.
func NewClient(cfg Config, logger *zap.Logger) Client {
	if cfg.APIKey == "" {
		logger.Warn("AI provider not configured; extraction calls will fail")
		return &disabledClient{}
	}
	return NewOpenAIClient(cfg, logger)
}

// NewOpenAIClient creates the real provider client.
func NewOpenAIClient(cfg Config, logger *zap.Logger) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &OpenAIClient{
		client:         openai.NewClient(cfg.APIKey),
		model:          model,
		embeddingModel: embeddingModel,
		maxTokens:      maxTokens,
		logger:         logger,
	}
}

// Model returns the configured chat model identifier.
func (c *OpenAIClient) Model() string {
	return c.model
}

// ExtractWithSchema runs a JSON-mode completion and validates the result.
func (c *OpenAIClient) ExtractWithSchema(ctx context.Context, systemPrompt, text string, schema *jsonschema.Schema) (map[string]any, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.logger.Error("Extraction call failed", zap.Error(err))
		return nil, apperr.ServiceUnavailable("extraction call failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperr.ServiceUnavailable("extraction returned no choices")
	}

	content := resp.Choices[0].Message.Content
	result, err := ValidateResponse(content, schema)
	if err != nil {
		c.logger.Error("Extraction response rejected",
			zap.Error(err),
			zap.Int("content_length", len(content)))
		return nil, err
	}
	return result, nil
}

// Embed returns the embedding vector for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, apperr.ServiceUnavailable("embedding call failed: %v", err)
	}
	if len(resp.Data) == 0 {
		return nil, apperr.ServiceUnavailable("embedding returned no data")
	}

	vector := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float64(v)
	}
	return vector, nil
}

// Explain asks the provider for a short business-facing narrative.
func (c *OpenAIClient) Explain(ctx context.Context, data any, contextText string) (string, error) {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal narrative payload: %w", err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.3,
		MaxTokens:   500,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a professional business analyst. Explain the following data in clear, concise business terms.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Context: %s\n\nData: %s\n\nProvide a brief, professional explanation.", contextText, payload),
			},
		},
	})
	if err != nil {
		return "", apperr.ServiceUnavailable("narrative call failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.ServiceUnavailable("narrative returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ValidateResponse parses an AI JSON response and validates it against
// the schema. A malformed or non-conforming response is a schema
// validation failure, never silently accepted.
func ValidateResponse(content string, schema *jsonschema.Schema) (map[string]any, error) {
	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, apperr.SchemaValidation("response is not valid JSON: %v", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return nil, apperr.SchemaValidation("%v", err)
	}
	object, ok := parsed.(map[string]any)
	if !ok {
		return nil, apperr.SchemaValidation("response is not a JSON object")
	}
	return object, nil
}

// disabledClient is selected when no API key is configured. Every call
// reports the service as unavailable so the pipeline surfaces the
// document for manual review instead of guessing.
type disabledClient struct{}

func (d *disabledClient) ExtractWithSchema(ctx context.Context, systemPrompt, text string, schema *jsonschema.Schema) (map[string]any, error) {
	return nil, apperr.ServiceUnavailable("AI provider not configured")
}

func (d *disabledClient) Embed(ctx context.Context, text string) ([]float64, error) {
	return nil, apperr.ServiceUnavailable("AI provider not configured")
}

func (d *disabledClient) Explain(ctx context.Context, data any, contextText string) (string, error) {
	return "", apperr.ServiceUnavailable("AI provider not configured")
}

func (d *disabledClient) Model() string { return "" }
