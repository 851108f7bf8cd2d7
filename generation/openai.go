package generation

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/c360studio/tripsync/workflow"
)

// ChatCompleter is the subset of *openai.Client used by OpenAIGenerator.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGenerator calls the OpenAI chat completions API directly with JSON
// response format. Every stage uses the same model.
type OpenAIGenerator struct {
	client ChatCompleter
	model  string
	opts   options
}

var _ workflow.Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a generator for modelName. An empty modelName
// uses gpt-4o-mini.
func NewOpenAIGenerator(client ChatCompleter, modelName string, opts ...Option) *OpenAIGenerator {
	if modelName == "" {
		modelName = openai.GPT4oMini
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &OpenAIGenerator{client: client, model: modelName, opts: o}
}

// NewOpenAIClient builds an *openai.Client, pointing it at baseURL when set.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// Generate implements workflow.Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, stage string, view map[string]any) (workflow.Output, error) {
	messages, err := g.opts.prompt(stage, view)
	if err != nil {
		return workflow.Output{}, err
	}

	req := openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if g.opts.temperature != nil {
		req.Temperature = float32(*g.opts.temperature)
	}
	if g.opts.maxTokens > 0 {
		req.MaxCompletionTokens = g.opts.maxTokens
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return workflow.Output{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return workflow.Output{}, fmt.Errorf("%w: stage %s", ErrEmptyResponse, stage)
	}

	g.opts.logger.Debug("Generated stage output",
		"stage", stage,
		"model", resp.Model,
		"finish_reason", resp.Choices[0].FinishReason,
		"tokens", resp.Usage.TotalTokens)
	return workflow.Output{Text: resp.Choices[0].Message.Content}, nil
}
