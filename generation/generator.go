// Package generation implements workflow.Generator over chat completion backends.
package generation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/c360studio/tripsync/llm"
	"github.com/c360studio/tripsync/model"
	"github.com/c360studio/tripsync/recommendation"
	"github.com/c360studio/tripsync/workflow"
)

// ErrEmptyResponse is returned when a backend answers with no choices.
var ErrEmptyResponse = errors.New("empty generation response")

// Completer is the subset of llm.Client used by LLMGenerator.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

type options struct {
	temperature   *float64
	maxTokens     int
	minCandidates int
	maxCandidates int
	logger        *slog.Logger
}

func defaultOptions() options {
	return options{
		minCandidates: recommendation.MinCandidates,
		maxCandidates: recommendation.MaxCandidates,
		logger:        slog.Default(),
	}
}

// Option configures a generator.
type Option func(*options)

// WithTemperature sets the sampling temperature for every stage.
func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = &t }
}

// WithMaxTokens caps response length. Zero keeps the backend default.
func WithMaxTokens(n int) Option {
	return func(o *options) { o.maxTokens = n }
}

// WithCandidateBounds sets the candidate count requested from the model.
func WithCandidateBounds(minN, maxN int) Option {
	return func(o *options) {
		o.minCandidates = minN
		o.maxCandidates = maxN
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func (o options) prompt(stage string, view map[string]any) ([]llm.Message, error) {
	return BuildMessages(PromptData{
		Stage:         stage,
		View:          view,
		MinCandidates: o.minCandidates,
		MaxCandidates: o.maxCandidates,
	})
}

// LLMGenerator renders stage prompts and sends them through an llm.Client,
// which picks the model from the stage's capability.
type LLMGenerator struct {
	client Completer
	opts   options
}

var _ workflow.Generator = (*LLMGenerator)(nil)

// NewLLMGenerator creates a generator over client.
func NewLLMGenerator(client Completer, opts ...Option) *LLMGenerator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &LLMGenerator{client: client, opts: o}
}

// Generate implements workflow.Generator. The raw completion text is
// returned for the pipeline to decode; an empty completion is an empty Output,
// which polish treats as "no changes".
func (g *LLMGenerator) Generate(ctx context.Context, stage string, view map[string]any) (workflow.Output, error) {
	messages, err := g.opts.prompt(stage, view)
	if err != nil {
		return workflow.Output{}, err
	}

	capability := model.CapabilityForStage(stage)
	resp, err := g.client.Complete(ctx, llm.Request{
		Capability:  capability.String(),
		Messages:    messages,
		Temperature: g.opts.temperature,
		MaxTokens:   g.opts.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return workflow.Output{}, err
	}
	g.opts.logger.Debug("Generated stage output",
		"stage", stage,
		"capability", capability,
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens)
	return workflow.Output{Text: resp.Content}, nil
}
