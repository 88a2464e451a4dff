package ai

import (
	"context"
)

// Generation is the result of one generation call.
type Generation struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the persona prompt
	Temperature   float64  // Sampling temperature (0.0-2.0)
	Thinking      string   // Extended thinking mode configuration
	MaxTokens     int      // Upper bound on generated tokens, 0 means provider default
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	Requests       int     `json:"requests"`
	Failures       int     `json:"failures"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that adds system prompts in front
// of the persona prompt.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
// Higher values (e.g., 1.0) produce more random outputs, while lower values
// (e.g., 0.2) make outputs more focused and deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking returns a GenerateOption that enables extended thinking mode.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// WithMaxTokens caps the number of generated tokens.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// ApplyOptions folds opts over base.
func ApplyOptions(base GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		if o != nil {
			o(&base)
		}
	}
	return base
}

// Generator turns a persona and a prompt into text. The persona selects the
// system prompt (see PersonaPrompt) and doubles as the content source id the
// trust layer keys its state on.
//
// Errors are provider failures. Callers treat them as a soft failure of that
// single call.
type Generator interface {
	Generate(
		ctx context.Context,
		persona string,
		prompt string,
		opts ...GenerateOption,
	) (Generation, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, persona, prompt string, opts ...GenerateOption) (Generation, error)

// Generate calls f.
func (f GeneratorFunc) Generate(
	ctx context.Context,
	persona string,
	prompt string,
	opts ...GenerateOption,
) (Generation, error) {
	return f(ctx, persona, prompt, opts...)
}

// MetricsReporter is implemented by backends that track token usage.
type MetricsReporter interface {
	ResetMetrics()
	GetMetrics() ModelMetrics
}
