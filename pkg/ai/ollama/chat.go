package ollama

import (
	"context"
	"fmt"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"

	"github.com/ollama/ollama/api"
)

// minContext is Ollama's default context window. Prompts that need more get
// num_ctx raised to fit.
const minContext = 4096

// Generate sends a single-turn prompt with the persona's system prompt and
// returns the assistant text.
func (c *GenerationClient) Generate(
	ctx context.Context,
	persona string,
	prompt string,
	opts ...ai.GenerateOption,
) (ai.Generation, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.model,
		Temperature: 0.7,
	}, opts...)

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return ai.Generation{}, err
	}
	defer c.reqLock.Release(1)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msgs := []api.Message{}
	system := ai.PersonaMessages(persona, options.SystemPrompts)
	for _, sp := range system {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.MaxTokens > 0 {
		req.Options["num_predict"] = options.MaxTokens
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{
			Value: options.Thinking,
		}
	}

	tokens := 200 + ai.CountTokens(prompt)
	for _, sp := range system {
		tokens += ai.CountTokens(sp)
	}
	if tokens > minContext {
		req.Options["num_ctx"] = tokens
	}

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		c.recordFailure()
		logger.Debug("[AI] Generation failed", "persona", persona, "model", options.Model, "err", err)
		return ai.Generation{}, fmt.Errorf("ollama generate (%s): %w", persona, err)
	}

	total := final.Metrics.PromptEvalCount + final.Metrics.EvalCount
	c.modifyMetrics(ai.ModelMetrics{
		Requests:     1,
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  total,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	return ai.Generation{Text: final.Message.Content, TokensUsed: total}, nil
}

// LoadModel preloads the model into memory to reduce latency on the first
// scheduler iteration.
func (c *GenerationClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.model}, opts...)

	req := &api.ChatRequest{
		Model: options.Model,
	}
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		return nil
	}); err != nil {
		return fmt.Errorf("loading model %s: %w", options.Model, err)
	}
	return nil
}
