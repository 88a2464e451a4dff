package openai

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

// Generate sends prompt to the chat model with the persona's system prompt
// in front of it and returns the generated text with the token usage the
// provider reported.
//
// Example:
//
//	gen, err := client.Generate(ctx, ai.PersonaDeepAnalysis, "Paper: ...")
//	if err != nil {
//		return err
//	}
//	fmt.Println(gen.Text)
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

	msgs := []openai.ChatCompletionMessageParamUnion{}
	for _, sp := range ai.PersonaMessages(persona, options.SystemPrompts) {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}
	if options.MaxTokens > 0 {
		body.MaxCompletionTokens = openai.Int(int64(options.MaxTokens))
	}

	if options.Thinking != "" {
		// gpt-5 models only accept temperature 1.0 when reasoning is enabled
		if c.chatURL == "" {
			body.Temperature = openai.Float(1.0)
		}
		body.ReasoningEffort = shared.ReasoningEffort(options.Thinking)
	}

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		c.recordFailure()
		logger.Debug("[AI] Generation failed", "persona", persona, "model", options.Model, "err", err)
		return ai.Generation{}, fmt.Errorf("openai generate (%s): %w", persona, err)
	}
	duration := time.Since(start).Milliseconds()

	if len(response.Choices) == 0 {
		c.recordFailure()
		return ai.Generation{}, fmt.Errorf("openai generate (%s): no choices in response", persona)
	}
	text := response.Choices[0].Message.Content

	total := int(response.Usage.TotalTokens)
	if total == 0 {
		total = ai.CountTokens(prompt) + ai.CountTokens(text)
	}

	c.modifyMetrics(ai.ModelMetrics{
		Requests:     1,
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  total,
		DurationMs:   duration,
	})

	return ai.Generation{Text: text, TokensUsed: total}, nil
}

// ResetMetrics clears all accumulated token and timing metrics to zero.
func (c *GenerationClient) ResetMetrics() {
	c.metricsLock.Lock()
	c.metrics = ai.ModelMetrics{}
	c.metricsLock.Unlock()
}

// GetMetrics returns the accumulated metrics since the last reset.
func (c *GenerationClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *GenerationClient) recordFailure() {
	c.metricsLock.Lock()
	c.metrics.Requests++
	c.metrics.Failures++
	c.metricsLock.Unlock()
}

func (c *GenerationClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.Requests += m.Requests
	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs

	if c.metrics.DurationMs > 0 {
		tokensPerSecond := (float64(c.metrics.TotalTokens) * 1000.0) / float64(c.metrics.DurationMs)
		c.metrics.TokenPerSecond = float32(math.Round(tokensPerSecond*100) / 100)
	}
}
