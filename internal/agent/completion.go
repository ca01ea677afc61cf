package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docent/pkg/llm"
	"docent/pkg/logging"
)

const (
	// maxTransientRetries bounds retries of a failed model call within one
	// step, on top of the HTTP-level retry inside the client.
	maxTransientRetries = 2

	// maxFunctionCallAttempts bounds the inject-and-retry cycle when the
	// model answers with a function-call signal instead of text.
	maxFunctionCallAttempts = 3

	functionCallFailure = "I could not produce an answer for this request."
)

// completer wraps the LLM client with the loop's call policy: a timeout per
// call, bounded transient retry, and function-call payload injection.
type completer struct {
	client       llm.Client
	timeout      time.Duration
	capabilities map[string]string
	logger       logging.Logger
}

func newCompleter(client llm.Client, timeout time.Duration, capabilities map[string]string, logger logging.Logger) *completer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &completer{
		client:       client,
		timeout:      timeout,
		capabilities: capabilities,
		logger:       logger,
	}
}

// complete sends one rendered prompt and returns the trimmed response text.
// When the model responds with a function-call signal, the named capability's
// precomputed payload is injected and the call retried, up to
// maxFunctionCallAttempts, after which a fixed failure string is returned.
func (c *completer) complete(ctx context.Context, prompt string) (string, error) {
	messages := []llm.Message{{Role: "user", Content: prompt}}

	for attempt := 0; attempt < maxFunctionCallAttempts; attempt++ {
		completion, err := c.completeOnce(ctx, messages)
		if err != nil {
			return "", err
		}
		if len(completion.ToolCalls) == 0 {
			return strings.TrimSpace(completion.Text), nil
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: completion.Text})
		for _, call := range completion.ToolCalls {
			payload, ok := c.capabilities[call.Name]
			if !ok {
				payload = fmt.Sprintf("capability %q is not available", call.Name)
			}
			messages = append(messages, llm.Message{
				Role:       "tool",
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    payload,
			})
		}
	}
	return functionCallFailure, nil
}

func (c *completer) completeOnce(ctx context.Context, messages []llm.Message) (llm.Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		completion, err := c.client.Complete(callCtx, messages, llm.CompleteOptions{})
		llmDuration.Observe(time.Since(start).Seconds())
		cancel()
		if err == nil {
			llmCallsTotal.WithLabelValues("success").Inc()
			return completion, nil
		}
		llmCallsTotal.WithLabelValues("error").Inc()
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.WithError(err).WithField("attempt", attempt+1).Warn("Model call failed")
	}
	return llm.Completion{}, fmt.Errorf("model call failed: %w", lastErr)
}
