package llm

import "context"

// Client is a blocking chat-completion client. Implementations send the full
// message list and return the complete response; there is no streaming
// contract anywhere in docent.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts CompleteOptions) (Completion, error)
}

// Message is one entry of a chat transcript sent to the model.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// CompleteOptions carries per-call settings.
type CompleteOptions struct {
	MaxTokens int
	Tools     []Tool
}

// Completion is a finished model response. When the model answered with a
// function-call signal instead of text, ToolCalls is non-empty and Text may
// be empty.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// Tool describes a callable capability advertised to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is the model's request to invoke a named capability.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}
