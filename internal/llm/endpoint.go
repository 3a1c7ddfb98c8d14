// Package llm abstracts upstream inference backends behind a streaming
// Endpoint interface, one conversion adapter per backend family.
package llm

import (
	"context"
)

// Message is one prompt message sent upstream.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant", "tool"
	Content string `json:"content"`

	// ToolCallID correlates a tool-result message with the call that
	// produced it (role "tool").
	ToolCallID string `json:"toolCallId,omitempty"`

	// ToolCalls replays the calls an assistant message made, so multi-round
	// transcripts are valid for backends that require call/result pairing.
	ToolCalls []ToolCallRequest `json:"toolCalls,omitempty"`
}

// ToolDefinition advertises a callable tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON schema
}

// ToolCallRequest is a complete tool invocation emitted by the model.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Token is one streamed text fragment. Special tokens (stop sequences,
// control tokens) are not user-visible content.
type Token struct {
	Text    string `json:"text"`
	Special bool   `json:"special,omitempty"`
}

// Output is one chunk of the upstream stream. Exactly one of the payload
// fields is meaningful per chunk; GeneratedText arrives once, on the final
// chunk of a round. A non-nil Err terminates the stream.
type Output struct {
	Token         Token
	ToolCall      *ToolCallRequest
	GeneratedText *string
	Err           error
}

// GenerateRequest is a single generation round.
type GenerateRequest struct {
	Model     string
	Preprompt string
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int
	Stop      []string
}

// Endpoint is a cancellable streaming generation backend. Generate
// returns immediately; chunks arrive on the channel, which is closed
// after the final chunk. Cancelling ctx aborts the upstream request.
type Endpoint interface {
	Generate(ctx context.Context, req *GenerateRequest) (<-chan Output, error)

	// Complete performs a small non-streamed completion (title
	// generation, query rewriting).
	Complete(ctx context.Context, req *GenerateRequest) (string, error)
}
