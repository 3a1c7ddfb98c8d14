package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"hugchat/internal/domain"
)

// OpenAIEndpoint adapts any OpenAI-compatible chat-completions API (the
// format the hosted inference endpoints speak) to the Endpoint interface.
type OpenAIEndpoint struct {
	client *openai.Client
	logger *slog.Logger
}

// OpenAIConfig configures the OpenAI-compatible backend family.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty for api.openai.com
}

// NewOpenAIEndpoint creates an endpoint for an OpenAI-compatible backend.
func NewOpenAIEndpoint(cfg OpenAIConfig, logger *slog.Logger) *OpenAIEndpoint {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEndpoint{
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger,
	}
}

// Generate opens a streaming chat completion and converts its chunks into
// the internal Output vocabulary. Tool-call argument deltas are
// accumulated and emitted as complete ToolCallRequests when the round
// finishes.
func (e *OpenAIEndpoint) Generate(ctx context.Context, req *GenerateRequest) (<-chan Output, error) {
	stream, err := e.client.CreateChatCompletionStream(ctx, e.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("%w: open stream: %v", domain.ErrUpstream, err)
	}

	out := make(chan Output, 16)
	go func() {
		defer close(out)
		defer func() { _ = stream.Close() }()

		// send drops the chunk when the consumer has gone away
		send := func(o Output) bool {
			select {
			case out <- o:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var text strings.Builder
		pendingCalls := map[int]*toolCallAccumulator{}
		order := []int{}

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				send(Output{Err: fmt.Errorf("%w: stream recv: %v", domain.ErrUpstream, err)})
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				text.WriteString(delta.Content)
				if !send(Output{Token: Token{Text: delta.Content}}) {
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := pendingCalls[idx]
				if !ok {
					acc = &toolCallAccumulator{}
					pendingCalls[idx] = acc
					order = append(order, idx)
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args.WriteString(tc.Function.Arguments)
			}
		}

		for _, idx := range order {
			call, err := pendingCalls[idx].finish()
			if err != nil {
				e.logger.Warn("dropping unparseable tool call", "error", err)
				continue
			}
			if !send(Output{ToolCall: call}) {
				return
			}
		}

		generated := text.String()
		send(Output{GeneratedText: &generated})
	}()

	return out, nil
}

// Complete performs a non-streamed completion.
func (e *OpenAIEndpoint) Complete(ctx context.Context, req *GenerateRequest) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, e.buildRequest(req, false))
	if err != nil {
		return "", fmt.Errorf("%w: completion: %v", domain.ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", domain.ErrUpstream)
	}
	return resp.Choices[0].Message.Content, nil
}

func (e *OpenAIEndpoint) buildRequest(req *GenerateRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.Preprompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Preprompt,
		})
	}
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		messages = append(messages, msg)
	}

	var tools []openai.Tool
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		Stop:      req.Stop,
		Stream:    stream,
		Tools:     tools,
	}
}

type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

func (a *toolCallAccumulator) finish() (*ToolCallRequest, error) {
	args := map[string]any{}
	if raw := a.args.String(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("tool call %s arguments: %w", a.name, err)
		}
	}
	return &ToolCallRequest{ID: a.id, Name: a.name, Arguments: args}, nil
}
