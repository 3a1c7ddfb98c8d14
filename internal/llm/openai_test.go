package llm

import (
	"log/slog"
	"os"
	"testing"
)

func testEndpoint() *OpenAIEndpoint {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	return NewOpenAIEndpoint(OpenAIConfig{APIKey: "test"}, logger)
}

func TestBuildRequest_PrepromptBecomesSystemMessage(t *testing.T) {
	e := testEndpoint()

	req := e.buildRequest(&GenerateRequest{
		Model:     "test-model",
		Preprompt: "You are helpful.",
		Messages: []Message{
			{Role: "user", Content: "hi"},
		},
		MaxTokens: 100,
	}, true)

	if req.Model != "test-model" || !req.Stream || req.MaxTokens != 100 {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("got %d messages, want system + user", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || req.Messages[0].Content != "You are helpful." {
		t.Errorf("first message = %+v, want the system preprompt", req.Messages[0])
	}
	if req.Messages[1].Role != "user" {
		t.Errorf("second message role = %q, want user", req.Messages[1].Role)
	}
}

func TestBuildRequest_NoPreprompt(t *testing.T) {
	e := testEndpoint()

	req := e.buildRequest(&GenerateRequest{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, false)

	if req.Stream {
		t.Error("stream flag set on a non-streamed request")
	}
	if len(req.Messages) != 1 {
		t.Errorf("got %d messages, want 1", len(req.Messages))
	}
}

func TestBuildRequest_ToolTranscript(t *testing.T) {
	e := testEndpoint()

	req := e.buildRequest(&GenerateRequest{
		Model: "m",
		Messages: []Message{
			{Role: "user", Content: "weather in Paris?"},
			{
				Role: "assistant",
				ToolCalls: []ToolCallRequest{
					{ID: "call-1", Name: "weather", Arguments: map[string]any{"city": "Paris"}},
				},
			},
			{Role: "tool", Content: `{"temp": 24}`, ToolCallID: "call-1"},
		},
		Tools: []ToolDefinition{
			{Name: "weather", Description: "Look up weather", Parameters: map[string]any{"type": "object"}},
		},
	}, true)

	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "weather" {
		t.Fatalf("tools = %+v", req.Tools)
	}

	assistant := req.Messages[1]
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant tool calls = %+v", assistant.ToolCalls)
	}
	call := assistant.ToolCalls[0]
	if call.ID != "call-1" || call.Function.Name != "weather" {
		t.Errorf("call = %+v", call)
	}
	if call.Function.Arguments != `{"city":"Paris"}` {
		t.Errorf("arguments = %q, want marshaled JSON", call.Function.Arguments)
	}

	toolMsg := req.Messages[2]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call-1" {
		t.Errorf("tool message = %+v", toolMsg)
	}
}

func TestToolCallAccumulator_Finish(t *testing.T) {
	acc := &toolCallAccumulator{id: "call-1", name: "weather"}
	acc.args.WriteString(`{"city":`)
	acc.args.WriteString(`"Paris"}`)

	call, err := acc.finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if call.ID != "call-1" || call.Name != "weather" {
		t.Errorf("call = %+v", call)
	}
	if call.Arguments["city"] != "Paris" {
		t.Errorf("arguments = %v", call.Arguments)
	}
}

func TestToolCallAccumulator_EmptyArguments(t *testing.T) {
	acc := &toolCallAccumulator{id: "call-2", name: "ping"}
	call, err := acc.finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(call.Arguments) != 0 {
		t.Errorf("arguments = %v, want empty map", call.Arguments)
	}
}

func TestToolCallAccumulator_BadArguments(t *testing.T) {
	acc := &toolCallAccumulator{id: "call-3", name: "broken"}
	acc.args.WriteString(`{"city": unterminated`)
	if _, err := acc.finish(); err == nil {
		t.Error("expected an error for unparseable arguments")
	}
}

func TestEstimateTokensSimple(t *testing.T) {
	if got := EstimateTokensSimple(""); got != 0 {
		t.Errorf("empty text = %d tokens, want 0", got)
	}
	long := EstimateTokensSimple("the quick brown fox jumps over the lazy dog")
	short := EstimateTokensSimple("hi")
	if long <= short {
		t.Errorf("longer text estimated at %d tokens, shorter at %d", long, short)
	}
}
