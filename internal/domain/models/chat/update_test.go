package chat

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeUpdate_RoundTrip(t *testing.T) {
	updates := []MessageUpdate{
		StreamUpdate{Token: "Hel"},
		FinalAnswerUpdate{Text: "Hello there", Interrupted: false},
		FinalAnswerUpdate{Text: "partial", Interrupted: true},
		TitleUpdate{Title: "Greeting"},
		StatusUpdate{Status: StatusStarted},
		StatusUpdate{Status: StatusError, Message: "upstream failed", StatusCode: 502},
		ToolUpdate{Subtype: ToolUpdateCall, UUID: "abc", Call: &ToolCall{Name: "fetchUrl", Parameters: map[string]any{"url": "https://example.com"}}},
		ToolUpdate{Subtype: ToolUpdateResult, UUID: "abc", Result: "ok"},
		WebSearchUpdate{Subtype: WebSearchUpdateProgress, Message: "Searching the web"},
		WebSearchUpdate{Subtype: WebSearchUpdateSources, Sources: []WebSearchSource{{Title: "Example", Link: "https://example.com"}}},
		FileUpdate{Name: "chart.png", Sha: "deadbeef", Mime: "image/png"},
		ReasoningUpdate{Subtype: ReasoningUpdateStream, Token: "thinking"},
	}

	for _, original := range updates {
		data, err := json.Marshal(original)
		if err != nil {
			t.Fatalf("marshal %T: %v", original, err)
		}

		decoded, err := DecodeUpdate(data)
		if err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		if decoded.UpdateType() != original.UpdateType() {
			t.Errorf("type mismatch for %s: got %q want %q", data, decoded.UpdateType(), original.UpdateType())
		}

		// re-encoding must produce the same wire bytes
		again, err := json.Marshal(decoded)
		if err != nil {
			t.Fatalf("re-marshal %T: %v", decoded, err)
		}
		if string(again) != string(data) {
			t.Errorf("round trip changed wire shape:\n  first:  %s\n  second: %s", data, again)
		}
	}
}

func TestDecodeUpdate_TypeDiscriminatorOnWire(t *testing.T) {
	data, err := json.Marshal(StreamUpdate{Token: "hi"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope["type"] != "stream" {
		t.Errorf("expected type 'stream', got %v", envelope["type"])
	}
	if envelope["token"] != "hi" {
		t.Errorf("expected token 'hi', got %v", envelope["token"])
	}
}

func TestDecodeUpdate_UnknownType(t *testing.T) {
	_, err := DecodeUpdate([]byte(`{"type":"hologram","token":"x"}`))
	if err == nil {
		t.Fatal("expected an error for an unknown update type")
	}

	var malformed *MalformedUpdateError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedUpdateError, got %T: %v", err, err)
	}
	if malformed.Type != "hologram" {
		t.Errorf("expected offending type 'hologram', got %q", malformed.Type)
	}
}

func TestDecodeUpdate_InvalidJSON(t *testing.T) {
	if _, err := DecodeUpdate([]byte(`{"type":`)); err == nil {
		t.Fatal("expected an error for truncated JSON")
	}
}

func TestUpdateLog_UnmarshalPreservesVariants(t *testing.T) {
	raw := `[
		{"type":"status","status":"started"},
		{"type":"stream","token":"Hel"},
		{"type":"stream","token":"lo"},
		{"type":"webSearch","subtype":"finished"},
		{"type":"finalAnswer","text":"Hello","interrupted":false}
	]`

	var log UpdateLog
	if err := json.Unmarshal([]byte(raw), &log); err != nil {
		t.Fatalf("unmarshal log: %v", err)
	}
	if len(log) != 5 {
		t.Fatalf("expected 5 updates, got %d", len(log))
	}

	if _, ok := log[0].(StatusUpdate); !ok {
		t.Errorf("expected StatusUpdate first, got %T", log[0])
	}
	stream, ok := log[1].(StreamUpdate)
	if !ok {
		t.Fatalf("expected StreamUpdate second, got %T", log[1])
	}
	if stream.Token != "Hel" {
		t.Errorf("expected token 'Hel', got %q", stream.Token)
	}
	final, ok := log[4].(FinalAnswerUpdate)
	if !ok {
		t.Fatalf("expected FinalAnswerUpdate last, got %T", log[4])
	}
	if final.Text != "Hello" {
		t.Errorf("expected final text 'Hello', got %q", final.Text)
	}
}

func TestUpdateLog_UnmarshalDropsUnknownVariants(t *testing.T) {
	raw := `[
		{"type":"stream","token":"x"},
		{"type":"brandNew","payload":1},
		{"type":"finalAnswer","text":"x","interrupted":false}
	]`

	var log UpdateLog
	if err := json.Unmarshal([]byte(raw), &log); err != nil {
		t.Fatalf("a log with an unknown variant must stay readable, got: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("expected the unknown variant to be dropped, got %d updates", len(log))
	}
	if _, ok := log[0].(StreamUpdate); !ok {
		t.Errorf("expected StreamUpdate first, got %T", log[0])
	}
	if _, ok := log[1].(FinalAnswerUpdate); !ok {
		t.Errorf("expected FinalAnswerUpdate second, got %T", log[1])
	}
}

func TestUpdateLog_UnmarshalRejectsInvalidJSON(t *testing.T) {
	var log UpdateLog
	if err := json.Unmarshal([]byte(`[{"type":"stream","token":`), &log); err == nil {
		t.Fatal("expected an error for truncated JSON")
	}
}

func TestIsTerminalUpdate(t *testing.T) {
	cases := []struct {
		name     string
		update   MessageUpdate
		terminal bool
	}{
		{"final answer", FinalAnswerUpdate{Text: "done"}, true},
		{"interrupted final answer", FinalAnswerUpdate{Text: "part", Interrupted: true}, true},
		{"status error", StatusUpdate{Status: StatusError}, true},
		{"status finished", StatusUpdate{Status: StatusFinished}, true},
		{"status started", StatusUpdate{Status: StatusStarted}, false},
		{"status keepAlive", StatusUpdate{Status: StatusKeepAlive}, false},
		{"stream token", StreamUpdate{Token: "x"}, false},
		{"title", TitleUpdate{Title: "t"}, false},
		{"tool result", ToolUpdate{Subtype: ToolUpdateResult}, false},
		{"web search finished", WebSearchUpdate{Subtype: WebSearchUpdateFinished}, false},
	}

	for _, tc := range cases {
		if got := IsTerminalUpdate(tc.update); got != tc.terminal {
			t.Errorf("%s: IsTerminalUpdate = %v, want %v", tc.name, got, tc.terminal)
		}
	}
}
