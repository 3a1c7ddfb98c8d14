package generation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"hugchat/internal/abort"
	"hugchat/internal/domain/models/chat"
	"hugchat/internal/llm"
)

// fakeConvRepo records every persistence call so tests can verify the
// persist-then-emit contract without a database.
type fakeConvRepo struct {
	mu          sync.Mutex
	appended    []chat.MessageUpdate
	title       string
	content     string
	interrupted bool
	appendErr   error
}

func (f *fakeConvRepo) CreateConversation(ctx context.Context, conv *chat.Conversation) error {
	return nil
}
func (f *fakeConvRepo) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeConvRepo) ListConversations(ctx context.Context, userID, sessionID string) ([]chat.Conversation, error) {
	return nil, nil
}
func (f *fakeConvRepo) UpdateTitle(ctx context.Context, id, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
	return nil
}
func (f *fakeConvRepo) ReplaceMessages(ctx context.Context, conv *chat.Conversation) error {
	return nil
}
func (f *fakeConvRepo) DeleteConversation(ctx context.Context, id string) error { return nil }
func (f *fakeConvRepo) AppendMessageUpdate(ctx context.Context, conversationID, messageID string, update chat.MessageUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, update)
	return nil
}
func (f *fakeConvRepo) SetMessageContent(ctx context.Context, conversationID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = content
	return nil
}
func (f *fakeConvRepo) SetMessageInterrupted(ctx context.Context, conversationID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupted = true
	return nil
}
func (f *fakeConvRepo) SetMessageScore(ctx context.Context, conversationID, messageID string, score int) error {
	return nil
}

func (f *fakeConvRepo) snapshot() ([]chat.MessageUpdate, string, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.MessageUpdate{}, f.appended...), f.title, f.content, f.interrupted
}

// fakeMarkerRepo serves a fixed abort marker.
type fakeMarkerRepo struct {
	mu     sync.Mutex
	marker *chat.AbortedGeneration
}

func (f *fakeMarkerRepo) UpsertAbortMarker(ctx context.Context, conversationID string) (*chat.AbortedGeneration, error) {
	return f.marker, nil
}
func (f *fakeMarkerRepo) GetAbortMarker(ctx context.Context, conversationID string) (*chat.AbortedGeneration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marker, nil
}
func (f *fakeMarkerRepo) set(marker *chat.AbortedGeneration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marker = marker
}

// fakeEndpoint scripts the upstream stream.
type fakeEndpoint struct {
	generate     func(ctx context.Context) <-chan llm.Output
	completeText string
	completeErr  error
}

func (f *fakeEndpoint) Generate(ctx context.Context, req *llm.GenerateRequest) (<-chan llm.Output, error) {
	return f.generate(ctx), nil
}
func (f *fakeEndpoint) Complete(ctx context.Context, req *llm.GenerateRequest) (string, error) {
	return f.completeText, f.completeErr
}

func strPtr(s string) *string { return &s }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func testConfig() *Config {
	return &Config{
		MaxToolRounds:     5,
		MaxTokens:         128,
		PromptTokenBudget: 4096,
		TurnTimeout:       10 * time.Second,
		KeepAliveInterval: 20 * time.Millisecond,
		AbortPollInterval: time.Millisecond,
	}
}

// newTestConversation builds a conversation with one user message and one
// empty assistant message and returns it with the assistant message id.
func newTestConversation(t *testing.T, title string) (*chat.Conversation, string) {
	t.Helper()
	conv := &chat.Conversation{ID: "conv-1", SessionID: "sess-1", Model: "test-model", Title: title}
	userID, err := chat.AddChild(conv, chat.Message{From: chat.FromUser, Content: "Say hello"}, "")
	if err != nil {
		t.Fatalf("add user message: %v", err)
	}
	assistantID, err := chat.AddChild(conv, chat.Message{From: chat.FromAssistant}, userID)
	if err != nil {
		t.Fatalf("add assistant message: %v", err)
	}
	return conv, assistantID
}

func newTestService(convRepo *fakeConvRepo, markerRepo *fakeMarkerRepo, endpoint llm.Endpoint) *Service {
	return NewService(
		convRepo,
		markerRepo,
		nil, // settings
		abort.NewRegistry(quietLogger()),
		endpoint,
		nil, // search
		nil, // tools
		nil, // metrics
		testConfig(),
		quietLogger(),
	)
}

func drain(out <-chan chat.MessageUpdate) []chat.MessageUpdate {
	var updates []chat.MessageUpdate
	for u := range out {
		updates = append(updates, u)
	}
	return updates
}

// withoutKeepAlive filters the keepAlive heartbeats that the small test
// interval produces.
func withoutKeepAlive(updates []chat.MessageUpdate) []chat.MessageUpdate {
	var filtered []chat.MessageUpdate
	for _, u := range updates {
		if s, ok := u.(chat.StatusUpdate); ok && s.Status == chat.StatusKeepAlive {
			continue
		}
		filtered = append(filtered, u)
	}
	return filtered
}

func TestRun_StreamsAndPersistsFinalAnswer(t *testing.T) {
	conv, assistantID := newTestConversation(t, "Existing title")
	convRepo := &fakeConvRepo{}
	endpoint := &fakeEndpoint{
		generate: func(ctx context.Context) <-chan llm.Output {
			ch := make(chan llm.Output, 4)
			ch <- llm.Output{Token: llm.Token{Text: "Hel"}}
			ch <- llm.Output{Token: llm.Token{Text: "lo"}}
			ch <- llm.Output{GeneratedText: strPtr("Hello")}
			close(ch)
			return ch
		},
	}
	svc := newTestService(convRepo, &fakeMarkerRepo{}, endpoint)

	out, err := svc.Run(context.Background(), &TurnRequest{
		Conversation: conv,
		MessageID:    assistantID,
		PromptedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	emitted := withoutKeepAlive(drain(out))
	if len(emitted) != 4 {
		t.Fatalf("emitted %d updates, want 4: %#v", len(emitted), emitted)
	}

	if s, ok := emitted[0].(chat.StatusUpdate); !ok || s.Status != chat.StatusStarted {
		t.Errorf("first update = %#v, want started status", emitted[0])
	}
	if s, ok := emitted[1].(chat.StreamUpdate); !ok || s.Token != "Hel" {
		t.Errorf("second update = %#v, want stream 'Hel'", emitted[1])
	}
	if s, ok := emitted[2].(chat.StreamUpdate); !ok || s.Token != "lo" {
		t.Errorf("third update = %#v, want stream 'lo'", emitted[2])
	}
	final, ok := emitted[3].(chat.FinalAnswerUpdate)
	if !ok {
		t.Fatalf("last update = %#v, want final answer", emitted[3])
	}
	if final.Text != "Hello" || final.Interrupted {
		t.Errorf("final answer = %#v, want text 'Hello' not interrupted", final)
	}

	appended, _, content, interrupted := convRepo.snapshot()
	if len(appended) != 4 {
		t.Fatalf("persisted %d updates, want 4: %#v", len(appended), appended)
	}
	if _, ok := appended[3].(chat.FinalAnswerUpdate); !ok {
		t.Errorf("last persisted update = %#v, want final answer", appended[3])
	}
	if content != "Hello" {
		t.Errorf("persisted content = %q, want 'Hello'", content)
	}
	if interrupted {
		t.Error("message marked interrupted on a successful turn")
	}
}

func TestRun_GeneratesTitleForNewConversation(t *testing.T) {
	conv, assistantID := newTestConversation(t, DefaultTitle)
	convRepo := &fakeConvRepo{}
	endpoint := &fakeEndpoint{
		generate: func(ctx context.Context) <-chan llm.Output {
			ch := make(chan llm.Output, 2)
			ch <- llm.Output{Token: llm.Token{Text: "Hi"}}
			ch <- llm.Output{GeneratedText: strPtr("Hi")}
			close(ch)
			return ch
		},
		completeText: "Friendly Greeting",
	}
	svc := newTestService(convRepo, &fakeMarkerRepo{}, endpoint)

	out, err := svc.Run(context.Background(), &TurnRequest{
		Conversation: conv,
		MessageID:    assistantID,
		PromptedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	emitted := withoutKeepAlive(drain(out))

	var sawTitle bool
	for _, u := range emitted {
		if tu, ok := u.(chat.TitleUpdate); ok {
			sawTitle = true
			if tu.Title != "Friendly Greeting" {
				t.Errorf("title update = %q, want 'Friendly Greeting'", tu.Title)
			}
		}
	}
	if !sawTitle {
		t.Error("no title update emitted for a conversation with the default title")
	}

	_, title, _, _ := convRepo.snapshot()
	if title != "Friendly Greeting" {
		t.Errorf("persisted title = %q, want 'Friendly Greeting'", title)
	}
	if conv.Title != "Friendly Greeting" {
		t.Errorf("in-memory title = %q, want 'Friendly Greeting'", conv.Title)
	}
}

func TestRun_AbortMarkerInterruptsTurn(t *testing.T) {
	conv, assistantID := newTestConversation(t, "t")
	convRepo := &fakeConvRepo{}
	markerRepo := &fakeMarkerRepo{}

	endpoint := &fakeEndpoint{
		generate: func(ctx context.Context) <-chan llm.Output {
			ch := make(chan llm.Output, 2)
			go func() {
				defer close(ch)
				ch <- llm.Output{Token: llm.Token{Text: "par"}}
				<-ctx.Done()
				ch <- llm.Output{Err: ctx.Err()}
			}()
			return ch
		},
	}
	svc := newTestService(convRepo, markerRepo, endpoint)

	promptedAt := time.Now()
	out, err := svc.Run(context.Background(), &TurnRequest{
		Conversation: conv,
		MessageID:    assistantID,
		PromptedAt:   promptedAt,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// a stop request lands after the prompt
	markerRepo.set(&chat.AbortedGeneration{
		ConversationID: conv.ID,
		CreatedAt:      promptedAt.Add(50 * time.Millisecond),
		UpdatedAt:      promptedAt.Add(50 * time.Millisecond),
	})

	emitted := withoutKeepAlive(drain(out))
	if len(emitted) == 0 {
		t.Fatal("no updates emitted")
	}

	final, ok := emitted[len(emitted)-1].(chat.FinalAnswerUpdate)
	if !ok {
		t.Fatalf("last update = %#v, want interrupted final answer", emitted[len(emitted)-1])
	}
	if !final.Interrupted {
		t.Error("closing final answer not marked interrupted")
	}
	if final.Text != "par" {
		t.Errorf("closing final answer text = %q, want streamed partial 'par'", final.Text)
	}

	appended, _, content, interrupted := convRepo.snapshot()
	if !interrupted {
		t.Error("message not marked interrupted in the store")
	}
	if content != "par" {
		t.Errorf("persisted content = %q, want 'par'", content)
	}
	// the closing final answer of an interrupted turn is never persisted
	for _, u := range appended {
		if _, ok := u.(chat.FinalAnswerUpdate); ok {
			t.Errorf("interrupted turn persisted a final answer: %#v", u)
		}
	}
}

func TestRun_StaleAbortMarkerIsIgnored(t *testing.T) {
	conv, assistantID := newTestConversation(t, "t")
	convRepo := &fakeConvRepo{}

	promptedAt := time.Now()
	// a leftover marker from a previous turn
	markerRepo := &fakeMarkerRepo{marker: &chat.AbortedGeneration{
		ConversationID: conv.ID,
		CreatedAt:      promptedAt.Add(-time.Hour),
		UpdatedAt:      promptedAt.Add(-time.Hour),
	}}

	endpoint := &fakeEndpoint{
		generate: func(ctx context.Context) <-chan llm.Output {
			ch := make(chan llm.Output, 2)
			ch <- llm.Output{Token: llm.Token{Text: "ok"}}
			ch <- llm.Output{GeneratedText: strPtr("ok")}
			close(ch)
			return ch
		},
	}
	svc := newTestService(convRepo, markerRepo, endpoint)

	out, err := svc.Run(context.Background(), &TurnRequest{
		Conversation: conv,
		MessageID:    assistantID,
		PromptedAt:   promptedAt,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	emitted := withoutKeepAlive(drain(out))
	final, ok := emitted[len(emitted)-1].(chat.FinalAnswerUpdate)
	if !ok || final.Interrupted {
		t.Errorf("last update = %#v, want a normal final answer", emitted[len(emitted)-1])
	}
}

func TestRun_UpstreamErrorEmitsErrorStatus(t *testing.T) {
	conv, assistantID := newTestConversation(t, "t")
	convRepo := &fakeConvRepo{}
	endpoint := &fakeEndpoint{
		generate: func(ctx context.Context) <-chan llm.Output {
			ch := make(chan llm.Output, 2)
			ch <- llm.Output{Token: llm.Token{Text: "Hel"}}
			ch <- llm.Output{Err: errors.New("upstream exploded")}
			close(ch)
			return ch
		},
	}
	svc := newTestService(convRepo, &fakeMarkerRepo{}, endpoint)

	out, err := svc.Run(context.Background(), &TurnRequest{
		Conversation: conv,
		MessageID:    assistantID,
		PromptedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	emitted := withoutKeepAlive(drain(out))
	last, ok := emitted[len(emitted)-1].(chat.StatusUpdate)
	if !ok || last.Status != chat.StatusError {
		t.Fatalf("last update = %#v, want error status", emitted[len(emitted)-1])
	}

	appended, _, content, _ := convRepo.snapshot()
	var sawErrorStatus bool
	for _, u := range appended {
		if s, ok := u.(chat.StatusUpdate); ok && s.Status == chat.StatusError {
			sawErrorStatus = true
		}
		if _, ok := u.(chat.FinalAnswerUpdate); ok {
			t.Errorf("failed turn persisted a final answer: %#v", u)
		}
	}
	if !sawErrorStatus {
		t.Error("error status not persisted to the update log")
	}
	if content != "Hel" {
		t.Errorf("partial content = %q, want 'Hel'", content)
	}
}

func TestRun_RejectsNonAssistantTarget(t *testing.T) {
	conv, _ := newTestConversation(t, "t")
	svc := newTestService(&fakeConvRepo{}, &fakeMarkerRepo{}, &fakeEndpoint{})

	_, err := svc.Run(context.Background(), &TurnRequest{
		Conversation: conv,
		MessageID:    conv.RootMessageID, // the user message
		PromptedAt:   time.Now(),
	})
	if err == nil {
		t.Fatal("expected an error for a user message target")
	}
}

func TestRun_RejectsAlreadyGeneratedMessage(t *testing.T) {
	conv, assistantID := newTestConversation(t, "t")
	msg, err := chat.FindMessage(conv, assistantID)
	if err != nil {
		t.Fatalf("find message: %v", err)
	}
	msg.Updates = chat.UpdateLog{chat.FinalAnswerUpdate{Text: "done"}}
	msg.Content = "done"

	svc := newTestService(&fakeConvRepo{}, &fakeMarkerRepo{}, &fakeEndpoint{})
	_, err = svc.Run(context.Background(), &TurnRequest{
		Conversation: conv,
		MessageID:    assistantID,
		PromptedAt:   time.Now(),
	})
	if err == nil {
		t.Fatal("expected an error for an already generated message")
	}
}

func TestRun_PersistFailureEndsTurnWithError(t *testing.T) {
	conv, assistantID := newTestConversation(t, "t")
	convRepo := &fakeConvRepo{appendErr: errors.New("write failed")}
	endpoint := &fakeEndpoint{
		generate: func(ctx context.Context) <-chan llm.Output {
			ch := make(chan llm.Output, 2)
			go func() {
				defer close(ch)
				ch <- llm.Output{Token: llm.Token{Text: "x"}}
				<-ctx.Done()
				ch <- llm.Output{Err: ctx.Err()}
			}()
			return ch
		},
	}
	svc := newTestService(convRepo, &fakeMarkerRepo{}, endpoint)

	out, err := svc.Run(context.Background(), &TurnRequest{
		Conversation: conv,
		MessageID:    assistantID,
		PromptedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	emitted := withoutKeepAlive(drain(out))
	last, ok := emitted[len(emitted)-1].(chat.StatusUpdate)
	if !ok || last.Status != chat.StatusError {
		t.Fatalf("last update = %#v, want error status after persist failure", emitted[len(emitted)-1])
	}
}
