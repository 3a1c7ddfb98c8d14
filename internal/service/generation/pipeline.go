// Package generation runs assistant turns: prompt assembly from the
// conversation tree, the optional web search phase, cancellable upstream
// streaming with tool rounds, and the persist-then-emit update pipeline.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hugchat/internal/abort"
	"hugchat/internal/domain"
	"hugchat/internal/domain/models/chat"
	"hugchat/internal/domain/repositories"
	"hugchat/internal/llm"
	"hugchat/internal/metrics"
)

// SearchRunner performs the web search phase of a turn. Progress is
// reported through emit; the returned context string is appended to the
// system prompt. A failed search is non-fatal to the turn.
type SearchRunner interface {
	Run(ctx context.Context, prompt string, emit func(chat.MessageUpdate)) ([]chat.WebSearchSource, string, error)
}

// ToolExecutor resolves and runs the tools advertised to the model.
type ToolExecutor interface {
	Definitions(ctx context.Context) []llm.ToolDefinition
	Execute(ctx context.Context, call *llm.ToolCallRequest) (any, error)
}

// Config bounds a generation turn.
type Config struct {
	MaxToolRounds     int
	MaxTokens         int
	PromptTokenBudget int
	TurnTimeout       time.Duration
	KeepAliveInterval time.Duration
	AbortPollInterval time.Duration
}

// DefaultConfig returns the production bounds.
func DefaultConfig() *Config {
	return &Config{
		MaxToolRounds:     5,
		MaxTokens:         2048,
		PromptTokenBudget: 6144,
		TurnTimeout:       5 * time.Minute,
		KeepAliveInterval: 15 * time.Second,
		AbortPollInterval: 500 * time.Millisecond,
	}
}

// Service orchestrates generation turns.
type Service struct {
	convRepo     repositories.ConversationRepository
	markerRepo   repositories.AbortMarkerRepository
	settingsRepo repositories.SettingsRepository
	registry     *abort.Registry
	endpoint     llm.Endpoint
	search       SearchRunner
	tools        ToolExecutor
	metrics      *metrics.Metrics
	config       *Config
	logger       *slog.Logger
}

// NewService creates a generation service. search and tools may be nil to
// disable those phases; metrics may be nil.
func NewService(
	convRepo repositories.ConversationRepository,
	markerRepo repositories.AbortMarkerRepository,
	settingsRepo repositories.SettingsRepository,
	registry *abort.Registry,
	endpoint llm.Endpoint,
	search SearchRunner,
	tools ToolExecutor,
	m *metrics.Metrics,
	cfg *Config,
	logger *slog.Logger,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Service{
		convRepo:     convRepo,
		markerRepo:   markerRepo,
		settingsRepo: settingsRepo,
		registry:     registry,
		endpoint:     endpoint,
		search:       search,
		tools:        tools,
		metrics:      m,
		config:       cfg,
		logger:       logger,
	}
}

// TurnRequest asks for one assistant message to be generated.
type TurnRequest struct {
	// Conversation is the loaded, ownership-checked, tree-shaped document.
	Conversation *chat.Conversation

	// MessageID is the empty assistant message to fill.
	MessageID string

	// WebSearch enables the web search phase for this turn.
	WebSearch bool

	// PromptedAt is when the user submitted the prompt. Abort markers
	// updated after this instant interrupt the turn; older markers are
	// leftovers from previous turns.
	PromptedAt time.Time
}

// Run starts a turn and returns the live update stream. Every update
// except keepAlive is persisted to the message's update log before it is
// emitted, so a crash never leaves the client ahead of the database. The
// channel closes after the terminal update; the caller must drain it.
func (s *Service) Run(ctx context.Context, req *TurnRequest) (<-chan chat.MessageUpdate, error) {
	conv := req.Conversation

	msg, err := chat.FindMessage(conv, req.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.From != chat.FromAssistant {
		return nil, &domain.ValidationError{Message: "generation target must be an assistant message"}
	}
	if chat.IsAssistantGenerationTerminal(msg) || len(msg.Updates) > 0 || msg.Content != "" {
		return nil, &domain.ValidationError{Message: "message has already been generated"}
	}

	path, err := chat.BuildSubtree(conv, req.MessageID)
	if err != nil {
		return nil, err
	}
	// drop the empty assistant leaf from the prompt
	path = path[:len(path)-1]

	genCtx, cancel := context.WithTimeout(ctx, s.config.TurnTimeout)
	handle := abort.NewHandle(genCtx, cancel)
	s.registry.Register(conv.ID, handle)

	s.metrics.TurnStarted()

	out := make(chan chat.MessageUpdate, 16)
	go s.runTurn(genCtx, cancel, req, path, out)
	return out, nil
}

// turnResult is what the generation worker hands back to the pipeline
// loop once its event stream is exhausted.
type turnResult struct {
	content     string // merged final content
	streamed    string // what was actually streamed token by token
	webSources  []chat.WebSearchSource
	hadTools    bool
	interrupted bool
	err         error
}

func (s *Service) runTurn(ctx context.Context, cancel context.CancelFunc, req *TurnRequest, promptPath []chat.Message, out chan<- chat.MessageUpdate) {
	defer cancel()
	defer close(out)

	conv := req.Conversation
	events := make(chan chat.MessageUpdate, 32)
	resultCh := make(chan turnResult, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resultCh <- s.generateWorker(gctx, req, promptPath, events)
		return nil
	})
	if needsTitle(conv.Title) {
		g.Go(func() error {
			s.titleWorker(gctx, conv.Model, firstUserContent(promptPath), events)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(events)
	}()

	keepAlive := time.NewTicker(s.config.KeepAliveInterval)
	defer keepAlive.Stop()

	persistFailed := false
	lastPoll := time.Now()

loop:
	for {
		select {
		case u, ok := <-events:
			if !ok {
				break loop
			}
			if !s.dispatch(ctx, conv, req.MessageID, u, out) {
				persistFailed = true
				cancel()
			}
		case <-keepAlive.C:
			out <- chat.StatusUpdate{Status: chat.StatusKeepAlive}
		}

		if time.Since(lastPoll) >= s.config.AbortPollInterval {
			lastPoll = time.Now()
			if s.abortRequested(conv.ID, req.PromptedAt) {
				cancel()
			}
		}
	}

	res := <-resultCh
	s.finishTurn(conv, req.MessageID, res, persistFailed, out)
}

// dispatch persists one update and forwards it. Returns false when the
// write failed; persistence failures are fatal to the turn.
func (s *Service) dispatch(ctx context.Context, conv *chat.Conversation, messageID string, u chat.MessageUpdate, out chan<- chat.MessageUpdate) bool {
	// detach from the turn context so a cancellation mid-write does not
	// lose the update that triggered it
	writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer writeCancel()

	switch v := u.(type) {
	case chat.TitleUpdate:
		if err := s.convRepo.UpdateTitle(writeCtx, conv.ID, v.Title); err != nil {
			s.logger.Error("failed to persist title", "conversation_id", conv.ID, "error", err)
			return false
		}
		conv.Title = v.Title
	default:
		if err := s.convRepo.AppendMessageUpdate(writeCtx, conv.ID, messageID, u); err != nil {
			s.logger.Error("failed to persist update",
				"conversation_id", conv.ID,
				"message_id", messageID,
				"type", u.UpdateType(),
				"error", err,
			)
			return false
		}
	}

	out <- u
	return true
}

// finishTurn persists the terminal state and emits the closing update.
// Exactly one terminal update reaches the log: the FinalAnswer on
// success, or an error status. Interrupted turns are made terminal by the
// message's interrupted flag instead, and the closing FinalAnswer sent to
// the client is not persisted.
func (s *Service) finishTurn(conv *chat.Conversation, messageID string, res turnResult, persistFailed bool, out chan<- chat.MessageUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case persistFailed:
		out <- chat.StatusUpdate{Status: chat.StatusError, Message: "failed to persist generation"}
		s.metrics.TurnFinished("error")

	case res.interrupted:
		content := chat.MergeFinalAnswer(res.streamed, res.content, true, res.hadTools)
		if content != "" {
			if err := s.convRepo.SetMessageContent(ctx, conv.ID, messageID, content); err != nil {
				s.logger.Error("failed to persist interrupted content", "conversation_id", conv.ID, "error", err)
			}
		}
		if err := s.convRepo.SetMessageInterrupted(ctx, conv.ID, messageID); err != nil {
			s.logger.Error("failed to mark message interrupted", "conversation_id", conv.ID, "error", err)
		}
		out <- chat.FinalAnswerUpdate{Text: content, Interrupted: true, WebSources: res.webSources}
		s.metrics.TurnFinished("interrupted")

	case res.err != nil:
		s.logger.Error("generation failed", "conversation_id", conv.ID, "error", res.err)
		status := chat.StatusUpdate{Status: chat.StatusError, Message: "generation failed"}
		if err := s.convRepo.AppendMessageUpdate(ctx, conv.ID, messageID, status); err != nil {
			s.logger.Error("failed to persist error status", "conversation_id", conv.ID, "error", err)
		}
		if res.streamed != "" {
			if err := s.convRepo.SetMessageContent(ctx, conv.ID, messageID, res.streamed); err != nil {
				s.logger.Error("failed to persist partial content", "conversation_id", conv.ID, "error", err)
			}
		}
		out <- status
		s.metrics.TurnFinished("error")

	default:
		final := chat.FinalAnswerUpdate{Text: res.content, WebSources: res.webSources}
		if err := s.convRepo.AppendMessageUpdate(ctx, conv.ID, messageID, final); err != nil {
			s.logger.Error("failed to persist final answer", "conversation_id", conv.ID, "error", err)
			out <- chat.StatusUpdate{Status: chat.StatusError, Message: "failed to persist generation"}
			s.metrics.TurnFinished("error")
			return
		}
		if err := s.convRepo.SetMessageContent(ctx, conv.ID, messageID, res.content); err != nil {
			s.logger.Error("failed to persist content", "conversation_id", conv.ID, "error", err)
		}
		out <- final
		s.metrics.TurnFinished("finished")
		s.incrementUsage(ctx, conv)
	}
}

func (s *Service) incrementUsage(ctx context.Context, conv *chat.Conversation) {
	if s.settingsRepo == nil {
		return
	}
	ownerKey := conv.UserID
	if ownerKey == "" {
		ownerKey = conv.SessionID
	}
	if ownerKey == "" {
		return
	}
	if err := s.settingsRepo.IncrementUsage(ctx, ownerKey, 0, 1); err != nil {
		s.logger.Warn("failed to increment usage counters", "owner", ownerKey, "error", err)
	}
}

// abortRequested reports whether a stop marker newer than the prompt
// exists. Markers from earlier turns are ignored.
func (s *Service) abortRequested(conversationID string, promptedAt time.Time) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	marker, err := s.markerRepo.GetAbortMarker(ctx, conversationID)
	if err != nil {
		s.logger.Warn("abort marker poll failed", "conversation_id", conversationID, "error", err)
		return false
	}
	return marker != nil && marker.UpdatedAt.After(promptedAt)
}

// generateWorker runs the generation phases and feeds the pipeline's
// event channel: started status, web search updates, streamed tokens,
// tool call/result updates. It never emits the terminal update itself.
func (s *Service) generateWorker(ctx context.Context, req *TurnRequest, promptPath []chat.Message, events chan<- chat.MessageUpdate) turnResult {
	emit := func(u chat.MessageUpdate) { events <- u }

	emit(chat.StatusUpdate{Status: chat.StatusStarted})

	conv := req.Conversation
	preprompt := conv.Preprompt
	var sources []chat.WebSearchSource

	if req.WebSearch && s.search != nil {
		s.metrics.WebSearchRun()
		prompt := lastUserContent(promptPath)
		found, searchContext, err := s.search.Run(ctx, prompt, emit)
		if err != nil {
			// non-fatal: the model answers without search context
			s.logger.Warn("web search phase failed", "conversation_id", conv.ID, "error", err)
		} else {
			sources = found
			if searchContext != "" {
				preprompt = joinPreprompt(preprompt, searchContext)
			}
		}
		if ctx.Err() != nil {
			return turnResult{interrupted: true, webSources: sources}
		}
	}

	messages := buildPromptMessages(TruncatePrompt(promptPath, s.config.PromptTokenBudget))

	var toolDefs []llm.ToolDefinition
	if s.tools != nil {
		toolDefs = s.tools.Definitions(ctx)
	}

	var streamed string
	var finalText string
	hadTools := false

	for round := 0; ; round++ {
		genReq := &llm.GenerateRequest{
			Model:     conv.Model,
			Preprompt: preprompt,
			Messages:  messages,
			Tools:     toolDefs,
			MaxTokens: s.config.MaxTokens,
		}

		roundText, calls, err := s.streamRound(ctx, genReq, &streamed, emit)
		if err != nil {
			if ctx.Err() != nil {
				return turnResult{streamed: streamed, webSources: sources, hadTools: hadTools, interrupted: true}
			}
			return turnResult{streamed: streamed, webSources: sources, hadTools: hadTools, err: err}
		}
		finalText = roundText

		if len(calls) == 0 || s.tools == nil || round >= s.config.MaxToolRounds {
			break
		}
		hadTools = true

		messages = append(messages, llm.Message{
			Role:      chat.FromAssistant,
			Content:   roundText,
			ToolCalls: derefCalls(calls),
		})
		for _, call := range calls {
			messages = append(messages, s.runTool(ctx, call, emit))
			if ctx.Err() != nil {
				return turnResult{streamed: streamed, webSources: sources, hadTools: true, interrupted: true}
			}
		}
	}

	content := chat.MergeFinalAnswer(streamed, finalText, false, hadTools)
	return turnResult{content: content, streamed: streamed, webSources: sources, hadTools: hadTools}
}

// streamRound runs one upstream generation round, emitting stream updates
// for each token and collecting any tool calls.
func (s *Service) streamRound(ctx context.Context, req *llm.GenerateRequest, streamed *string, emit func(chat.MessageUpdate)) (string, []*llm.ToolCallRequest, error) {
	outputs, err := s.endpoint.Generate(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var roundText string
	var calls []*llm.ToolCallRequest

	for output := range outputs {
		if output.Err != nil {
			return roundText, nil, output.Err
		}
		if output.Token.Text != "" && !output.Token.Special {
			*streamed += output.Token.Text
			s.metrics.TokenStreamed()
			emit(chat.StreamUpdate{Token: output.Token.Text})
		}
		if output.ToolCall != nil {
			calls = append(calls, output.ToolCall)
		}
		if output.GeneratedText != nil {
			roundText = *output.GeneratedText
		}
		if ctx.Err() != nil {
			return roundText, nil, ctx.Err()
		}
	}
	return roundText, calls, nil
}

// runTool executes one tool call, emitting call and result (or error)
// updates, and returns the transcript message for the next round.
func (s *Service) runTool(ctx context.Context, call *llm.ToolCallRequest, emit func(chat.MessageUpdate)) llm.Message {
	callUUID := uuid.NewString()
	s.metrics.ToolCalled(call.Name)

	emit(chat.ToolUpdate{
		Subtype: chat.ToolUpdateCall,
		UUID:    callUUID,
		Call:    &chat.ToolCall{Name: call.Name, Parameters: call.Arguments},
	})

	result, err := s.tools.Execute(ctx, call)
	if err != nil {
		s.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		emit(chat.ToolUpdate{
			Subtype: chat.ToolUpdateError,
			UUID:    callUUID,
			Message: err.Error(),
		})
		return llm.Message{
			Role:       "tool",
			Content:    fmt.Sprintf("tool %s failed: %v", call.Name, err),
			ToolCallID: call.ID,
		}
	}

	emit(chat.ToolUpdate{
		Subtype: chat.ToolUpdateResult,
		UUID:    callUUID,
		Result:  result,
	})
	return llm.Message{
		Role:       "tool",
		Content:    fmt.Sprint(result),
		ToolCallID: call.ID,
	}
}

func buildPromptMessages(path []chat.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(path))
	for _, m := range path {
		if m.Content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: m.From, Content: m.Content})
	}
	return messages
}

func derefCalls(calls []*llm.ToolCallRequest) []llm.ToolCallRequest {
	out := make([]llm.ToolCallRequest, len(calls))
	for i, c := range calls {
		out[i] = *c
	}
	return out
}

func lastUserContent(path []chat.Message) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i].From == chat.FromUser {
			return path[i].Content
		}
	}
	return ""
}

func firstUserContent(path []chat.Message) string {
	for _, m := range path {
		if m.From == chat.FromUser {
			return m.Content
		}
	}
	return ""
}

func joinPreprompt(preprompt, extra string) string {
	if preprompt == "" {
		return extra
	}
	return preprompt + "\n\n" + extra
}
