// Package chat orchestrates conversation operations: CRUD, tree
// mutations for prompts, edits and retries, votes, branch deletion and
// stop requests. Generation itself is handed off to the generation
// service.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"hugchat/internal/abort"
	"hugchat/internal/config"
	"hugchat/internal/domain"
	"hugchat/internal/domain/models/chat"
	"hugchat/internal/domain/repositories"
	"hugchat/internal/service/generation"
)

// Service implements the conversation operations behind the handlers.
type Service struct {
	convRepo      repositories.ConversationRepository
	markerRepo    repositories.AbortMarkerRepository
	assistantRepo repositories.AssistantRepository
	settingsRepo  repositories.SettingsRepository
	registry      *abort.Registry
	defaultModel  string
	logger        *slog.Logger
}

// NewService creates a chat service.
func NewService(
	convRepo repositories.ConversationRepository,
	markerRepo repositories.AbortMarkerRepository,
	assistantRepo repositories.AssistantRepository,
	settingsRepo repositories.SettingsRepository,
	registry *abort.Registry,
	defaultModel string,
	logger *slog.Logger,
) *Service {
	return &Service{
		convRepo:      convRepo,
		markerRepo:    markerRepo,
		assistantRepo: assistantRepo,
		settingsRepo:  settingsRepo,
		registry:      registry,
		defaultModel:  defaultModel,
		logger:        logger,
	}
}

// CreateConversationRequest creates a new empty conversation.
type CreateConversationRequest struct {
	Model       string
	Preprompt   string
	AssistantID string
}

func (r *CreateConversationRequest) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Preprompt, validation.Length(0, config.MaxPrepromptLength)),
	)
}

// CreateConversation creates an empty conversation for the caller. When
// an assistant id is given the conversation inherits its model and
// preprompt; otherwise the model falls back to the caller's settings.
func (s *Service) CreateConversation(ctx context.Context, userID, sessionID string, req *CreateConversationRequest) (*chat.Conversation, error) {
	if userID == "" && sessionID == "" {
		return nil, &domain.UnauthorizedError{Message: "login or session required"}
	}
	if err := req.validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	conv := &chat.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Model:     req.Model,
		Title:     generation.DefaultTitle,
		Preprompt: req.Preprompt,
	}
	if userID == "" {
		conv.SessionID = sessionID
	}

	if req.AssistantID != "" {
		assistant, err := s.assistantRepo.GetAssistant(ctx, req.AssistantID)
		if err != nil {
			return nil, err
		}
		conv.AssistantID = assistant.ID
		if conv.Model == "" {
			conv.Model = assistant.Model
		}
		if conv.Preprompt == "" {
			conv.Preprompt = assistant.Preprompt
		}
	}

	if conv.Model == "" {
		settings, err := s.settingsRepo.GetSettings(ctx, ownerKey(userID, sessionID))
		if err != nil {
			return nil, err
		}
		conv.Model = settings.ActiveModel
	}
	if conv.Model == "" {
		conv.Model = s.defaultModel
	}

	if err := s.convRepo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	s.bumpConversationCount(ctx, userID, sessionID)
	return conv, nil
}

// ListConversations returns the caller's conversations, newest first.
func (s *Service) ListConversations(ctx context.Context, userID, sessionID string) ([]chat.Conversation, error) {
	if userID == "" && sessionID == "" {
		return nil, &domain.UnauthorizedError{Message: "login or session required"}
	}
	return s.convRepo.ListConversations(ctx, userID, sessionID)
}

// GetConversation loads a conversation the caller owns. Legacy flat
// conversations are migrated to the tree shape on read and the migration
// is persisted, so it happens exactly once.
func (s *Service) GetConversation(ctx context.Context, userID, sessionID, id string) (*chat.Conversation, error) {
	conv, err := s.loadOwned(ctx, userID, sessionID, id)
	if err != nil {
		return nil, err
	}

	if conv.RootMessageID == "" && len(conv.Messages) > 0 {
		chat.ConvertLegacyConversation(conv)
		if err := s.convRepo.ReplaceMessages(ctx, conv); err != nil {
			return nil, err
		}
	}
	return conv, nil
}

// UpdateTitle renames a conversation.
func (s *Service) UpdateTitle(ctx context.Context, userID, sessionID, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > config.MaxTitleLength {
		return &domain.ValidationError{Message: "title must be 1 to 255 characters"}
	}
	if _, err := s.loadOwned(ctx, userID, sessionID, id); err != nil {
		return err
	}
	return s.convRepo.UpdateTitle(ctx, id, title)
}

// DeleteConversation removes a conversation and cancels anything still
// generating for it.
func (s *Service) DeleteConversation(ctx context.Context, userID, sessionID, id string) error {
	if _, err := s.loadOwned(ctx, userID, sessionID, id); err != nil {
		return err
	}
	s.registry.Abort(id)
	return s.convRepo.DeleteConversation(ctx, id)
}

// PromptRequest is one user prompt, edit, or retry.
type PromptRequest struct {
	// Inputs is the prompt text. Empty for a retry.
	Inputs string

	// MessageID is the parent for a new prompt (defaults to the current
	// leaf), or the edited/retried message.
	MessageID string

	// IsRetry regenerates: on an assistant message, a fresh sibling
	// branch; on a user message, an edit carrying new Inputs.
	IsRetry bool

	// WebSearch enables the web search phase.
	WebSearch bool

	Files []chat.MessageFile
}

func (r *PromptRequest) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Inputs, validation.Length(0, config.MaxPromptLength)),
	)
}

// PreparePrompt applies the tree mutation for a prompt and persists it.
// It returns the updated conversation, the id of the empty assistant
// message to generate into, and the prompt time used for abort marker
// comparison.
func (s *Service) PreparePrompt(ctx context.Context, userID, sessionID, convID string, req *PromptRequest) (*chat.Conversation, string, time.Time, error) {
	conv, err := s.loadOwned(ctx, userID, sessionID, convID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if err := req.validate(); err != nil {
		return nil, "", time.Time{}, &domain.ValidationError{Message: err.Error()}
	}

	chat.ConvertLegacyConversation(conv)

	if chat.IsConversationGenerationActive(conv.Messages) {
		return nil, "", time.Time{}, &domain.ValidationError{Message: "a message is already being generated in this conversation"}
	}

	promptedAt := time.Now()

	assistantID, err := s.mutateTree(conv, req)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	if err := s.convRepo.ReplaceMessages(ctx, conv); err != nil {
		return nil, "", time.Time{}, err
	}
	return conv, assistantID, promptedAt, nil
}

func (s *Service) mutateTree(conv *chat.Conversation, req *PromptRequest) (string, error) {
	if req.IsRetry {
		target, err := chat.FindMessage(conv, req.MessageID)
		if err != nil {
			return "", err
		}

		switch target.From {
		case chat.FromAssistant:
			// regenerate: a fresh assistant branch next to the old answer
			return chat.AddSibling(conv, chat.Message{From: chat.FromAssistant}, req.MessageID)
		case chat.FromUser:
			// edit: new user branch with the new text, then its answer
			if strings.TrimSpace(req.Inputs) == "" {
				return "", &domain.ValidationError{Message: "an edit requires new message content"}
			}
			userMsgID, err := chat.AddSibling(conv, chat.Message{
				From:    chat.FromUser,
				Content: req.Inputs,
				Files:   req.Files,
			}, req.MessageID)
			if err != nil {
				return "", err
			}
			return chat.AddChild(conv, chat.Message{From: chat.FromAssistant}, userMsgID)
		default:
			return "", &domain.ValidationError{Message: "only user and assistant messages can be retried"}
		}
	}

	if strings.TrimSpace(req.Inputs) == "" {
		return "", &domain.ValidationError{Message: "message content is required"}
	}

	parentID := req.MessageID
	if parentID == "" {
		parentID = lastLeafID(conv)
	}

	userMsgID, err := chat.AddChild(conv, chat.Message{
		From:    chat.FromUser,
		Content: req.Inputs,
		Files:   req.Files,
	}, parentID)
	if err != nil {
		return "", err
	}
	return chat.AddChild(conv, chat.Message{From: chat.FromAssistant}, userMsgID)
}

// StopGeneration cancels any in-flight generation for the conversation:
// locally through the registry, and cross-instance through the persisted
// marker. Idempotent; repeated stops refresh the marker's updatedAt only.
func (s *Service) StopGeneration(ctx context.Context, userID, sessionID, convID string) (*chat.AbortedGeneration, error) {
	if _, err := s.loadOwned(ctx, userID, sessionID, convID); err != nil {
		return nil, err
	}

	s.registry.Abort(convID)

	marker, err := s.markerRepo.UpsertAbortMarker(ctx, convID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("generation stop requested", "conversation_id", convID)
	return marker, nil
}

// Vote records a score on a message. Voting again overwrites; zero
// clears.
func (s *Service) Vote(ctx context.Context, userID, sessionID, convID, messageID string, score int) error {
	if score < -1 || score > 1 {
		return &domain.ValidationError{Message: "score must be -1, 0 or 1"}
	}
	conv, err := s.loadOwned(ctx, userID, sessionID, convID)
	if err != nil {
		return err
	}
	if _, err := chat.FindMessage(conv, messageID); err != nil {
		return err
	}
	return s.convRepo.SetMessageScore(ctx, convID, messageID, score)
}

// DeleteBranch removes a message and its whole subtree.
func (s *Service) DeleteBranch(ctx context.Context, userID, sessionID, convID, messageID string) error {
	conv, err := s.loadOwned(ctx, userID, sessionID, convID)
	if err != nil {
		return err
	}

	chat.ConvertLegacyConversation(conv)
	removed, err := chat.RemoveBranch(conv, messageID)
	if err != nil {
		return err
	}
	if err := s.convRepo.ReplaceMessages(ctx, conv); err != nil {
		return err
	}
	s.logger.Debug("deleted message branch",
		"conversation_id", convID,
		"message_id", messageID,
		"removed", len(removed),
	)
	return nil
}

// loadOwned loads a conversation and enforces ownership: 401 without an
// identity, 403 for the wrong owner.
func (s *Service) loadOwned(ctx context.Context, userID, sessionID, id string) (*chat.Conversation, error) {
	if userID == "" && sessionID == "" {
		return nil, &domain.UnauthorizedError{Message: "login or session required"}
	}

	conv, err := s.convRepo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.OwnedBy(userID, sessionID) {
		return nil, &domain.ForbiddenError{Message: fmt.Sprintf("conversation %s belongs to another user", id)}
	}
	return conv, nil
}

func (s *Service) bumpConversationCount(ctx context.Context, userID, sessionID string) {
	if err := s.settingsRepo.IncrementUsage(ctx, ownerKey(userID, sessionID), 1, 0); err != nil {
		s.logger.Warn("failed to increment conversation count", "error", err)
	}
}

func ownerKey(userID, sessionID string) string {
	if userID != "" {
		return userID
	}
	return sessionID
}

// lastLeafID walks the tree from the root, always taking the most recent
// branch, and returns the leaf. Empty for an empty conversation.
func lastLeafID(conv *chat.Conversation) string {
	if conv.RootMessageID == "" {
		return ""
	}

	index := make(map[string]*chat.Message, len(conv.Messages))
	for i := range conv.Messages {
		index[conv.Messages[i].ID] = &conv.Messages[i]
	}

	currentID := conv.RootMessageID
	for {
		msg, ok := index[currentID]
		if !ok || len(msg.Children) == 0 {
			return currentID
		}
		currentID = msg.Children[len(msg.Children)-1]
	}
}
