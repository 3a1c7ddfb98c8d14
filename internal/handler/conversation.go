package handler

import (
	"log/slog"
	"net/http"

	"hugchat/internal/domain/models/chat"
	"hugchat/internal/httputil"
	chatSvc "hugchat/internal/service/chat"
	"hugchat/internal/service/generation"
)

// ConversationHandler serves the conversation API, including the
// streaming prompt endpoint.
type ConversationHandler struct {
	chat       *chatSvc.Service
	generation *generation.Service
	logger     *slog.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(chatService *chatSvc.Service, generationService *generation.Service, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		chat:       chatService,
		generation: generationService,
		logger:     logger,
	}
}

type createConversationRequest struct {
	Model       string `json:"model"`
	Preprompt   string `json:"preprompt"`
	AssistantID string `json:"assistantId"`
}

// CreateConversation handles POST /api/conversation
func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.chat.CreateConversation(r.Context(), httputil.GetUserID(r), httputil.GetSessionID(r), &chatSvc.CreateConversationRequest{
		Model:       req.Model,
		Preprompt:   req.Preprompt,
		AssistantID: req.AssistantID,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, conv)
}

// ListConversations handles GET /api/conversations
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.chat.ListConversations(r.Context(), httputil.GetUserID(r), httputil.GetSessionID(r))
	if err != nil {
		handleError(w, err)
		return
	}
	if conversations == nil {
		conversations = []chat.Conversation{}
	}
	httputil.RespondJSON(w, http.StatusOK, conversations)
}

// GetConversation handles GET /api/conversation/{id}
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chat.GetConversation(r.Context(), httputil.GetUserID(r), httputil.GetSessionID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, conv)
}

type updateConversationRequest struct {
	Title string `json:"title"`
}

// UpdateConversation handles PATCH /api/conversation/{id}
func (h *ConversationHandler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	var req updateConversationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.chat.UpdateTitle(r.Context(), httputil.GetUserID(r), httputil.GetSessionID(r), r.PathValue("id"), req.Title); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteConversation handles DELETE /api/conversation/{id}
func (h *ConversationHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.DeleteConversation(r.Context(), httputil.GetUserID(r), httputil.GetSessionID(r), r.PathValue("id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type promptRequest struct {
	Inputs    string             `json:"inputs"`
	ID        string             `json:"id"`
	IsRetry   bool               `json:"is_retry"`
	WebSearch bool               `json:"web_search"`
	Files     []chat.MessageFile `json:"files"`
}

// Prompt handles POST /api/conversation/{id}: it applies the tree
// mutation for the prompt, starts generation, and streams the updates
// back as NDJSON in emission order.
func (h *ConversationHandler) Prompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	convID := r.PathValue("id")
	conv, messageID, promptedAt, err := h.chat.PreparePrompt(r.Context(), httputil.GetUserID(r), httputil.GetSessionID(r), convID, &chatSvc.PromptRequest{
		Inputs:    req.Inputs,
		MessageID: req.ID,
		IsRetry:   req.IsRetry,
		WebSearch: req.WebSearch,
		Files:     req.Files,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	updates, err := h.generation.Run(r.Context(), &generation.TurnRequest{
		Conversation: conv,
		MessageID:    messageID,
		WebSearch:    req.WebSearch,
		PromptedAt:   promptedAt,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	// the channel must be drained even when the client disconnects, so
	// the pipeline can always persist its terminal state
	stream := newUpdateStreamWriter(w)
	for update := range updates {
		stream.Write(update)
	}
}

// StopGenerating handles POST /api/conversation/{id}/stop-generating.
// Idempotent: stopping an idle conversation still succeeds and leaves a
// marker.
func (h *ConversationHandler) StopGenerating(w http.ResponseWriter, r *http.Request) {
	marker, err := h.chat.StopGeneration(r.Context(), httputil.GetUserID(r), httputil.GetSessionID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, marker)
}

type voteRequest struct {
	Score int `json:"score"`
}

// Vote handles POST /api/conversation/{id}/message/{messageId}/vote
func (h *ConversationHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.chat.Vote(r.Context(), httputil.GetUserID(r), httputil.GetSessionID(r), r.PathValue("id"), r.PathValue("messageId"), req.Score)
	if err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBranch handles DELETE /api/conversation/{id}/message/{messageId}:
// the message and its whole subtree are removed.
func (h *ConversationHandler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	err := h.chat.DeleteBranch(r.Context(), httputil.GetUserID(r), httputil.GetSessionID(r), r.PathValue("id"), r.PathValue("messageId"))
	if err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
