package handler

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"hugchat/internal/config"
	"hugchat/internal/domain"
	"hugchat/internal/domain/models"
	"hugchat/internal/domain/repositories"
	"hugchat/internal/httputil"
)

// AssistantHandler serves assistant preset CRUD. Assistants require a
// logged-in user; anonymous sessions can use them but not create them.
type AssistantHandler struct {
	repo   repositories.AssistantRepository
	logger *slog.Logger
}

// NewAssistantHandler creates an assistant handler.
func NewAssistantHandler(repo repositories.AssistantRepository, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{repo: repo, logger: logger}
}

type assistantRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Model        string `json:"model"`
	Preprompt    string `json:"preprompt"`
	ExampleInput string `json:"exampleInput"`
	AvatarSha    string `json:"avatarSha"`
}

func (r *assistantRequest) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, config.MaxAssistantNameLength)),
		validation.Field(&r.Model, validation.Required),
		validation.Field(&r.Preprompt, validation.Length(0, config.MaxPrepromptLength)),
	)
}

// CreateAssistant handles POST /api/assistants
func (h *AssistantHandler) CreateAssistant(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	if userID == "" {
		handleError(w, &domain.UnauthorizedError{Message: "login required to create assistants"})
		return
	}

	var req assistantRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	assistant := &models.Assistant{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         req.Name,
		Description:  req.Description,
		Model:        req.Model,
		Preprompt:    req.Preprompt,
		ExampleInput: req.ExampleInput,
		AvatarSha:    req.AvatarSha,
	}
	if err := h.repo.CreateAssistant(r.Context(), assistant); err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, assistant)
}

// GetAssistant handles GET /api/assistants/{id}. Assistants are shareable
// by id, so no ownership check on read.
func (h *AssistantHandler) GetAssistant(w http.ResponseWriter, r *http.Request) {
	assistant, err := h.repo.GetAssistant(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, assistant)
}

// ListAssistants handles GET /api/assistants, listing the caller's own.
func (h *AssistantHandler) ListAssistants(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	if userID == "" {
		handleError(w, &domain.UnauthorizedError{Message: "login required"})
		return
	}

	assistants, err := h.repo.ListAssistants(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}
	if assistants == nil {
		assistants = []models.Assistant{}
	}
	httputil.RespondJSON(w, http.StatusOK, assistants)
}

// UpdateAssistant handles PATCH /api/assistants/{id}
func (h *AssistantHandler) UpdateAssistant(w http.ResponseWriter, r *http.Request) {
	assistant, err := h.loadOwned(w, r)
	if err != nil {
		return
	}

	var req assistantRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	assistant.Name = req.Name
	assistant.Description = req.Description
	assistant.Model = req.Model
	assistant.Preprompt = req.Preprompt
	assistant.ExampleInput = req.ExampleInput
	assistant.AvatarSha = req.AvatarSha

	if err := h.repo.UpdateAssistant(r.Context(), assistant); err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, assistant)
}

// DeleteAssistant handles DELETE /api/assistants/{id}
func (h *AssistantHandler) DeleteAssistant(w http.ResponseWriter, r *http.Request) {
	if _, err := h.loadOwned(w, r); err != nil {
		return
	}
	if err := h.repo.DeleteAssistant(r.Context(), r.PathValue("id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadOwned loads the assistant and enforces ownership, writing the error
// response itself.
func (h *AssistantHandler) loadOwned(w http.ResponseWriter, r *http.Request) (*models.Assistant, error) {
	userID := httputil.GetUserID(r)
	if userID == "" {
		err := &domain.UnauthorizedError{Message: "login required"}
		handleError(w, err)
		return nil, err
	}

	assistant, err := h.repo.GetAssistant(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return nil, err
	}
	if assistant.UserID != userID {
		err := &domain.ForbiddenError{Message: "assistant belongs to another user"}
		handleError(w, err)
		return nil, err
	}
	return assistant, nil
}
