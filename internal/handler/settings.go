package handler

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"hugchat/internal/config"
	"hugchat/internal/domain"
	"hugchat/internal/domain/models"
	"hugchat/internal/domain/repositories"
	"hugchat/internal/httputil"
)

// SettingsHandler serves per-owner settings. Settings work for anonymous
// sessions too, keyed by session id.
type SettingsHandler struct {
	repo   repositories.SettingsRepository
	logger *slog.Logger
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(repo repositories.SettingsRepository, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{repo: repo, logger: logger}
}

// GetSettings handles GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	owner := settingsOwner(r)
	if owner == "" {
		handleError(w, &domain.UnauthorizedError{Message: "login or session required"})
		return
	}

	settings, err := h.repo.GetSettings(r.Context(), owner)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	ActiveModel      string            `json:"activeModel"`
	CustomPrompts    map[string]string `json:"customPrompts"`
	ShareWithAuthors bool              `json:"shareConversationsWithModelAuthors"`
	DisableStream    bool              `json:"disableStream"`
}

func (req *settingsRequest) validate() error {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ActiveModel, validation.Length(0, 200)),
	); err != nil {
		return err
	}
	for model, prompt := range req.CustomPrompts {
		if len(prompt) > config.MaxPrepromptLength {
			return &domain.ValidationError{Message: "custom prompt for " + model + " is too long"}
		}
	}
	return nil
}

// UpdateSettings handles POST /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	owner := settingsOwner(r)
	if owner == "" {
		handleError(w, &domain.UnauthorizedError{Message: "login or session required"})
		return
	}

	var req settingsRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		handleError(w, &domain.ValidationError{Message: err.Error()})
		return
	}

	settings := &models.Settings{
		OwnerKey:         owner,
		ActiveModel:      req.ActiveModel,
		CustomPrompts:    req.CustomPrompts,
		ShareWithAuthors: req.ShareWithAuthors,
		DisableStream:    req.DisableStream,
	}
	if err := h.repo.UpsertSettings(r.Context(), settings); err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, settings)
}

func settingsOwner(r *http.Request) string {
	if userID := httputil.GetUserID(r); userID != "" {
		return userID
	}
	return httputil.GetSessionID(r)
}
