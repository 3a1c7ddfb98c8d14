package handler

import (
	"log/slog"
	"net/http"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"hugchat/internal/config"
	"hugchat/internal/domain"
	"hugchat/internal/domain/models"
	"hugchat/internal/domain/repositories"
	"hugchat/internal/httputil"
)

// toolNamePattern keeps machine names safe to expose to the model as
// function names.
var toolNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ToolHandler serves community tool spec CRUD.
type ToolHandler struct {
	repo   repositories.ToolRepository
	logger *slog.Logger
}

// NewToolHandler creates a tool handler.
func NewToolHandler(repo repositories.ToolRepository, logger *slog.Logger) *ToolHandler {
	return &ToolHandler{repo: repo, logger: logger}
}

type toolRequest struct {
	Name        string              `json:"name"`
	DisplayName string              `json:"displayName"`
	Description string              `json:"description"`
	Endpoint    models.ToolEndpoint `json:"endpoint"`
	Inputs      []models.ToolInput  `json:"inputs"`
}

func (r *toolRequest) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required,
			validation.Length(1, config.MaxToolNameLength),
			validation.Match(toolNamePattern)),
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Endpoint, validation.By(func(any) error {
			if r.Endpoint.URL == "" {
				return &domain.ValidationError{Message: "endpoint url is required"}
			}
			return nil
		})),
	)
}

// CreateTool handles POST /api/tools
func (h *ToolHandler) CreateTool(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	if userID == "" {
		handleError(w, &domain.UnauthorizedError{Message: "login required to create tools"})
		return
	}

	var req toolRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tool := &models.ToolSpec{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Endpoint:    req.Endpoint,
		Inputs:      req.Inputs,
	}
	if err := h.repo.CreateTool(r.Context(), tool); err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, tool)
}

// GetTool handles GET /api/tools/{id}
func (h *ToolHandler) GetTool(w http.ResponseWriter, r *http.Request) {
	tool, err := h.repo.GetTool(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, tool)
}

// ListTools handles GET /api/tools, listing the caller's own tools.
func (h *ToolHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	if userID == "" {
		handleError(w, &domain.UnauthorizedError{Message: "login required"})
		return
	}

	tools, err := h.repo.ListTools(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}
	if tools == nil {
		tools = []models.ToolSpec{}
	}
	httputil.RespondJSON(w, http.StatusOK, tools)
}

// UpdateTool handles PATCH /api/tools/{id}
func (h *ToolHandler) UpdateTool(w http.ResponseWriter, r *http.Request) {
	tool, err := h.loadOwned(w, r)
	if err != nil {
		return
	}

	var req toolRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tool.Name = req.Name
	tool.DisplayName = req.DisplayName
	tool.Description = req.Description
	tool.Endpoint = req.Endpoint
	tool.Inputs = req.Inputs

	if err := h.repo.UpdateTool(r.Context(), tool); err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, tool)
}

// DeleteTool handles DELETE /api/tools/{id}
func (h *ToolHandler) DeleteTool(w http.ResponseWriter, r *http.Request) {
	if _, err := h.loadOwned(w, r); err != nil {
		return
	}
	if err := h.repo.DeleteTool(r.Context(), r.PathValue("id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ToolHandler) loadOwned(w http.ResponseWriter, r *http.Request) (*models.ToolSpec, error) {
	userID := httputil.GetUserID(r)
	if userID == "" {
		err := &domain.UnauthorizedError{Message: "login required"}
		handleError(w, err)
		return nil, err
	}

	tool, err := h.repo.GetTool(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return nil, err
	}
	if tool.UserID != userID {
		err := &domain.ForbiddenError{Message: "tool belongs to another user"}
		handleError(w, err)
		return nil, err
	}
	return tool, nil
}
