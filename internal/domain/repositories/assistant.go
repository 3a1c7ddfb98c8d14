package repositories

import (
	"context"

	"hugchat/internal/domain/models"
)

// AssistantRepository defines data access for assistant presets.
type AssistantRepository interface {
	CreateAssistant(ctx context.Context, assistant *models.Assistant) error

	// GetAssistant returns domain.ErrNotFound if not found
	GetAssistant(ctx context.Context, id string) (*models.Assistant, error)

	// ListAssistants retrieves assistants created by the user
	ListAssistants(ctx context.Context, userID string) ([]models.Assistant, error)

	UpdateAssistant(ctx context.Context, assistant *models.Assistant) error

	DeleteAssistant(ctx context.Context, id string) error
}

// SettingsRepository defines data access for per-owner settings and usage
// counters.
type SettingsRepository interface {
	// GetSettings returns defaults when the owner has no stored settings
	GetSettings(ctx context.Context, ownerKey string) (*models.Settings, error)

	UpsertSettings(ctx context.Context, settings *models.Settings) error

	// IncrementUsage bumps the owner's usage counters
	IncrementUsage(ctx context.Context, ownerKey string, conversations, messages int) error
}

// ToolRepository defines data access for stored community tool specs.
type ToolRepository interface {
	CreateTool(ctx context.Context, tool *models.ToolSpec) error

	// GetTool returns domain.ErrNotFound if not found
	GetTool(ctx context.Context, id string) (*models.ToolSpec, error)

	ListTools(ctx context.Context, userID string) ([]models.ToolSpec, error)

	UpdateTool(ctx context.Context, tool *models.ToolSpec) error

	DeleteTool(ctx context.Context, id string) error
}
