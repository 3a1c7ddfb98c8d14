package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"hugchat/internal/domain/models"
	"hugchat/internal/domain/repositories"
)

// PostgresSettingsRepository implements SettingsRepository.
type PostgresSettingsRepository struct {
	pool         *pgxpool.Pool
	defaultModel string
}

// NewSettingsRepository creates a settings repository. defaultModel fills
// in ActiveModel for owners with no stored settings.
func NewSettingsRepository(config *RepositoryConfig, defaultModel string) repositories.SettingsRepository {
	return &PostgresSettingsRepository{pool: config.Pool, defaultModel: defaultModel}
}

// GetSettings retrieves settings for an owner, returning defaults when
// nothing is stored.
func (r *PostgresSettingsRepository) GetSettings(ctx context.Context, ownerKey string) (*models.Settings, error) {
	query := `
		SELECT owner_key, active_model, custom_prompts, share_with_authors, disable_stream, updated_at
		FROM settings
		WHERE owner_key = $1
	`

	var settings models.Settings
	var customPrompts []byte
	err := r.pool.QueryRow(ctx, query, ownerKey).Scan(
		&settings.OwnerKey,
		&settings.ActiveModel,
		&customPrompts,
		&settings.ShareWithAuthors,
		&settings.DisableStream,
		&settings.UpdatedAt,
	)
	if err != nil {
		if isPgNoRowsError(err) {
			return &models.Settings{
				OwnerKey:    ownerKey,
				ActiveModel: r.defaultModel,
			}, nil
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	if len(customPrompts) > 0 {
		if err := json.Unmarshal(customPrompts, &settings.CustomPrompts); err != nil {
			return nil, fmt.Errorf("decode custom prompts: %w", err)
		}
	}
	return &settings, nil
}

// UpsertSettings creates or replaces the owner's settings.
func (r *PostgresSettingsRepository) UpsertSettings(ctx context.Context, settings *models.Settings) error {
	customPrompts, err := json.Marshal(settings.CustomPrompts)
	if err != nil {
		return fmt.Errorf("encode custom prompts: %w", err)
	}

	query := `
		INSERT INTO settings (owner_key, active_model, custom_prompts, share_with_authors, disable_stream, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (owner_key)
		DO UPDATE SET
			active_model = EXCLUDED.active_model,
			custom_prompts = EXCLUDED.custom_prompts,
			share_with_authors = EXCLUDED.share_with_authors,
			disable_stream = EXCLUDED.disable_stream,
			updated_at = now()
		RETURNING updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		settings.OwnerKey,
		settings.ActiveModel,
		customPrompts,
		settings.ShareWithAuthors,
		settings.DisableStream,
	).Scan(&settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// IncrementUsage bumps the owner's usage counters.
func (r *PostgresSettingsRepository) IncrementUsage(ctx context.Context, ownerKey string, conversations, messages int) error {
	query := `
		INSERT INTO usage_stats (owner_key, conversations, messages, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (owner_key)
		DO UPDATE SET
			conversations = usage_stats.conversations + EXCLUDED.conversations,
			messages = usage_stats.messages + EXCLUDED.messages,
			updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, ownerKey, conversations, messages); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}
