package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"hugchat/internal/domain"
	"hugchat/internal/domain/models"
	"hugchat/internal/domain/repositories"
)

// PostgresAssistantRepository implements AssistantRepository.
type PostgresAssistantRepository struct {
	pool *pgxpool.Pool
}

// NewAssistantRepository creates an assistant repository.
func NewAssistantRepository(config *RepositoryConfig) repositories.AssistantRepository {
	return &PostgresAssistantRepository{pool: config.Pool}
}

// CreateAssistant persists a new assistant.
func (r *PostgresAssistantRepository) CreateAssistant(ctx context.Context, assistant *models.Assistant) error {
	query := `
		INSERT INTO assistants (id, user_id, name, description, model, preprompt, example_input, avatar_sha, user_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		assistant.ID,
		assistant.UserID,
		assistant.Name,
		assistant.Description,
		assistant.Model,
		assistant.Preprompt,
		assistant.ExampleInput,
		assistant.AvatarSha,
		assistant.UserCount,
	).Scan(&assistant.CreatedAt, &assistant.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create assistant: %w", err)
	}
	return nil
}

// GetAssistant retrieves an assistant by id.
func (r *PostgresAssistantRepository) GetAssistant(ctx context.Context, id string) (*models.Assistant, error) {
	query := `
		SELECT id, user_id, name, description, model, preprompt, example_input, avatar_sha, user_count, created_at, updated_at
		FROM assistants
		WHERE id = $1
	`

	var assistant models.Assistant
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&assistant.ID,
		&assistant.UserID,
		&assistant.Name,
		&assistant.Description,
		&assistant.Model,
		&assistant.Preprompt,
		&assistant.ExampleInput,
		&assistant.AvatarSha,
		&assistant.UserCount,
		&assistant.CreatedAt,
		&assistant.UpdatedAt,
	)
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("assistant %s not found", id)}
		}
		return nil, fmt.Errorf("get assistant: %w", err)
	}
	return &assistant, nil
}

// ListAssistants retrieves assistants created by the user.
func (r *PostgresAssistantRepository) ListAssistants(ctx context.Context, userID string) ([]models.Assistant, error) {
	query := `
		SELECT id, user_id, name, description, model, preprompt, example_input, avatar_sha, user_count, created_at, updated_at
		FROM assistants
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list assistants: %w", err)
	}
	defer rows.Close()

	var assistants []models.Assistant
	for rows.Next() {
		var a models.Assistant
		if err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.Name,
			&a.Description,
			&a.Model,
			&a.Preprompt,
			&a.ExampleInput,
			&a.AvatarSha,
			&a.UserCount,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan assistant: %w", err)
		}
		assistants = append(assistants, a)
	}
	return assistants, rows.Err()
}

// UpdateAssistant updates an existing assistant.
func (r *PostgresAssistantRepository) UpdateAssistant(ctx context.Context, assistant *models.Assistant) error {
	query := `
		UPDATE assistants
		SET name = $2, description = $3, model = $4, preprompt = $5, example_input = $6, avatar_sha = $7, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		assistant.ID,
		assistant.Name,
		assistant.Description,
		assistant.Model,
		assistant.Preprompt,
		assistant.ExampleInput,
		assistant.AvatarSha,
	)
	if err != nil {
		return fmt.Errorf("update assistant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("assistant %s not found", assistant.ID)}
	}
	return nil
}

// DeleteAssistant removes an assistant.
func (r *PostgresAssistantRepository) DeleteAssistant(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM assistants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assistant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("assistant %s not found", id)}
	}
	return nil
}
