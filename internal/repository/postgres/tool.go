package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"hugchat/internal/domain"
	"hugchat/internal/domain/models"
	"hugchat/internal/domain/repositories"
)

// PostgresToolRepository implements ToolRepository. Endpoint and inputs
// are stored as JSONB since their shape belongs to the tool spec, not the
// schema.
type PostgresToolRepository struct {
	pool *pgxpool.Pool
}

// NewToolRepository creates a tool repository.
func NewToolRepository(config *RepositoryConfig) repositories.ToolRepository {
	return &PostgresToolRepository{pool: config.Pool}
}

// CreateTool persists a new tool spec.
func (r *PostgresToolRepository) CreateTool(ctx context.Context, tool *models.ToolSpec) error {
	endpoint, inputs, err := encodeSpec(tool)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tools (id, user_id, name, display_name, description, endpoint, inputs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		tool.ID,
		tool.UserID,
		tool.Name,
		tool.DisplayName,
		tool.Description,
		endpoint,
		inputs,
	).Scan(&tool.CreatedAt, &tool.UpdatedAt)

	if err != nil {
		if isPgDuplicateError(err) {
			return fmt.Errorf("tool name %q is taken: %w", tool.Name, domain.ErrValidation)
		}
		return fmt.Errorf("create tool: %w", err)
	}
	return nil
}

// GetTool retrieves a tool spec by id.
func (r *PostgresToolRepository) GetTool(ctx context.Context, id string) (*models.ToolSpec, error) {
	query := toolSelect + ` WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	tool, err := scanTool(row)
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("tool %s not found", id)}
		}
		return nil, fmt.Errorf("get tool: %w", err)
	}
	return tool, nil
}

// ListTools retrieves tool specs. An empty userID lists every stored
// tool, which is how the registry advertises community tools.
func (r *PostgresToolRepository) ListTools(ctx context.Context, userID string) ([]models.ToolSpec, error) {
	query := toolSelect + ` ORDER BY updated_at DESC`
	args := []any{}
	if userID != "" {
		query = toolSelect + ` WHERE user_id = $1 ORDER BY updated_at DESC`
		args = append(args, userID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var tools []models.ToolSpec
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		tools = append(tools, *tool)
	}
	return tools, rows.Err()
}

// UpdateTool updates an existing tool spec.
func (r *PostgresToolRepository) UpdateTool(ctx context.Context, tool *models.ToolSpec) error {
	endpoint, inputs, err := encodeSpec(tool)
	if err != nil {
		return err
	}

	query := `
		UPDATE tools
		SET name = $2, display_name = $3, description = $4, endpoint = $5, inputs = $6, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		tool.ID,
		tool.Name,
		tool.DisplayName,
		tool.Description,
		endpoint,
		inputs,
	)
	if err != nil {
		return fmt.Errorf("update tool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("tool %s not found", tool.ID)}
	}
	return nil
}

// DeleteTool removes a tool spec.
func (r *PostgresToolRepository) DeleteTool(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tools WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("tool %s not found", id)}
	}
	return nil
}

const toolSelect = `
	SELECT id, user_id, name, display_name, description, endpoint, inputs, created_at, updated_at
	FROM tools`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTool(row rowScanner) (*models.ToolSpec, error) {
	var tool models.ToolSpec
	var endpoint, inputs []byte
	if err := row.Scan(
		&tool.ID,
		&tool.UserID,
		&tool.Name,
		&tool.DisplayName,
		&tool.Description,
		&endpoint,
		&inputs,
		&tool.CreatedAt,
		&tool.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(endpoint, &tool.Endpoint); err != nil {
		return nil, fmt.Errorf("decode tool endpoint: %w", err)
	}
	if len(inputs) > 0 {
		if err := json.Unmarshal(inputs, &tool.Inputs); err != nil {
			return nil, fmt.Errorf("decode tool inputs: %w", err)
		}
	}
	return &tool, nil
}

func encodeSpec(tool *models.ToolSpec) ([]byte, []byte, error) {
	endpoint, err := json.Marshal(tool.Endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("encode tool endpoint: %w", err)
	}
	inputs, err := json.Marshal(tool.Inputs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode tool inputs: %w", err)
	}
	return endpoint, inputs, nil
}
