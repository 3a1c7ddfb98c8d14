package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"hugchat/internal/domain/models/chat"
	"hugchat/internal/domain/repositories"
)

// PostgresAbortMarkerRepository persists stop-generation markers. The
// marker is what makes a stop visible to a generation running on another
// instance.
type PostgresAbortMarkerRepository struct {
	pool *pgxpool.Pool
}

// NewAbortMarkerRepository creates an abort marker repository.
func NewAbortMarkerRepository(config *RepositoryConfig) repositories.AbortMarkerRepository {
	return &PostgresAbortMarkerRepository{pool: config.Pool}
}

// UpsertAbortMarker creates or refreshes the marker. CreatedAt survives
// repeated stop requests; UpdatedAt is bumped every time, which is what
// the pipeline compares against the prompt time.
func (r *PostgresAbortMarkerRepository) UpsertAbortMarker(ctx context.Context, conversationID string) (*chat.AbortedGeneration, error) {
	query := `
		INSERT INTO aborted_generations (conversation_id, created_at, updated_at)
		VALUES ($1, now(), now())
		ON CONFLICT (conversation_id)
		DO UPDATE SET updated_at = now()
		RETURNING conversation_id, created_at, updated_at
	`

	var marker chat.AbortedGeneration
	err := r.pool.QueryRow(ctx, query, conversationID).Scan(
		&marker.ConversationID,
		&marker.CreatedAt,
		&marker.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert abort marker: %w", err)
	}
	return &marker, nil
}

// GetAbortMarker returns the marker, or nil when none exists.
func (r *PostgresAbortMarkerRepository) GetAbortMarker(ctx context.Context, conversationID string) (*chat.AbortedGeneration, error) {
	query := `
		SELECT conversation_id, created_at, updated_at
		FROM aborted_generations
		WHERE conversation_id = $1
	`

	var marker chat.AbortedGeneration
	err := r.pool.QueryRow(ctx, query, conversationID).Scan(
		&marker.ConversationID,
		&marker.CreatedAt,
		&marker.UpdatedAt,
	)
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get abort marker: %w", err)
	}
	return &marker, nil
}
