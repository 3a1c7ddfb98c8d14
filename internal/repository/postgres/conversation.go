package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"hugchat/internal/domain"
	"hugchat/internal/domain/models/chat"
	"hugchat/internal/domain/repositories"
)

// PostgresConversationRepository stores each conversation as one row with
// the message tree in a JSONB column. Message-level mutations rewrite the
// affected message inside the document in a single UPDATE, so concurrent
// writers are serialized by Postgres row locking.
type PostgresConversationRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewConversationRepository creates a conversation repository.
func NewConversationRepository(config *RepositoryConfig) repositories.ConversationRepository {
	return &PostgresConversationRepository{
		pool:   config.Pool,
		logger: config.Logger,
	}
}

// CreateConversation persists a new conversation document.
func (r *PostgresConversationRepository) CreateConversation(ctx context.Context, conv *chat.Conversation) error {
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	query := `
		INSERT INTO conversations (id, user_id, session_id, assistant_id, model, title, preprompt, root_message_id, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		conv.ID,
		conv.UserID,
		conv.SessionID,
		conv.AssistantID,
		conv.Model,
		conv.Title,
		conv.Preprompt,
		conv.RootMessageID,
		messages,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)

	if err != nil {
		if isPgDuplicateError(err) {
			return fmt.Errorf("conversation %s already exists: %w", conv.ID, domain.ErrValidation)
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation with its full message tree.
func (r *PostgresConversationRepository) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	query := `
		SELECT id, user_id, session_id, assistant_id, model, title, preprompt, root_message_id, messages, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	var conv chat.Conversation
	var messages []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.SessionID,
		&conv.AssistantID,
		&conv.Model,
		&conv.Title,
		&conv.Preprompt,
		&conv.RootMessageID,
		&messages,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("conversation %s not found", id)}
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if err := json.Unmarshal(messages, &conv.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for conversation %s: %w", id, err)
	}
	return &conv, nil
}

// ListConversations returns conversations owned by the user, or by the
// anonymous session when no user id is given. Messages are not loaded.
func (r *PostgresConversationRepository) ListConversations(ctx context.Context, userID, sessionID string) ([]chat.Conversation, error) {
	query := `
		SELECT id, user_id, session_id, assistant_id, model, title, preprompt, root_message_id, created_at, updated_at
		FROM conversations
		WHERE ` + ownerClause(userID) + `
		ORDER BY updated_at DESC
	`
	owner := userID
	if userID == "" {
		owner = sessionID
	}

	rows, err := r.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []chat.Conversation
	for rows.Next() {
		var conv chat.Conversation
		if err := rows.Scan(
			&conv.ID,
			&conv.UserID,
			&conv.SessionID,
			&conv.AssistantID,
			&conv.Model,
			&conv.Title,
			&conv.Preprompt,
			&conv.RootMessageID,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func ownerClause(userID string) string {
	if userID != "" {
		return "user_id = $1"
	}
	return "session_id = $1 AND user_id = ''"
}

// UpdateTitle sets the conversation title.
func (r *PostgresConversationRepository) UpdateTitle(ctx context.Context, id, title string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1`,
		id, title,
	)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("conversation %s not found", id)}
	}
	return nil
}

// ReplaceMessages persists the full message tree and root pointer.
func (r *PostgresConversationRepository) ReplaceMessages(ctx context.Context, conv *chat.Conversation) error {
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET messages = $2, root_message_id = $3, updated_at = now() WHERE id = $1`,
		conv.ID, messages, conv.RootMessageID,
	)
	if err != nil {
		return fmt.Errorf("replace messages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("conversation %s not found", conv.ID)}
	}
	return nil
}

// DeleteConversation removes the conversation document.
func (r *PostgresConversationRepository) DeleteConversation(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("conversation %s not found", id)}
	}
	return nil
}

// messageRewriteQuery builds the single-statement UPDATE that rewrites one
// message (selected by id in $2) inside the JSONB document. The array is
// unnested WITH ORDINALITY and re-aggregated ORDER BY ordinality, so the
// message order in the document never depends on the planner. The EXISTS
// guard makes RowsAffected 0 mean "message not found" rather than wiping
// the column with a NULL aggregate.
func messageRewriteQuery(setExpr string) string {
	return `
		UPDATE conversations
		SET messages = (
			SELECT jsonb_agg(
				CASE WHEN t.msg->>'id' = $2
					THEN ` + setExpr + `
					ELSE t.msg
				END
				ORDER BY t.ord
			)
			FROM jsonb_array_elements(messages) WITH ORDINALITY AS t(msg, ord)
		), updated_at = now()
		WHERE id = $1
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(messages) AS e(msg) WHERE e.msg->>'id' = $2
		  )
	`
}

// AppendMessageUpdate appends one update to a message's update log inside
// the document, as a single atomic statement.
func (r *PostgresConversationRepository) AppendMessageUpdate(ctx context.Context, conversationID, messageID string, update chat.MessageUpdate) error {
	encoded, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	query := messageRewriteQuery(`jsonb_set(t.msg, '{updates}', COALESCE(t.msg->'updates', '[]'::jsonb) || jsonb_build_array($3::jsonb))`)
	tag, err := r.pool.Exec(ctx, query, conversationID, messageID, encoded)
	if err != nil {
		return &domain.PersistenceError{Message: fmt.Sprintf("append update: %v", err)}
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("message %s not found in conversation %s", messageID, conversationID)}
	}
	return nil
}

// SetMessageContent sets one message's content field.
func (r *PostgresConversationRepository) SetMessageContent(ctx context.Context, conversationID, messageID, content string) error {
	return r.setMessageField(ctx, conversationID, messageID, "{content}", content)
}

// SetMessageInterrupted marks one message as interrupted.
func (r *PostgresConversationRepository) SetMessageInterrupted(ctx context.Context, conversationID, messageID string) error {
	return r.setMessageField(ctx, conversationID, messageID, "{interrupted}", true)
}

// SetMessageScore records a vote on one message.
func (r *PostgresConversationRepository) SetMessageScore(ctx context.Context, conversationID, messageID string, score int) error {
	if score < -1 || score > 1 {
		return &domain.ValidationError{Message: "score must be -1, 0 or 1"}
	}
	return r.setMessageField(ctx, conversationID, messageID, "{score}", score)
}

func (r *PostgresConversationRepository) setMessageField(ctx context.Context, conversationID, messageID, path string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode field value: %w", err)
	}

	query := messageRewriteQuery(`jsonb_set(t.msg, $3::text[], $4::jsonb)`)
	tag, err := r.pool.Exec(ctx, query, conversationID, messageID, path, encoded)
	if err != nil {
		return &domain.PersistenceError{Message: fmt.Sprintf("set message field: %v", err)}
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("message %s not found in conversation %s", messageID, conversationID)}
	}
	return nil
}
