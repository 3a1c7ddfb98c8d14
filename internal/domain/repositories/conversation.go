package repositories

import (
	"context"

	"hugchat/internal/domain/models/chat"
)

// ConversationRepository defines document-store style access to
// conversations. Each conversation is one document; message-level writes
// are single-document atomic updates, so concurrent writers (a stop
// racing a stream append) are resolved by the store's per-document write
// ordering.
type ConversationRepository interface {
	// CreateConversation persists a new conversation document
	CreateConversation(ctx context.Context, conv *chat.Conversation) error

	// GetConversation retrieves a conversation by id
	// Returns domain.ErrNotFound if not found
	GetConversation(ctx context.Context, id string) (*chat.Conversation, error)

	// ListConversations retrieves conversations owned by the user or, for
	// anonymous callers, the session. Ordered by most recently updated.
	ListConversations(ctx context.Context, userID, sessionID string) ([]chat.Conversation, error)

	// UpdateTitle sets the conversation title
	UpdateTitle(ctx context.Context, id, title string) error

	// ReplaceMessages persists the full message tree and root pointer
	// after tree mutations (new message, edit/retry sibling, branch
	// delete, legacy migration)
	ReplaceMessages(ctx context.Context, conv *chat.Conversation) error

	// DeleteConversation removes the conversation document
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessageUpdate appends one update to a message's update log in
	// a single atomic document write. Used on every streamed event; a
	// crash mid-stream must not lose already-appended updates.
	AppendMessageUpdate(ctx context.Context, conversationID, messageID string, update chat.MessageUpdate) error

	// SetMessageContent sets a message's content field
	SetMessageContent(ctx context.Context, conversationID, messageID, content string) error

	// SetMessageInterrupted marks a message as interrupted mid-generation
	SetMessageInterrupted(ctx context.Context, conversationID, messageID string) error

	// SetMessageScore records a user vote (-1, 0, +1)
	SetMessageScore(ctx context.Context, conversationID, messageID string, score int) error
}

// AbortMarkerRepository persists AbortedGeneration markers, the
// cross-instance half of the cancellation path.
type AbortMarkerRepository interface {
	// UpsertAbortMarker creates or refreshes the marker for a
	// conversation. CreatedAt is preserved across repeated calls;
	// UpdatedAt is bumped every time.
	UpsertAbortMarker(ctx context.Context, conversationID string) (*chat.AbortedGeneration, error)

	// GetAbortMarker returns the marker, or nil when none exists
	GetAbortMarker(ctx context.Context, conversationID string) (*chat.AbortedGeneration, error)
}
