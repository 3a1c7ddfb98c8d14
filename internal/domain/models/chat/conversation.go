package chat

import (
	"time"
)

// Message roles
const (
	FromUser      = "user"
	FromAssistant = "assistant"
	FromSystem    = "system"
)

// File reference kinds
const (
	FileTypeHash   = "hash"
	FileTypeBase64 = "base64"
)

// MessageFile is a file attached to a message, either by content hash or
// inline base64.
type MessageFile struct {
	Type  string `json:"type"` // "hash" or "base64"
	Name  string `json:"name"`
	Value string `json:"value"` // sha256 hash or base64 payload
	Mime  string `json:"mime"`
}

// WebSearchSource is one citation produced by the web search phase.
type WebSearchSource struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Message is a node in a conversation's tree.
//
// Ancestors is the denormalized path from the root to (excluding) this
// message; it always equals ancestors(parent) + [parent]. Children holds
// the ids of direct replies; multiple children are sibling branches
// produced by edits or retries.
type Message struct {
	ID          string        `json:"id"`
	From        string        `json:"from"`
	Content     string        `json:"content"`
	Ancestors   []string      `json:"ancestors,omitempty"`
	Children    []string      `json:"children,omitempty"`
	Updates     UpdateLog     `json:"updates,omitempty"`
	Interrupted bool          `json:"interrupted,omitempty"`
	Files       []MessageFile `json:"files,omitempty"`
	Score       int           `json:"score,omitempty"` // -1, 0, +1
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Conversation owns a tree of messages. Ownership is either a registered
// user (UserID) or an anonymous browser session (SessionID); exactly one
// is set.
//
// RootMessageID is empty for legacy conversations stored as a flat ordered
// array; ConvertLegacyConversation migrates those to the tree shape.
type Conversation struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId,omitempty"`
	SessionID     string    `json:"sessionId,omitempty"`
	AssistantID   string    `json:"assistantId,omitempty"`
	Model         string    `json:"model"`
	Title         string    `json:"title"`
	Preprompt     string    `json:"preprompt,omitempty"`
	RootMessageID string    `json:"rootMessageId,omitempty"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// OwnedBy reports whether the conversation belongs to the given identity.
// An empty userID falls back to the session check.
func (c *Conversation) OwnedBy(userID, sessionID string) bool {
	if c.UserID != "" {
		return c.UserID == userID
	}
	return c.SessionID != "" && c.SessionID == sessionID
}

// AbortedGeneration is the persisted marker signalling that any in-flight
// generation for the conversation must stop. CreatedAt is immutable across
// repeated stop requests; UpdatedAt is bumped each time.
type AbortedGeneration struct {
	ConversationID string    `json:"conversationId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
