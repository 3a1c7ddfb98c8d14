package models

import (
	"time"
)

// Settings holds per-user (or per anonymous session) preferences. OwnerKey
// is the user id when authenticated, otherwise the session id.
type Settings struct {
	OwnerKey      string            `json:"ownerKey"`
	ActiveModel   string            `json:"activeModel"`
	CustomPrompts map[string]string `json:"customPrompts,omitempty"` // model name -> preprompt
	ShareWithAuthors bool           `json:"shareConversationsWithModelAuthors"`
	DisableStream bool              `json:"disableStream"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// UsageStats are per-owner counters bumped after finished turns.
type UsageStats struct {
	OwnerKey      string    `json:"ownerKey"`
	Conversations int       `json:"conversations"`
	Messages      int       `json:"messages"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
