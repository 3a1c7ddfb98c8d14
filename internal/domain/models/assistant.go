package models

import (
	"time"
)

// Assistant is a shareable preset: a model choice plus a custom system
// prompt and presentation metadata. Conversations created from an
// assistant inherit its preprompt.
type Assistant struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Model        string    `json:"model"`
	Preprompt    string    `json:"preprompt,omitempty"`
	ExampleInput string    `json:"exampleInput,omitempty"`
	AvatarSha    string    `json:"avatarSha,omitempty"`
	UserCount    int       `json:"userCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
