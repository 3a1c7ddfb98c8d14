package config

const (
	// MaxTitleLength is the maximum length for conversation titles.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255) and provide
	// reasonable UX (titles should be short and descriptive).
	MaxTitleLength = 255

	// MaxPromptLength caps user prompt bodies. Larger prompts are
	// rejected before any model call.
	MaxPromptLength = 32 * 1024

	// MaxPrepromptLength caps custom system prompts on conversations,
	// assistants and settings.
	MaxPrepromptLength = 8 * 1024

	// MaxAssistantNameLength is the maximum length for assistant names.
	MaxAssistantNameLength = 100

	// MaxToolNameLength is the maximum length for community tool machine
	// names, which are exposed to the model verbatim.
	MaxToolNameLength = 64
)
