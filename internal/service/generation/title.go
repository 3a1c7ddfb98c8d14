package generation

import (
	"context"
	"strings"
	"time"

	"hugchat/internal/domain/models/chat"
	"hugchat/internal/llm"
)

// DefaultTitle is the placeholder given to conversations at creation.
const DefaultTitle = "New Chat"

const titleTimeout = 20 * time.Second

const titlePrompt = "Summarize the following message as a single concise " +
	"title of at most five words. Reply with the title only, no quotes, " +
	"no punctuation at the end."

func needsTitle(title string) bool {
	return title == "" || title == DefaultTitle
}

// titleWorker generates a conversation title from the first user message
// and emits it as a title update. Runs concurrently with generation; a
// model failure falls back to the first words of the message.
func (s *Service) titleWorker(ctx context.Context, model, userMessage string, events chan<- chat.MessageUpdate) {
	if strings.TrimSpace(userMessage) == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	title, err := s.endpoint.Complete(ctx, &llm.GenerateRequest{
		Model:     model,
		Preprompt: titlePrompt,
		Messages:  []llm.Message{{Role: chat.FromUser, Content: userMessage}},
		MaxTokens: 30,
	})
	if err != nil {
		s.logger.Warn("title generation failed, using fallback", "error", err)
		title = ""
	}

	title = sanitizeTitle(title)
	if title == "" {
		title = FallbackTitle(userMessage)
	}
	if title == "" {
		return
	}

	select {
	case events <- chat.TitleUpdate{Title: title}:
	case <-ctx.Done():
	}
}

// FallbackTitle derives a title from the first five words of the prompt.
func FallbackTitle(userMessage string) string {
	words := strings.Fields(userMessage)
	if len(words) == 0 {
		return ""
	}
	if len(words) > 5 {
		return strings.Join(words[:5], " ") + "..."
	}
	return strings.Join(words, " ")
}

func sanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if len(title) > 100 {
		title = title[:100]
	}
	return strings.TrimSpace(title)
}
