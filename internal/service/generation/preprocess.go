package generation

import (
	"hugchat/internal/domain/models/chat"
	"hugchat/internal/llm"
)

// TruncatePrompt drops the oldest messages until the estimated token
// count fits the budget. The most recent message is always kept, even
// when it alone exceeds the budget; the model's own context handling
// deals with that case.
func TruncatePrompt(messages []chat.Message, budget int) []chat.Message {
	if budget <= 0 || len(messages) == 0 {
		return messages
	}

	total := 0
	cut := len(messages) - 1
	for i := len(messages) - 1; i >= 0; i-- {
		total += llm.EstimateTokensSimple(messages[i].Content)
		if total > budget && i < len(messages)-1 {
			break
		}
		cut = i
	}
	return messages[cut:]
}
