package chat

import (
	"regexp"
	"strings"
)

// IsAssistantGenerationTerminal reports whether generation for the message
// has reached an absorbing state. True for absent or non-assistant
// messages (vacuous terminality), interrupted messages, and messages whose
// update log contains a FinalAnswer or a Status error/finished.
//
// The state is recomputed from the append-only update log on every call;
// there is no cached status field to fall out of sync with what was
// persisted.
func IsAssistantGenerationTerminal(msg *Message) bool {
	if msg == nil || msg.From != FromAssistant {
		return true
	}
	if msg.Interrupted {
		return true
	}
	for _, u := range msg.Updates {
		if IsTerminalUpdate(u) {
			return true
		}
	}
	return false
}

// IsConversationGenerationActive reports whether the most recent assistant
// message in the list is still generating. False when no assistant message
// exists.
func IsConversationGenerationActive(messages []Message) bool {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].From == FromAssistant {
			return !IsAssistantGenerationTerminal(&messages[i])
		}
	}
	return false
}

var (
	trailingSpace = regexp.MustCompile(`\s+$`)
	leadingSpace  = regexp.MustCompile(`^\s+`)
)

// MergeFinalAnswer reconciles already-streamed content with the text
// carried by a FinalAnswer update.
//
// When the turn was interrupted the streamed content wins. Without tool
// rounds the final text is authoritative. After tool rounds the final text
// may duplicate, extend or continue what was already streamed, so the two
// are stitched together without repeating text.
func MergeFinalAnswer(current, finalText string, interrupted, hadTools bool) string {
	if interrupted {
		if current != "" {
			return current
		}
		return finalText
	}

	if !hadTools {
		return finalText
	}
	if current == "" {
		return finalText
	}

	trimmedSuffix := trailingSpace.ReplaceAllString(current, "")
	trimmedPrefix := leadingSpace.ReplaceAllString(finalText, "")

	alreadyStreamed := finalText != "" &&
		(strings.HasSuffix(current, finalText) ||
			(trimmedPrefix != "" && strings.HasSuffix(trimmedSuffix, trimmedPrefix)))
	if alreadyStreamed {
		return current
	}

	finalIncludesCurrent := finalText != "" &&
		(strings.HasPrefix(finalText, current) ||
			(trimmedSuffix != "" && strings.HasPrefix(trimmedPrefix, trimmedSuffix)))
	if finalIncludesCurrent {
		return finalText
	}

	if strings.HasSuffix(current, "\n\n") || strings.HasPrefix(finalText, "\n") {
		return current + finalText
	}
	return current + "\n\n" + finalText
}
