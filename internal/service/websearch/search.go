package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"hugchat/internal/domain/models/chat"
)

const (
	maxQueryLength = 300
	maxSources     = 5
	maxSnippetLen  = 1200
)

// Service runs the web search phase for a generation turn.
type Service struct {
	client SearchClient
	logger *slog.Logger
}

// NewService creates a web search service.
func NewService(client SearchClient, logger *slog.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// Run searches the web for the user's prompt. Progress, sources and
// completion are reported through emit using the webSearch update
// sub-protocol; on failure an error update is emitted and the error
// returned so the caller can continue without search context.
func (s *Service) Run(ctx context.Context, prompt string, emit func(chat.MessageUpdate)) ([]chat.WebSearchSource, string, error) {
	query := ExtractQuery(prompt)
	if query == "" {
		err := fmt.Errorf("empty search query")
		emit(errorUpdate("Could not determine a search query", err))
		return nil, "", err
	}

	emit(generalUpdate("Searching the web", query))

	resp, err := s.client.Search(ctx, query, SearchOptions{MaxResults: maxSources})
	if err != nil {
		s.logger.Warn("web search failed", "query", query, "error", err)
		emit(errorUpdate("An error occurred while searching the web", err))
		return nil, "", err
	}
	if len(resp.Results) == 0 {
		emit(generalUpdate("No results found", query))
		emit(finishedUpdate())
		return nil, "", nil
	}

	sources := make([]chat.WebSearchSource, 0, len(resp.Results))
	var contextBuilder strings.Builder
	contextBuilder.WriteString("Results of a web search for the user's question:\n")
	for i, r := range resp.Results {
		sources = append(sources, chat.WebSearchSource{Title: r.Title, Link: r.URL})
		snippet := r.Snippet
		if len(snippet) > maxSnippetLen {
			snippet = snippet[:maxSnippetLen]
		}
		fmt.Fprintf(&contextBuilder, "[%d] %s (%s)\n%s\n", i+1, r.Title, r.URL, snippet)
	}

	emit(sourcesUpdate(sources))
	emit(finishedUpdate())
	return sources, contextBuilder.String(), nil
}

// ExtractQuery derives a search query from the user's prompt: trimmed,
// collapsed to one line, truncated to a reasonable length.
func ExtractQuery(prompt string) string {
	query := strings.TrimSpace(prompt)
	if i := strings.IndexByte(query, '\n'); i >= 0 {
		query = strings.TrimSpace(query[:i])
	}
	if len(query) > maxQueryLength {
		query = query[:maxQueryLength]
	}
	return query
}

func generalUpdate(message string, args ...string) chat.WebSearchUpdate {
	return chat.WebSearchUpdate{
		Subtype: chat.WebSearchUpdateProgress,
		Message: message,
		Args:    args,
	}
}

func errorUpdate(message string, err error) chat.WebSearchUpdate {
	return chat.WebSearchUpdate{
		Subtype: chat.WebSearchUpdateError,
		Message: message,
		Args:    []string{err.Error()},
	}
}

func sourcesUpdate(sources []chat.WebSearchSource) chat.WebSearchUpdate {
	return chat.WebSearchUpdate{
		Subtype: chat.WebSearchUpdateSources,
		Message: "sources",
		Sources: sources,
	}
}

func finishedUpdate() chat.WebSearchUpdate {
	return chat.WebSearchUpdate{
		Subtype: chat.WebSearchUpdateFinished,
		Message: "done",
	}
}
