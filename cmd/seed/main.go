// Command seed creates a demo conversation so a fresh database has
// something to look at. Safe to run repeatedly; each run creates a new
// conversation.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"hugchat/internal/config"
	"hugchat/internal/domain/models/chat"
	"hugchat/internal/repository/postgres"
)

func main() {
	sessionID := flag.String("session", "seed-session", "session id that will own the demo conversation")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	if cfg.Environment == "prod" {
		log.Fatalf("refusing to seed a production database")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	convRepo := postgres.NewConversationRepository(&postgres.RepositoryConfig{Pool: pool, Logger: logger})

	conv := &chat.Conversation{
		ID:        uuid.NewString(),
		SessionID: *sessionID,
		Model:     cfg.DefaultModel,
		Title:     "Demo conversation",
	}

	userID, err := chat.AddChild(conv, chat.Message{
		From:    chat.FromUser,
		Content: "What can you help me with?",
	}, "")
	if err != nil {
		log.Fatalf("Failed to build demo tree: %v", err)
	}

	answer := "I can answer questions, search the web, and call tools. Ask me anything."
	assistantID, err := chat.AddChild(conv, chat.Message{
		From:    chat.FromAssistant,
		Content: answer,
		Updates: chat.UpdateLog{
			chat.StatusUpdate{Status: chat.StatusStarted},
			chat.FinalAnswerUpdate{Text: answer},
		},
	}, userID)
	if err != nil {
		log.Fatalf("Failed to build demo tree: %v", err)
	}

	if err := convRepo.CreateConversation(ctx, conv); err != nil {
		log.Fatalf("Failed to create demo conversation: %v", err)
	}

	logger.Info("seeded demo conversation",
		"conversation_id", conv.ID,
		"session_id", *sessionID,
		"assistant_message_id", assistantID,
	)
}
