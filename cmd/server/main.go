package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"hugchat/internal/abort"
	"hugchat/internal/auth"
	"hugchat/internal/config"
	"hugchat/internal/handler"
	"hugchat/internal/llm"
	"hugchat/internal/metrics"
	"hugchat/internal/middleware"
	"hugchat/internal/repository/postgres"
	chatSvc "hugchat/internal/service/chat"
	"hugchat/internal/service/generation"
	"hugchat/internal/service/tools"
	"hugchat/internal/service/websearch"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
	)

	// JWT verification is optional; without a JWKS URL every caller is an
	// anonymous session
	var jwtVerifier auth.JWTVerifier
	if cfg.JWKSURL != "" {
		verifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
		defer verifier.Close()
		jwtVerifier = verifier
	} else {
		logger.Warn("no JWKS URL configured, bearer auth disabled")
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected", "max_conns", 25, "min_conns", 5)

	// Repositories
	repoConfig := &postgres.RepositoryConfig{Pool: pool, Logger: logger}
	convRepo := postgres.NewConversationRepository(repoConfig)
	markerRepo := postgres.NewAbortMarkerRepository(repoConfig)
	assistantRepo := postgres.NewAssistantRepository(repoConfig)
	settingsRepo := postgres.NewSettingsRepository(repoConfig, cfg.DefaultModel)
	toolRepo := postgres.NewToolRepository(repoConfig)

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(promRegistry)

	// Generation dependencies
	registry := abort.NewRegistry(logger)
	endpoint := llm.NewOpenAIEndpoint(llm.OpenAIConfig{
		APIKey:  cfg.InferenceAPIKey,
		BaseURL: cfg.InferenceBaseURL,
	}, logger)

	var searchService generation.SearchRunner
	if cfg.TavilyAPIKey != "" {
		searchService = websearch.NewService(websearch.NewTavilyClient(cfg.TavilyAPIKey), logger)
	} else {
		logger.Warn("no Tavily API key configured, web search disabled")
	}

	toolRegistry := tools.NewRegistry(toolRepo, tools.NewConfigToolRunner(), logger)
	toolRegistry.Register(tools.NewFetchTool())
	toolRegistry.Register(tools.NewGalleryTool())

	generationService := generation.NewService(
		convRepo,
		markerRepo,
		settingsRepo,
		registry,
		endpoint,
		searchService,
		toolRegistry,
		m,
		generation.DefaultConfig(),
		logger,
	)

	chatService := chatSvc.NewService(
		convRepo,
		markerRepo,
		assistantRepo,
		settingsRepo,
		registry,
		cfg.DefaultModel,
		logger,
	)

	// Handlers
	conversationHandler := handler.NewConversationHandler(chatService, generationService, logger)
	assistantHandler := handler.NewAssistantHandler(assistantRepo, logger)
	settingsHandler := handler.NewSettingsHandler(settingsRepo, logger)
	toolHandler := handler.NewToolHandler(toolRepo, logger)

	logger.Info("services initialized")

	// HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.Handle("GET /metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	// Conversation routes
	mux.HandleFunc("POST /api/conversation", conversationHandler.CreateConversation)
	mux.HandleFunc("GET /api/conversations", conversationHandler.ListConversations)
	mux.HandleFunc("GET /api/conversation/{id}", conversationHandler.GetConversation)
	mux.HandleFunc("POST /api/conversation/{id}", conversationHandler.Prompt) // NDJSON update stream
	mux.HandleFunc("PATCH /api/conversation/{id}", conversationHandler.UpdateConversation)
	mux.HandleFunc("DELETE /api/conversation/{id}", conversationHandler.DeleteConversation)
	mux.HandleFunc("POST /api/conversation/{id}/stop-generating", conversationHandler.StopGenerating)
	mux.HandleFunc("POST /api/conversation/{id}/message/{messageId}/vote", conversationHandler.Vote)
	mux.HandleFunc("DELETE /api/conversation/{id}/message/{messageId}", conversationHandler.DeleteBranch)

	// Assistant routes
	mux.HandleFunc("POST /api/assistants", assistantHandler.CreateAssistant)
	mux.HandleFunc("GET /api/assistants", assistantHandler.ListAssistants)
	mux.HandleFunc("GET /api/assistants/{id}", assistantHandler.GetAssistant)
	mux.HandleFunc("PATCH /api/assistants/{id}", assistantHandler.UpdateAssistant)
	mux.HandleFunc("DELETE /api/assistants/{id}", assistantHandler.DeleteAssistant)

	// Settings routes
	mux.HandleFunc("GET /api/settings", settingsHandler.GetSettings)
	mux.HandleFunc("POST /api/settings", settingsHandler.UpdateSettings)

	// Tool routes
	mux.HandleFunc("POST /api/tools", toolHandler.CreateTool)
	mux.HandleFunc("GET /api/tools", toolHandler.ListTools)
	mux.HandleFunc("GET /api/tools/{id}", toolHandler.GetTool)
	mux.HandleFunc("PATCH /api/tools/{id}", toolHandler.UpdateTool)
	mux.HandleFunc("DELETE /api/tools/{id}", toolHandler.DeleteTool)

	// Build middleware chain, applied in reverse order (they wrap each
	// other): CORS -> Recovery -> Identity -> RateLimit -> Routes
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)

	var httpHandler http.Handler = mux
	httpHandler = rateLimiter.Middleware(httpHandler)
	httpHandler = middleware.Identity(jwtVerifier, cfg.SecureCookies, logger)(httpHandler)
	httpHandler = middleware.Recovery(logger)(httpHandler)

	// CORS must be outermost to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // disabled to allow long-lived update streams
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
