package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	CORSOrigins string

	// Auth
	JWKSURL       string // empty disables bearer auth, sessions only
	SecureCookies bool

	// Inference
	InferenceAPIKey  string
	InferenceBaseURL string // empty for api.openai.com
	DefaultModel     string

	// Web search
	TavilyAPIKey string

	// Rate limiting
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:5173"),

		JWKSURL:       getEnv("JWKS_URL", ""),
		SecureCookies: env == "prod",

		InferenceAPIKey:  getEnv("INFERENCE_API_KEY", ""),
		InferenceBaseURL: getEnv("INFERENCE_BASE_URL", ""),
		DefaultModel:     getEnv("DEFAULT_MODEL", "meta-llama/Llama-3.3-70B-Instruct"),

		TavilyAPIKey: getEnv("TAVILY_API_KEY", ""),

		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),

		// default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
