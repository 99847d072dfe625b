package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DatabaseURL      string
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration
	EncryptionKey    string

	// AI extraction
	AIProvider    string
	GeminiAPIKey  string
	GeminiModel   string
	OllamaBaseURL string
	OllamaModel   string

	// Push notifications
	FirebaseCredentialsFile string

	// Sync tuning
	SyncKeywords        []string
	SpamKeywords        []string
	SpamDomains         []string
	SimilarityThreshold float64
	LockTimeout         time.Duration
	ConnectTimeout      time.Duration
	ExtractWorkers      int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=shipmate port=5432 sslmode=disable"),
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry:  getEnvDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		JWTRefreshExpiry: getEnvDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),
		EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),

		AIProvider:    getEnv("AI_PROVIDER", "auto"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3.2"),

		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),

		SyncKeywords:        getEnvList("SYNC_KEYWORDS"),
		SpamKeywords:        getEnvList("SPAM_KEYWORDS"),
		SpamDomains:         getEnvList("SPAM_DOMAINS"),
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0),
		LockTimeout:         getEnvDuration("LOCK_TIMEOUT", 0),
		ConnectTimeout:      getEnvDuration("CONNECT_TIMEOUT", 0),
		ExtractWorkers:      getEnvInt("EXTRACT_WORKERS", 3),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList parses a comma-separated env value, nil when unset so callers
// can fall back to their built-in defaults.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
