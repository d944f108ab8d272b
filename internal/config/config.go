// Package config provides configuration management for Recall.
// It loads settings from environment variables with the RECALL_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Recall service.
type Config struct {
	Storage StorageConfig
	LLM     LLMConfig
	Ranking RankingConfig
	Context ContextConfig
	Tasks   TasksConfig
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Vector index engine: sqlite, postgres, memory (default: sqlite)
	DataPath      string // Path to data directory (default: ./data)
	PostgresDSN   string // Postgres DSN, required when StorageEngine is postgres
}

// LLMConfig contains model provider configuration.
type LLMConfig struct {
	LLMProvider            string  // Provider: ollama, openai (default: ollama)
	OllamaURL              string  // Ollama API URL (default: http://localhost:11434)
	OllamaModel            string  // Ollama model name for synthesis (default: qwen2.5:7b)
	OllamaEmbeddingModel   string  // Ollama model name for embeddings (default: nomic-embed-text)
	OpenAIAPIKey           string  // OpenAI API key
	OpenAIModel            string  // OpenAI model name (default: gpt-4o-mini)
	OpenAIEmbeddingModel   string  // OpenAI embedding model (default: text-embedding-3-small)
	EmbedRequestsPerSecond float64 // Client-side embedding rate limit (default: 10)
}

// RankingConfig contains relevance ranking configuration.
type RankingConfig struct {
	WeightsFile string // Optional YAML file overriding scoring weights
	TopK        int    // Vector search fan-out (default: 20)
}

// ContextConfig contains context assembly configuration.
type ContextConfig struct {
	DefaultBudget   int     // Default payload budget in characters (default: 4000)
	TurnBudgetShare float64 // Fraction of budget reserved for recent turns (default: 0.25)
	RecentTurnLimit int     // Recent turns considered per build (default: 10)
}

// TasksConfig contains the task orchestrator configuration.
type TasksConfig struct {
	NumWorkers      int           // Worker goroutines (default: 4)
	QueueSize       int           // Work queue buffer size (default: 100)
	ShutdownTimeout time.Duration // Drain timeout on shutdown (default: 30s)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the RECALL_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			StorageEngine: getEnv("RECALL_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("RECALL_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("RECALL_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			LLMProvider:            getEnv("RECALL_LLM_PROVIDER", "ollama"),
			OllamaURL:              getEnv("RECALL_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:            getEnv("RECALL_OLLAMA_MODEL", "qwen2.5:7b"),
			OllamaEmbeddingModel:   getEnv("RECALL_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:           getEnv("RECALL_OPENAI_API_KEY", ""),
			OpenAIModel:            getEnv("RECALL_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIEmbeddingModel:   getEnv("RECALL_OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbedRequestsPerSecond: getEnvFloat("RECALL_EMBED_RPS", 10),
		},
		Ranking: RankingConfig{
			WeightsFile: getEnv("RECALL_WEIGHTS_FILE", ""),
			TopK:        getEnvInt("RECALL_RANK_TOP_K", 20),
		},
		Context: ContextConfig{
			DefaultBudget:   getEnvInt("RECALL_CONTEXT_BUDGET", 4000),
			TurnBudgetShare: getEnvFloat("RECALL_TURN_BUDGET_SHARE", 0.25),
			RecentTurnLimit: getEnvInt("RECALL_RECENT_TURN_LIMIT", 10),
		},
		Tasks: TasksConfig{
			NumWorkers:      getEnvInt("RECALL_TASK_WORKERS", 4),
			QueueSize:       getEnvInt("RECALL_TASK_QUEUE_SIZE", 100),
			ShutdownTimeout: getEnvDuration("RECALL_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks cross-field constraints that env parsing cannot.
func (c *Config) validate() error {
	switch c.Storage.StorageEngine {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}
	if c.Storage.StorageEngine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: RECALL_POSTGRES_DSN is required for the postgres engine")
	}
	switch c.LLM.LLMProvider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("config: unknown LLM provider %q", c.LLM.LLMProvider)
	}
	if c.LLM.LLMProvider == "openai" && c.LLM.OpenAIAPIKey == "" {
		return fmt.Errorf("config: RECALL_OPENAI_API_KEY is required for the openai provider")
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "45s")
// or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
