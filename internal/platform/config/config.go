// Package config loads application configuration from environment variables.
// All variables use the LEARN_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	AI        AIConfig
	Resources ResourcesConfig
	Log       LogConfig
	// ConfigDir holds thresholds.yaml plus the prompts/ and agents/ trees.
	ConfigDir string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	Host            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Dragonfly/Redis connection settings. An empty URL keeps
// link checks and token budgets in process.
type CacheConfig struct {
	URL string
}

// AIConfig holds configuration for all AI providers and the token budget.
type AIConfig struct {
	Groq     GroqConfig
	OpenAI   OpenAIConfig
	DeepSeek DeepSeekConfig
	Ollama   OllamaConfig
	Budget   BudgetConfig
}

// GroqConfig holds Groq provider settings (OpenAI-compatible).
type GroqConfig struct {
	APIKey string
	Model  string
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	APIKey string
}

// DeepSeekConfig holds DeepSeek provider settings (OpenAI-compatible).
type DeepSeekConfig struct {
	APIKey string
}

// OllamaConfig holds self-hosted Ollama settings.
type OllamaConfig struct {
	Enabled bool
	URL     string
	Model   string
}

// BudgetConfig bounds tokens spent per user. Tokens <= 0 disables the limit.
type BudgetConfig struct {
	Tokens int
	Window time.Duration
}

// ResourcesConfig holds resource catalog and link checking settings.
type ResourcesConfig struct {
	CatalogPath      string
	LinkCheckTimeout time.Duration
	LinkCacheTTL     time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with LEARN_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("LEARN_SERVER_PORT", 8080),
			Host:            envStr("LEARN_SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: envDuration("LEARN_SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:      envStr("LEARN_DATABASE_URL", ""),
			MaxConns: envInt("LEARN_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("LEARN_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			URL: envStr("LEARN_CACHE_URL", ""),
		},
		AI: AIConfig{
			Groq: GroqConfig{
				APIKey: envStr("LEARN_AI_GROQ_API_KEY", ""),
				Model:  envStr("LEARN_AI_GROQ_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				APIKey: envStr("LEARN_AI_OPENAI_API_KEY", ""),
			},
			DeepSeek: DeepSeekConfig{
				APIKey: envStr("LEARN_AI_DEEPSEEK_API_KEY", ""),
			},
			Ollama: OllamaConfig{
				Enabled: envBool("LEARN_AI_OLLAMA_ENABLED", false),
				URL:     envStr("LEARN_AI_OLLAMA_URL", "http://localhost:11434"),
				Model:   envStr("LEARN_AI_OLLAMA_MODEL", ""),
			},
			Budget: BudgetConfig{
				Tokens: envInt("LEARN_AI_TOKEN_BUDGET", 0),
				Window: envDuration("LEARN_AI_TOKEN_BUDGET_WINDOW", 24*time.Hour),
			},
		},
		Resources: ResourcesConfig{
			CatalogPath:      envStr("LEARN_RESOURCES_CATALOG", "./config/resources/catalog.yaml"),
			LinkCheckTimeout: envDuration("LEARN_RESOURCES_LINK_TIMEOUT", 5*time.Second),
			LinkCacheTTL:     envDuration("LEARN_RESOURCES_LINK_CACHE_TTL", 6*time.Hour),
		},
		Log: LogConfig{
			Level:  envStr("LEARN_LOG_LEVEL", "info"),
			Format: envStr("LEARN_LOG_FORMAT", "json"),
		},
		ConfigDir: envStr("LEARN_CONFIG_DIR", "./config"),
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if !c.HasAIProvider() {
		return fmt.Errorf("at least one AI provider must be configured")
	}

	if c.Database.URL != "" && c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("LEARN_DATABASE_MIN_CONNS (%d) exceeds LEARN_DATABASE_MAX_CONNS (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Resources.LinkCheckTimeout <= 0 {
		return fmt.Errorf("LEARN_RESOURCES_LINK_TIMEOUT must be positive, got %s", c.Resources.LinkCheckTimeout)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LEARN_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

// HasAIProvider returns true if at least one AI provider is configured.
func (c *Config) HasAIProvider() bool {
	return c.AI.Groq.APIKey != "" ||
		c.AI.OpenAI.APIKey != "" ||
		c.AI.DeepSeek.APIKey != "" ||
		c.AI.Ollama.Enabled
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
