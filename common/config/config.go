package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	HTTP     HTTPConfig
	AI       AIConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis settings for the log sink and API rate limiting
type RedisConfig struct {
	Enabled  bool
	Addr     string
	DB       int
	Password string
}

// EngineConfig holds execution engine defaults
type EngineConfig struct {
	DefaultTimeout time.Duration // overall per-execution deadline
	MaxParallel    int           // concurrent handler invocations per execution
	RetryAttempts  int
	RetryDelay     time.Duration
	APIRateLimit   int64 // requests per minute on the HTTP API
}

// HTTPConfig holds outbound HTTP client settings for action nodes
type HTTPConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// AIConfig holds provider credentials and defaults for the LLM nodes
type AIConfig struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	AzureAPIKey     string
	AzureBaseURL    string
	AzureModel      string
	OllamaBaseURL   string
	OllamaModel     string
	CohereAPIKey    string
	CohereBaseURL   string
	EmbeddingModel  string
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Enabled:     getEnvBool("POSTGRES_ENABLED", false),
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "flowmesh"),
			User:        getEnv("POSTGRES_USER", "flowmesh"),
			Password:    getEnv("POSTGRES_PASSWORD", "flowmesh"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			DB:       getEnvInt("REDIS_DB", 0),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Engine: EngineConfig{
			DefaultTimeout: getEnvDuration("EXECUTION_DEFAULT_TIMEOUT", 300*time.Second),
			MaxParallel:    getEnvInt("EXECUTION_MAX_PARALLEL", 16),
			RetryAttempts:  getEnvInt("EXECUTION_RETRY_ATTEMPTS", 3),
			RetryDelay:     getEnvDuration("EXECUTION_RETRY_DELAY", 1*time.Second),
			APIRateLimit:   int64(getEnvInt("API_RATE_LIMIT_PER_MINUTE", 300)),
		},
		HTTP: HTTPConfig{
			ConnectTimeout: getEnvDuration("HTTP_CONNECT_TIMEOUT", 10*time.Second),
			ReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		},
		AI: AIConfig{
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			AzureAPIKey:     getEnv("AZURE_OPENAI_API_KEY", ""),
			AzureBaseURL:    getEnv("AZURE_OPENAI_BASE_URL", ""),
			AzureModel:      getEnv("AZURE_OPENAI_MODEL", "gpt-4o-mini"),
			OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:     getEnv("OLLAMA_MODEL", "llama3"),
			CohereAPIKey:    getEnv("COHERE_API_KEY", ""),
			CohereBaseURL:   getEnv("COHERE_BASE_URL", "https://api.cohere.ai"),
			EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Enabled && c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Engine.MaxParallel < 1 {
		return fmt.Errorf("execution max parallel must be >= 1")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
