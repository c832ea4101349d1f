package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	MemoryBackendLocal    = "local"
	MemoryBackendPostgres = "postgres"
)

// Config collects every knob of the diagnosis pipeline from the environment.
type Config struct {
	// Language model boundary (Ollama).
	OllamaURL      string
	LLMModel       string
	EmbedModel     string
	LLMTimeoutSecs int

	// Reasoning behavior.
	RetrievalK       int
	MaxParseRetries  int
	MaxReasonRetries int
	SelfConsistency  int // number of voted responses; 1 disables voting

	// Stream simulation.
	LogFilePath string
	ChunkSize   int

	// Pattern agent trigger.
	PatternBufferSize int // buffer capacity; full buffer triggers synthesis
	PatternInterval   int // also trigger every N chunks; 0 disables

	// Rule persistence.
	RulesDir string

	// Retrieval store.
	MemoryBackend string
	MemoryPath    string // local backend snapshot file
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string

	// HTTP API.
	Port string
}

// ConfigurationError is fatal and surfaced before any processing begins.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Load reads the environment (and .env when present) into a Config.
func Load() *Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return &Config{
		OllamaURL:      getEnv("OLLAMA_URL", "http://localhost:11434"),
		LLMModel:       getEnv("OLLAMA_MODEL", "llama3:8b"),
		EmbedModel:     getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		LLMTimeoutSecs: getEnvInt("OLLAMA_TIMEOUT_SECONDS", 120),

		RetrievalK:       getEnvInt("RETRIEVAL_K", 4),
		MaxParseRetries:  getEnvInt("MAX_PARSE_RETRIES", 2),
		MaxReasonRetries: getEnvInt("MAX_REASON_RETRIES", 2),
		SelfConsistency:  getEnvInt("SELF_CONSISTENCY_N", 1),

		LogFilePath: getEnv("LOG_FILE_PATH", "data/sample.log"),
		ChunkSize:   getEnvInt("LOG_CHUNK_SIZE", 20),

		PatternBufferSize: getEnvInt("PATTERN_BUFFER_SIZE", 16),
		PatternInterval:   getEnvInt("PATTERN_INTERVAL_CHUNKS", 1),

		RulesDir: getEnv("RULES_DIR", "rules"),

		MemoryBackend: getEnv("MEMORY_BACKEND", MemoryBackendLocal),
		MemoryPath:    getEnv("MEMORY_PATH", "vector_store/memories.json"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),

		Port: getEnv("PORT", "8080"),
	}
}

// Validate checks the configuration before the pipeline touches anything.
func (c *Config) Validate() error {
	if c.OllamaURL == "" {
		return &ConfigurationError{Field: "OLLAMA_URL", Reason: "must not be empty"}
	}
	if c.LLMModel == "" {
		return &ConfigurationError{Field: "OLLAMA_MODEL", Reason: "must not be empty"}
	}
	if c.EmbedModel == "" {
		return &ConfigurationError{Field: "OLLAMA_EMBED_MODEL", Reason: "must not be empty"}
	}
	if c.ChunkSize <= 0 {
		return &ConfigurationError{Field: "LOG_CHUNK_SIZE", Reason: "must be positive"}
	}
	if c.RetrievalK <= 0 {
		return &ConfigurationError{Field: "RETRIEVAL_K", Reason: "must be positive"}
	}
	if c.SelfConsistency < 1 {
		return &ConfigurationError{Field: "SELF_CONSISTENCY_N", Reason: "must be at least 1"}
	}
	if c.PatternBufferSize <= 0 {
		return &ConfigurationError{Field: "PATTERN_BUFFER_SIZE", Reason: "must be positive"}
	}
	if c.RulesDir == "" {
		return &ConfigurationError{Field: "RULES_DIR", Reason: "must not be empty"}
	}
	switch c.MemoryBackend {
	case MemoryBackendLocal:
		if c.MemoryPath == "" {
			return &ConfigurationError{Field: "MEMORY_PATH", Reason: "must not be empty for the local backend"}
		}
	case MemoryBackendPostgres:
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			return &ConfigurationError{Field: "DB_HOST/DB_USER/DB_NAME", Reason: "required for the postgres backend"}
		}
	default:
		return &ConfigurationError{Field: "MEMORY_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.MemoryBackend)}
	}
	return nil
}

// DSN builds the Postgres connection string for the retrieval store.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
