package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the document pipeline.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Answer    AnswerConfig    `yaml:"answer"`
	Workers   int             `yaml:"workers" env:"REGRAG_WORKERS"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourceConfig selects which objects of the document directory are
// processed.
type SourceConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// ChunkingConfig holds token-window chunking parameters.
type ChunkingConfig struct {
	ChunkTokens   int `yaml:"chunk_tokens" env:"REGRAG_CHUNK_TOKENS"`
	OverlapTokens int `yaml:"overlap_tokens" env:"REGRAG_OVERLAP_TOKENS"`
}

// EmbeddingConfig holds embedding backend configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" env:"REGRAG_EMBEDDING_PROVIDER"` // "openai", "ollama", "mock"
	Model     string `yaml:"model" env:"REGRAG_EMBEDDING_MODEL"`
	APIKeyEnv string `yaml:"api_key_env"` // environment variable holding the API key
	BaseURL   string `yaml:"base_url" env:"REGRAG_EMBEDDING_BASE_URL"`
	Dimension int    `yaml:"dimension"`
}

// RetrieveConfig holds semantic search defaults.
type RetrieveConfig struct {
	TopK                int     `yaml:"top_k" env:"REGRAG_TOP_K"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"REGRAG_SIMILARITY_THRESHOLD"`
}

// AnswerConfig holds answer synthesis configuration.
type AnswerConfig struct {
	Enabled          bool    `yaml:"enabled" env:"REGRAG_ANSWER_ENABLED"`
	Model            string  `yaml:"model" env:"REGRAG_ANSWER_MODEL"`
	APIKeyEnv        string  `yaml:"api_key_env"`
	BaseURL          string  `yaml:"base_url" env:"REGRAG_ANSWER_BASE_URL"`
	MaxContextTokens int     `yaml:"max_context_tokens" env:"REGRAG_MAX_CONTEXT_TOKENS"`
	MaxAnswerTokens  int     `yaml:"max_answer_tokens"`
	Temperature      float64 `yaml:"temperature"`
	TimeoutSeconds   int     `yaml:"timeout_seconds" env:"REGRAG_ANSWER_TIMEOUT"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" env:"REGRAG_LOG_LEVEL"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Includes: []string{"**/*.pdf", "**/*.txt", "**/*.md"},
			Excludes: []string{"**/.regrag/**"},
		},
		Chunking: ChunkingConfig{
			ChunkTokens:   1000,
			OverlapTokens: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 1536,
		},
		Retrieve: RetrieveConfig{
			TopK:                5,
			SimilarityThreshold: 0.25,
		},
		Answer: AnswerConfig{
			Enabled:          true,
			Model:            "gpt-4o-mini",
			APIKeyEnv:        "OPENAI_API_KEY",
			MaxContextTokens: 3000,
			MaxAnswerTokens:  1500,
			Temperature:      0.3,
			TimeoutSeconds:   60,
		},
		Workers: 4,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, then applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnv(cfg)
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return applyEnv(cfg)
}

// LoadFromDir loads configuration from a directory (looks for
// regrag.yaml, then .regrag/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "regrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".regrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return applyEnv(DefaultConfig())
}

func applyEnv(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StoreDBPath returns the path of the metadata database.
func StoreDBPath(dir string) string {
	return filepath.Join(dir, ".regrag", "store.db")
}

// IndexBlobPath returns the path of the persisted vector index.
func IndexBlobPath(dir string) string {
	return filepath.Join(dir, ".regrag", "index.bin")
}

// EnsureStateDir ensures the .regrag directory exists.
func EnsureStateDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".regrag"), 0755)
}
