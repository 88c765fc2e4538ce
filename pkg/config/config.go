package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"PROVIDER"`
	BaseURL     string  `yaml:"base_url" env:"BASE_URL"`
	Model       string  `yaml:"model" env:"MODEL"`
	APIKey      string  `yaml:"api_key" env:"API_KEY"`
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
}

type EmbedderConfig struct {
	Provider      string        `yaml:"provider" env:"PROVIDER"`
	BaseURL       string        `yaml:"base_url" env:"BASE_URL"`
	Model         string        `yaml:"model" env:"MODEL"`
	APIKey        string        `yaml:"api_key" env:"API_KEY"`
	Dimension     int           `yaml:"dimension" env:"DIMENSION"`
	ModelDir      string        `yaml:"model_dir" env:"MODEL_DIR"`
	RateLimit     float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	RetryAttempts uint          `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryDelay    time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url" env:"URL"`
	MaxConns        int           `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns        int           `yaml:"min_conns" env:"MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"MAX_CONN_IDLE_TIME"`
}

type VectorStoreConfig struct {
	// Kind is pgvector, qdrant or memory.
	Kind         string        `yaml:"kind" env:"KIND"`
	Collection   string        `yaml:"collection" env:"COLLECTION"`
	Metric       string        `yaml:"metric" env:"METRIC"`
	EfSearch     int           `yaml:"ef_search" env:"EF_SEARCH"`
	QdrantURL    string        `yaml:"qdrant_url" env:"QDRANT_URL"`
	QdrantAPIKey string        `yaml:"qdrant_api_key" env:"QDRANT_API_KEY"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type ContentConfig struct {
	// Source is postgres or file.
	Source string `yaml:"source" env:"SOURCE"`
	File   string `yaml:"file" env:"FILE"`
}

type ProcessorConfig struct {
	ChunkSize      int    `yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap   int    `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	MinChunkLength int    `yaml:"min_chunk_length" env:"MIN_CHUNK_LENGTH"`
	StripHTML      bool   `yaml:"strip_html" env:"STRIP_HTML"`
	TokenizerModel string `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`
}

type ValidatorConfig struct {
	MinLength      int      `yaml:"min_length" env:"MIN_LENGTH"`
	ReadabilityMin float64  `yaml:"readability_min" env:"READABILITY_MIN"`
	ReadabilityMax float64  `yaml:"readability_max" env:"READABILITY_MAX"`
	Markers        []string `yaml:"markers" env:"MARKERS"`
	Placeholders   []string `yaml:"placeholders"`
}

type RetrieverConfig struct {
	// QueryCacheTTL keeps query embeddings in memory. Negative disables it.
	QueryCacheTTL time.Duration `yaml:"query_cache_ttl" env:"QUERY_CACHE_TTL"`
}

type IndexerConfig struct {
	Workers int `yaml:"workers" env:"WORKERS"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" env:"ADDR"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`

	// RequestTimeout bounds each /rag request.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

type Config struct {
	LLM         LLMConfig         `yaml:"llm" envPrefix:"LLM_"`
	Embedder    EmbedderConfig    `yaml:"embedder" envPrefix:"EMBEDDER_"`
	Database    DatabaseConfig    `yaml:"database" envPrefix:"DATABASE_"`
	VectorStore VectorStoreConfig `yaml:"vector_store" envPrefix:"VECTOR_STORE_"`
	Content     ContentConfig     `yaml:"content" envPrefix:"CONTENT_"`
	Processor   ProcessorConfig   `yaml:"processor" envPrefix:"PROCESSOR_"`
	Validator   ValidatorConfig   `yaml:"validator" envPrefix:"VALIDATOR_"`
	Retriever   RetrieverConfig   `yaml:"retriever" envPrefix:"RETRIEVER_"`
	Indexer     IndexerConfig     `yaml:"indexer" envPrefix:"INDEXER_"`
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Log         LogConfig         `yaml:"log" envPrefix:"LOG_"`
}

// LoadConfig reads the YAML file at path (or the first default location that
// exists), loads .env, applies environment overrides and then defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/booksage/config.yaml"),
			"/etc/booksage/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := mergeWithEnv(config); err != nil {
		return nil, err
	}

	applyDefaults(config)

	return config, nil
}

func mergeWithEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}

	// Conventional variables honoured by the model clients.
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if config.Embedder.APIKey == "" {
		config.Embedder.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "openai":
			config.LLM.Model = "gpt-3.5-turbo"
		default:
			config.LLM.Model = "mistral"
		}
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 500
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "local"
	}
	if config.Embedder.Dimension == 0 {
		config.Embedder.Dimension = 384
	}
	if config.Embedder.ModelDir == "" {
		config.Embedder.ModelDir = "./models"
	}
	if config.Embedder.RetryAttempts == 0 {
		config.Embedder.RetryAttempts = 3
	}
	if config.Embedder.RetryDelay == 0 {
		config.Embedder.RetryDelay = 200 * time.Millisecond
	}

	if config.Database.MaxConns == 0 {
		config.Database.MaxConns = 10
	}
	if config.Database.MaxConnLifetime == 0 {
		config.Database.MaxConnLifetime = time.Hour
	}
	if config.Database.MaxConnIdleTime == 0 {
		config.Database.MaxConnIdleTime = 30 * time.Minute
	}

	if config.VectorStore.Kind == "" {
		config.VectorStore.Kind = "pgvector"
	}
	if config.VectorStore.Collection == "" {
		config.VectorStore.Collection = "book_content_chunks"
	}
	if config.VectorStore.Metric == "" {
		config.VectorStore.Metric = "cosine"
	}
	if config.VectorStore.EfSearch == 0 {
		config.VectorStore.EfSearch = 40
	}
	if config.VectorStore.QdrantURL == "" {
		config.VectorStore.QdrantURL = "http://localhost:6333"
	}
	if config.VectorStore.Timeout == 0 {
		config.VectorStore.Timeout = 15 * time.Second
	}

	if config.Content.Source == "" {
		if config.Content.File != "" {
			config.Content.Source = "file"
		} else {
			config.Content.Source = "postgres"
		}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 500
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 50
	}
	if config.Processor.MinChunkLength == 0 {
		config.Processor.MinChunkLength = 100
	}
	if config.Processor.TokenizerModel == "" {
		config.Processor.TokenizerModel = "gpt-3.5-turbo"
	}

	if config.Validator.MinLength == 0 {
		config.Validator.MinLength = 100
	}
	if config.Validator.ReadabilityMin == 0 && config.Validator.ReadabilityMax == 0 {
		config.Validator.ReadabilityMin = 20
		config.Validator.ReadabilityMax = 70
	}

	if config.Retriever.QueryCacheTTL == 0 {
		config.Retriever.QueryCacheTTL = 10 * time.Minute
	}

	if config.Indexer.Workers == 0 {
		config.Indexer.Workers = 4
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 15 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 60 * time.Second
	}
	if config.Server.RequestTimeout == 0 {
		config.Server.RequestTimeout = 60 * time.Second
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}
