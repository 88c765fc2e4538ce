package config

import (
	"fmt"
	"net/url"

	"go.uber.org/zap/zapcore"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	switch c.LLM.Provider {
	case "ollama":
		if c.LLM.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "Ollama base URL is required",
			})
		} else if !validURL(c.LLM.BaseURL) {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	case "openai":
		if c.LLM.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.api_key",
				Message: "api_key is required for the openai provider",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q (want ollama or openai)", c.LLM.Provider),
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	// Validate Embedder config
	switch c.Embedder.Provider {
	case "local", "ollama", "openai":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unknown provider %q (want local, ollama or openai)", c.Embedder.Provider),
		})
	}

	if c.Embedder.Dimension < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.dimension",
			Message: "dimension must be positive",
		})
	}

	if c.Embedder.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "embedder.rate_limit",
			Message: "rate_limit cannot be negative",
		})
	}

	// Validate Database config
	needsDatabase := c.VectorStore.Kind == "pgvector" || c.Content.Source == "postgres"
	if c.Database.URL == "" && needsDatabase {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "database URL is required for pgvector or postgres content",
		})
	} else if c.Database.URL != "" && !validURL(c.Database.URL) {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		errors = append(errors, ValidationError{
			Field:   "database.min_conns",
			Message: fmt.Sprintf("min_conns must be between 0 and max_conns(%d)", c.Database.MaxConns),
		})
	}

	// Validate VectorStore config
	switch c.VectorStore.Kind {
	case "pgvector", "memory":
	case "qdrant":
		if !validURL(c.VectorStore.QdrantURL) {
			errors = append(errors, ValidationError{
				Field:   "vector_store.qdrant_url",
				Message: "invalid Qdrant URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "vector_store.kind",
			Message: fmt.Sprintf("unknown kind %q (want pgvector, qdrant or memory)", c.VectorStore.Kind),
		})
	}

	switch c.VectorStore.Metric {
	case "cosine", "euclid", "dot":
	default:
		errors = append(errors, ValidationError{
			Field:   "vector_store.metric",
			Message: fmt.Sprintf("unknown metric %q (want cosine, euclid or dot)", c.VectorStore.Metric),
		})
	}

	if c.VectorStore.Collection == "" {
		errors = append(errors, ValidationError{
			Field:   "vector_store.collection",
			Message: "collection is required",
		})
	}

	// Validate Content config
	switch c.Content.Source {
	case "postgres":
	case "file":
		if c.Content.File == "" {
			errors = append(errors, ValidationError{
				Field:   "content.file",
				Message: "file is required when source is file",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "content.source",
			Message: fmt.Sprintf("unknown source %q (want postgres or file)", c.Content.Source),
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate Validator config
	if c.Validator.ReadabilityMin > c.Validator.ReadabilityMax {
		errors = append(errors, ValidationError{
			Field:   "validator.readability_min",
			Message: "readability_min must not exceed readability_max",
		})
	}

	if c.Indexer.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "indexer.workers",
			Message: "workers must be positive",
		})
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level %q", c.Log.Level),
		})
	}

	return errors
}
