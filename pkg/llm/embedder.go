package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/booksage/internal/models"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultDimension      = 384
)

type RetryConfig struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
	// RateLimit caps embedding requests per second. Zero disables it.
	RateLimit float64
	Retry     RetryConfig
	// ModelDir is where the local provider keeps downloaded models.
	ModelDir string
}

// EmbeddingClient is satisfied by langchaingo's ollama and openai models and
// by LocalEmbedder.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder turns text into fixed-dimension vectors.
type Embedder struct {
	config  EmbedderConfig
	client  EmbeddingClient
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewEmbedderWithConfig creates the client for config.Provider.
func NewEmbedderWithConfig(config EmbedderConfig, logger *zap.Logger) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderLocal
	}

	var client EmbeddingClient
	switch config.Provider {
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "all-minilm"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
		}
		client = emb
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithEmbeddingModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		emb, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai embedder: %w", err)
		}
		client = emb
	case ProviderLocal:
		if config.Model == "" {
			config.Model = DefaultEmbeddingModel
		}
		emb, err := NewLocalEmbedder(config.Model, config.ModelDir)
		if err != nil {
			return nil, err
		}
		client = emb
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidConfiguration, config.Provider)
	}

	return NewEmbedder(client, config, logger), nil
}

// NewEmbedder wraps an existing client with throttling, retries and
// dimension checks.
func NewEmbedder(client EmbeddingClient, config EmbedderConfig, logger *zap.Logger) *Embedder {
	if config.Dimension == 0 {
		config.Dimension = DefaultDimension
	}
	if config.Retry.Attempts == 0 {
		config.Retry.Attempts = 3
	}
	if config.Retry.Delay == 0 {
		config.Retry.Delay = 200 * time.Millisecond
	}
	if config.Retry.MaxDelay == 0 {
		config.Retry.MaxDelay = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Embedder{
		config: config,
		client: client,
		logger: logger,
	}
	if config.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return e
}

func (e *Embedder) Dimension() int {
	return e.config.Dimension
}

// Close releases the client when it holds local resources.
func (e *Embedder) Close() error {
	if c, ok := e.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Encode embeds one text.
func (e *Embedder) Encode(ctx context.Context, text string) (models.Vector, error) {
	vectors, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EncodeBatch embeds texts in one request, returned in input order.
func (e *Embedder) EncodeBatch(ctx context.Context, texts []string) ([]models.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, models.DependencyError("embedding rate limit", err)
		}
	}

	embeddings, err := retry.DoWithData(
		func() ([][]float32, error) {
			return e.client.CreateEmbedding(ctx, texts)
		},
		retry.Context(ctx),
		retry.Attempts(e.config.Retry.Attempts),
		retry.Delay(e.config.Retry.Delay),
		retry.MaxDelay(e.config.Retry.MaxDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			e.logger.Warn("embedding request failed, retrying",
				zap.Uint("attempt", n+1),
				zap.String("provider", e.config.Provider),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, models.DependencyError("create embedding", err)
	}

	if len(embeddings) != len(texts) {
		return nil, models.DependencyError("create embedding",
			fmt.Errorf("got %d embeddings for %d texts", len(embeddings), len(texts)))
	}

	vectors := make([]models.Vector, len(embeddings))
	for i, emb := range embeddings {
		v := models.Vector(emb)
		if err := v.CheckDim(e.config.Dimension); err != nil {
			return nil, models.DependencyError("create embedding", err)
		}
		vectors[i] = v
	}
	return vectors, nil
}
