package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/xhad/booksage/internal/models"
)

const fallbackTemplate = "I encountered an error processing your request. The query was: %s"

// Completer is the part of llms.Model the chat engine needs.
type Completer interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	// SystemTemplate is sent as the system message.
	SystemTemplate string
	// ContextTemplate receives the joined context and then the question.
	ContextTemplate string
}

const defaultSystemTemplate = "You are an expert assistant for the book. Provide helpful, accurate answers based on the book content."

const defaultContextTemplate = `Answer the user's question based on the provided context from the book.

Context from the book:
%s

User question: %s

Provide a helpful, accurate answer based on the context. If the context doesn't contain enough information to answer the question, say so clearly.`

// ChatEngine is an engine that uses an LLM to generate grounded answers.
type ChatEngine struct {
	config ChatConfig
	llm    Completer
	logger *zap.Logger
}

// NewWithConfig creates a new ChatEngine backed by config.Provider.
func NewWithConfig(config ChatConfig, logger *zap.Logger) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}

	var model Completer
	switch config.Provider {
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "mistral"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		llm, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		model = llm
	case ProviderOpenAI:
		if config.Model == "" {
			config.Model = "gpt-3.5-turbo"
		}
		opts := []openai.Option{openai.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		model = llm
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", models.ErrInvalidConfiguration, config.Provider)
	}

	return New(model, config, logger)
}

// New creates a ChatEngine over an existing model.
func New(model Completer, config ChatConfig, logger *zap.Logger) (*ChatEngine, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil completion model", models.ErrInvalidConfiguration)
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("%w: temperature must be between 0 and 1", models.ErrInvalidConfiguration)
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("%w: max tokens cannot be negative", models.ErrInvalidConfiguration)
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = defaultSystemTemplate
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = defaultContextTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChatEngine{
		config: config,
		llm:    model,
		logger: logger,
	}, nil
}

// Temperature is the configured default sampling temperature.
func (ce *ChatEngine) Temperature() float64 {
	return ce.config.Temperature
}

// Prompt renders the human message for query over the given hits.
func (ce *ChatEngine) Prompt(query string, hits []models.SearchHit) string {
	parts := make([]string, len(hits))
	for i, hit := range hits {
		parts[i] = hit.Content
	}
	return fmt.Sprintf(ce.config.ContextTemplate, strings.Join(parts, "\n\n"), query)
}

// Generate answers query from hits. Completion failures never escape: they
// are logged and replaced by a fixed fallback sentence.
func (ce *ChatEngine) Generate(ctx context.Context, query string, hits []models.SearchHit, temperature float64) string {
	return ce.generate(ctx, query, hits, temperature)
}

// GenerateStream behaves like Generate and also forwards streamed fragments
// to onChunk as they arrive.
func (ce *ChatEngine) GenerateStream(ctx context.Context, query string, hits []models.SearchHit, temperature float64, onChunk func(string)) string {
	return ce.generate(ctx, query, hits, temperature,
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if onChunk != nil && len(chunk) > 0 {
				onChunk(string(chunk))
			}
			return nil
		}))
}

func (ce *ChatEngine) generate(ctx context.Context, query string, hits []models.SearchHit, temperature float64, extra ...llms.CallOption) string {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, ce.Prompt(query, hits)),
	}

	options := append([]llms.CallOption{
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}, extra...)

	response, err := ce.llm.GenerateContent(ctx, content, options...)
	if err != nil {
		ce.logger.Error("chat completion failed", zap.String("query", query), zap.Error(err))
		return fmt.Sprintf(fallbackTemplate, query)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil || response.Choices[0].Content == "" {
		ce.logger.Error("chat completion returned no content", zap.String("query", query))
		return fmt.Sprintf(fallbackTemplate, query)
	}

	return response.Choices[0].Content
}
