package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/internal/types"
	"github.com/xhad/booksage/pkg/config"
	"github.com/xhad/booksage/pkg/content"
	"github.com/xhad/booksage/pkg/indexer"
	"github.com/xhad/booksage/pkg/llm"
	"github.com/xhad/booksage/pkg/processor"
	"github.com/xhad/booksage/pkg/rag"
	"github.com/xhad/booksage/pkg/retriever"
	"github.com/xhad/booksage/pkg/store"
	"github.com/xhad/booksage/pkg/validator"
	"github.com/xhad/booksage/server"
)

// App holds the wired pipeline for one CLI invocation.
type App struct {
	config   *config.Config
	logger   *zap.Logger
	pool     *pgxpool.Pool
	store    types.VectorStore
	embedder *llm.Embedder
	reader   types.ContentReader
	lister   types.BookLister
	// book and fileBook are set when content comes from content.file.
	book     *content.Memory
	fileBook models.ContentID
	indexer  *indexer.Indexer
	rag      *rag.Service
}

type buildOptions struct {
	configPath string
	bookFile   string
	progress   indexer.ProgressFunc
}

func setupLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = level
	return zapConfig.Build()
}

func formatValidation(errs []config.ValidationError) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%w:\n  %s", models.ErrInvalidConfiguration, strings.Join(msgs, "\n  "))
}

// Build loads configuration and wires every component. The caller must Close
// the returned App.
func Build(ctx context.Context, opts buildOptions) (*App, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.bookFile != "" {
		cfg.Content.Source = "file"
		cfg.Content.File = opts.bookFile
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, formatValidation(errs)
	}

	logger, err := setupLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	logger.Debug("building application",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("embedder_provider", cfg.Embedder.Provider),
		zap.String("vector_store", cfg.VectorStore.Kind),
		zap.String("content_source", cfg.Content.Source),
	)

	app := &App{config: cfg, logger: logger}
	if err := app.build(ctx, opts); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, opts buildOptions) error {
	cfg := a.config

	if cfg.VectorStore.Kind == "pgvector" || cfg.Content.Source == "postgres" {
		pool, err := store.NewPool(ctx, store.PoolConfig{
			ConnString:      cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("setup database: %w", err)
		}
		a.pool = pool
	}

	switch cfg.VectorStore.Kind {
	case "pgvector":
		a.store = store.NewPGVector(a.pool, store.PGVectorConfig{EfSearch: cfg.VectorStore.EfSearch}, a.logger)
	case "qdrant":
		a.store = store.NewQdrant(store.QdrantConfig{
			URL:     cfg.VectorStore.QdrantURL,
			APIKey:  cfg.VectorStore.QdrantAPIKey,
			Timeout: cfg.VectorStore.Timeout,
		}, a.logger)
	case "memory":
		a.store = store.NewMemory()
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		APIKey:    cfg.Embedder.APIKey,
		Dimension: cfg.Embedder.Dimension,
		RateLimit: cfg.Embedder.RateLimit,
		Retry: llm.RetryConfig{
			Attempts: cfg.Embedder.RetryAttempts,
			Delay:    cfg.Embedder.RetryDelay,
		},
		ModelDir: cfg.Embedder.ModelDir,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	a.embedder = embedder

	if err := a.store.EnsureCollection(ctx, models.CollectionSpec{
		Name:      cfg.VectorStore.Collection,
		Dimension: embedder.Dimension(),
		Metric:    models.Metric(cfg.VectorStore.Metric),
	}); err != nil {
		return fmt.Errorf("ensure collection %s: %w", cfg.VectorStore.Collection, err)
	}

	switch cfg.Content.Source {
	case "postgres":
		pg := content.NewPostgres(a.pool)
		a.reader, a.lister = pg, pg
	case "file":
		book, root, err := content.LoadFile(cfg.Content.File)
		if err != nil {
			return fmt.Errorf("load book file: %w", err)
		}
		a.reader, a.lister = book, book
		a.book, a.fileBook = book, root
	}

	// The character path still honours the window settings when no
	// tokenizer encoding is available.
	var tokenizer processor.Tokenizer
	if tk, err := processor.NewTiktokenTokenizer(cfg.Processor.TokenizerModel); err != nil {
		a.logger.Warn("tokenizer unavailable, using character windows",
			zap.String("model", cfg.Processor.TokenizerModel), zap.Error(err))
	} else {
		tokenizer = tk
	}

	proc, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      cfg.Processor.ChunkSize,
		ChunkOverlap:   cfg.Processor.ChunkOverlap,
		MinChunkLength: cfg.Processor.MinChunkLength,
		StripHTML:      cfg.Processor.StripHTML,
	}, tokenizer)
	if err != nil {
		return fmt.Errorf("failed to initialize processor: %w", err)
	}

	v := validator.New(validator.Config{
		MinLength:      cfg.Validator.MinLength,
		ReadabilityMin: cfg.Validator.ReadabilityMin,
		ReadabilityMax: cfg.Validator.ReadabilityMax,
		Markers:        cfg.Validator.Markers,
		Placeholders:   cfg.Validator.Placeholders,
	})

	var ixOpts []indexer.Option
	if opts.progress != nil {
		ixOpts = append(ixOpts, indexer.WithProgress(opts.progress))
	}
	a.indexer, err = indexer.New(indexer.Config{
		Collection: cfg.VectorStore.Collection,
		Workers:    cfg.Indexer.Workers,
	}, proc, embedder, a.store, a.reader, v, a.logger, ixOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize indexer: %w", err)
	}

	ret, err := retriever.New(cfg.VectorStore.Collection, embedder, a.store,
		retriever.WithQueryCache(cfg.Retriever.QueryCacheTTL))
	if err != nil {
		return fmt.Errorf("failed to initialize retriever: %w", err)
	}

	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	a.rag = rag.New(ret, chat, chat.Temperature(), a.logger)
	return nil
}

// IndexFileBook indexes the book loaded from content.file, if any.
func (a *App) IndexFileBook(ctx context.Context) (models.IndexReport, error) {
	if a.fileBook.IsZero() {
		return models.IndexReport{}, errors.New("no book file configured")
	}
	return a.indexer.IndexHierarchy(ctx, a.fileBook)
}

func (a *App) Server(streaming bool) *server.Server {
	return server.New(server.Config{
		Addr:           a.config.Server.Addr,
		ReadTimeout:    a.config.Server.ReadTimeout,
		WriteTimeout:   a.config.Server.WriteTimeout,
		RequestTimeout: a.config.Server.RequestTimeout,
		AllowedOrigins: a.config.Server.AllowedOrigins,
		Streaming:      streaming,
	}, a.rag, a.indexer, a.logger)
}

func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil {
			a.logger.Warn("error closing embedder", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}
