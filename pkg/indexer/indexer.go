// Package indexer turns the book hierarchy into embedded, searchable chunks.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/booksage/internal/models"
	"github.com/xhad/booksage/internal/types"
)

// ErrRootNotFound marks a failed lookup of the unit indexing starts from. It
// wraps models.ErrNotFound.
var ErrRootNotFound = errors.New("root content not found")

type Config struct {
	Collection string
	// Workers bounds concurrent embedding calls within one unit.
	Workers int
}

// ProgressFunc is called after each unit with text has been indexed.
type ProgressFunc func(unit models.ContentUnit, chunks int)

type Option func(*Indexer)

func WithProgress(fn ProgressFunc) Option {
	return func(ix *Indexer) {
		ix.progress = fn
	}
}

type Indexer struct {
	config    Config
	processor types.TextProcessor
	embedder  types.Embedder
	store     types.VectorStore
	reader    types.ContentReader
	validator types.ContentValidator
	logger    *zap.Logger
	progress  ProgressFunc
}

func New(
	config Config,
	processor types.TextProcessor,
	embedder types.Embedder,
	store types.VectorStore,
	reader types.ContentReader,
	validator types.ContentValidator,
	logger *zap.Logger,
	opts ...Option,
) (*Indexer, error) {
	if processor == nil || embedder == nil || store == nil || validator == nil {
		return nil, fmt.Errorf("%w: indexer needs a processor, embedder, store and validator", models.ErrInvalidConfiguration)
	}
	if config.Collection == "" {
		return nil, fmt.Errorf("%w: indexer collection is empty", models.ErrInvalidConfiguration)
	}
	if config.Workers < 1 {
		config.Workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ix := &Indexer{
		config:    config,
		processor: processor,
		embedder:  embedder,
		store:     store,
		reader:    reader,
		validator: validator,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// IndexUnit windows text, embeds every window and upserts them as
// "{content_id}_{i}". Chunks of an earlier, longer version are removed
// afterwards. Empty text indexes nothing and touches no store.
func (ix *Indexer) IndexUnit(ctx context.Context, contentID models.ContentID, contentType models.ContentType, text string, metadata map[string]any) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}

	chunks := ix.processor.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	vectors := make([]models.Vector, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.config.Workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			v, err := ix.embedder.Encode(gctx, chunk)
			if err != nil {
				return fmt.Errorf("embed chunk %d of %s: %w", i, contentID, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	records := make([]models.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = models.Record{
			ID:     models.NewChunkID(contentID, i),
			Vector: vectors[i],
			Payload: models.ChunkPayload{
				ContentID:   contentID,
				ContentType: contentType,
				ChunkText:   chunk,
				ChunkIndex:  i,
				Metadata:    metadata,
			},
		}
	}

	if err := ix.store.Upsert(ctx, ix.config.Collection, records); err != nil {
		return 0, fmt.Errorf("upsert chunks of %s: %w", contentID, err)
	}
	if err := ix.store.DeleteStale(ctx, ix.config.Collection, contentID, len(records)); err != nil {
		return 0, fmt.Errorf("remove stale chunks of %s: %w", contentID, err)
	}

	ix.logger.Debug("indexed unit",
		zap.String("content_id", contentID.String()),
		zap.String("content_type", string(contentType)),
		zap.Int("chunks", len(records)),
	)
	return len(records), nil
}

// IndexHierarchy indexes rootID and everything below it, parents before
// children and siblings in order. It stops at the first dependency failure.
func (ix *Indexer) IndexHierarchy(ctx context.Context, rootID models.ContentID) (models.IndexReport, error) {
	report := models.IndexReport{ValidationIssues: []string{}}
	if ix.reader == nil {
		return report, fmt.Errorf("%w: indexer has no content reader", models.ErrInvalidConfiguration)
	}

	root, err := ix.reader.GetUnit(ctx, rootID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return report, fmt.Errorf("%w: %w", ErrRootNotFound, err)
		}
		return report, err
	}

	metadata, err := ix.ancestorMetadata(ctx, root)
	if err != nil {
		return report, err
	}

	if err := ix.walk(ctx, *root, metadata, &report); err != nil {
		return report, err
	}

	ix.logger.Info("indexed hierarchy",
		zap.String("root_id", rootID.String()),
		zap.String("root_type", string(root.Type)),
		zap.String("title", root.Title),
		zap.Int("chunks_indexed", report.ChunksIndexed),
		zap.Int("validation_issues", len(report.ValidationIssues)),
	)
	return report, nil
}

// IndexAll indexes every book the lister knows about.
func (ix *Indexer) IndexAll(ctx context.Context, lister types.BookLister) (models.IndexReport, error) {
	report := models.IndexReport{ValidationIssues: []string{}}

	books, err := lister.ListBooks(ctx)
	if err != nil {
		return report, err
	}
	for _, book := range books {
		r, err := ix.IndexHierarchy(ctx, book.ID)
		report.ChunksIndexed += r.ChunksIndexed
		report.ValidationIssues = append(report.ValidationIssues, r.ValidationIssues...)
		if err != nil {
			return report, fmt.Errorf("index book %q: %w", book.Title, err)
		}
	}
	return report, nil
}

func (ix *Indexer) walk(ctx context.Context, unit models.ContentUnit, inherited map[string]any, report *models.IndexReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	metadata := withUnit(inherited, unit)

	text := ix.processor.Clean(unit.Text)
	if strings.TrimSpace(text) != "" {
		validation := ix.validator.Validate(text, strings.ToLower(string(unit.Type)))

		chunkMetadata := copyMetadata(metadata)
		chunkMetadata["validation"] = validation.Map()

		n, err := ix.IndexUnit(ctx, unit.ID, unit.Type, text, chunkMetadata)
		if err != nil {
			return err
		}
		report.ChunksIndexed += n

		if !validation.IsValid {
			issue := fmt.Sprintf("%s '%s' validation issues: %s", unit.Type, unit.Title, strings.Join(validation.Issues, ", "))
			report.ValidationIssues = append(report.ValidationIssues, issue)
			ix.logger.Warn("content failed validation",
				zap.String("content_id", unit.ID.String()),
				zap.String("content_type", string(unit.Type)),
				zap.Strings("issues", validation.Issues),
			)
		}

		if ix.progress != nil {
			ix.progress(unit, n)
		}
	} else if err := ix.store.DeleteStale(ctx, ix.config.Collection, unit.ID, 0); err != nil {
		// Blank units drop whatever an earlier run indexed for them.
		return fmt.Errorf("remove chunks of emptied %s: %w", unit.ID, err)
	}

	level := unit.Type.Child()
	if level == "" {
		return nil
	}
	children, err := ix.reader.GetChildren(ctx, unit.ID, level)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := ix.walk(ctx, child, metadata, report); err != nil {
			return err
		}
	}
	return nil
}

// ancestorMetadata collects the identifying keys of every ancestor of unit,
// so indexing a chapter alone still tags its chunks with book and module.
func (ix *Indexer) ancestorMetadata(ctx context.Context, unit *models.ContentUnit) (map[string]any, error) {
	var chain []models.ContentUnit
	for current := unit; current.Type != models.Book && !current.ParentID.IsZero(); {
		parent, err := ix.reader.GetUnit(ctx, current.ParentID)
		if err != nil {
			return nil, fmt.Errorf("resolve parent of %s %s: %w", current.Type, current.ID, err)
		}
		chain = append(chain, *parent)
		current = parent
	}

	metadata := map[string]any{}
	for i := len(chain) - 1; i >= 0; i-- {
		metadata = withUnit(metadata, chain[i])
	}
	return metadata, nil
}

func withUnit(inherited map[string]any, unit models.ContentUnit) map[string]any {
	m := copyMetadata(inherited)
	id := unit.ID.String()
	switch unit.Type {
	case models.Book:
		m["book_id"] = id
		m["book_title"] = unit.Title
	case models.Module:
		m["module_id"] = id
		m["module_title"] = unit.Title
	case models.Chapter:
		m["chapter_id"] = id
		m["chapter_title"] = unit.Title
		m["chapter_number"] = unit.Number
	case models.Section:
		m["section_id"] = id
		m["section_title"] = unit.Title
		m["section_type"] = unit.Kind
	}
	return m
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
