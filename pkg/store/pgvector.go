package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/xhad/booksage/internal/models"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type PGVectorConfig struct {
	// M and EfConstruction shape the HNSW graph when the index is created.
	M              int
	EfConstruction int
	// EfSearch is the candidate list size per query. It is raised to the
	// query limit when that is larger.
	EfSearch int
}

// maxEfSearch is the largest hnsw.ef_search pgvector accepts.
const maxEfSearch = 1000

// PGVectorStore keeps one table per collection in Postgres with the pgvector
// extension.
type PGVectorStore struct {
	config PGVectorConfig
	pool   *pgxpool.Pool
	logger *zap.Logger

	mu          sync.RWMutex
	collections map[string]models.CollectionSpec
}

func NewPGVector(pool *pgxpool.Pool, config PGVectorConfig, logger *zap.Logger) *PGVectorStore {
	if config.M == 0 {
		config.M = 16
	}
	if config.EfConstruction == 0 {
		config.EfConstruction = 64
	}
	if config.EfSearch == 0 {
		config.EfSearch = 40
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGVectorStore{
		config:      config,
		pool:        pool,
		logger:      logger,
		collections: make(map[string]models.CollectionSpec),
	}
}

func opsFor(metric models.Metric) (ops, operator string, err error) {
	switch metric {
	case models.Cosine, "":
		return "vector_cosine_ops", "<=>", nil
	case models.Euclid:
		return "vector_l2_ops", "<->", nil
	case models.Dot:
		return "vector_ip_ops", "<#>", nil
	}
	return "", "", fmt.Errorf("%w: unknown metric %q", models.ErrInvalidConfiguration, metric)
}

// scoreExpr turns the pgvector distance into a higher-is-better score.
func scoreExpr(metric models.Metric) string {
	switch metric {
	case models.Euclid:
		return "1 / (1 + (embedding <-> $1))"
	case models.Dot:
		return "(embedding <#> $1) * -1"
	}
	return "1 - (embedding <=> $1)"
}

// EnsureCollection creates the extension, table and indexes if missing.
func (vs *PGVectorStore) EnsureCollection(ctx context.Context, spec models.CollectionSpec) error {
	if !identifier.MatchString(spec.Name) {
		return fmt.Errorf("%w: collection name %q", models.ErrInvalidConfiguration, spec.Name)
	}
	if spec.Dimension < 1 {
		return fmt.Errorf("%w: collection dimension %d", models.ErrInvalidConfiguration, spec.Dimension)
	}
	ops, _, err := opsFor(spec.Metric)
	if err != nil {
		return err
	}

	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content_id UUID NOT NULL,
			content_type TEXT NOT NULL,
			content TEXT,
			chunk_index INTEGER NOT NULL,
			embedding vector(%d),
			metadata JSONB
		)`, spec.Name, spec.Dimension),
		// Earlier versions built an ivfflat index under this name.
		fmt.Sprintf("DROP INDEX IF EXISTS %s_embedding_idx", spec.Name),
		fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_hnsw_idx
		ON %s
		USING hnsw (embedding %s)
		WITH (m = %d, ef_construction = %d)`, spec.Name, spec.Name, ops, vs.config.M, vs.config.EfConstruction),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_content_id_idx ON %s (content_id)", spec.Name, spec.Name),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_metadata_idx ON %s USING GIN (metadata)", spec.Name, spec.Name),
	}

	for _, stmt := range statements {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return models.DependencyError("ensure collection "+spec.Name, err)
		}
	}

	vs.mu.Lock()
	vs.collections[spec.Name] = spec
	vs.mu.Unlock()

	vs.logger.Info("vector collection ready",
		zap.String("collection", spec.Name),
		zap.Int("dimension", spec.Dimension),
		zap.String("metric", string(spec.Metric)),
	)
	return nil
}

func (vs *PGVectorStore) spec(collection string) (models.CollectionSpec, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	spec, ok := vs.collections[collection]
	if !ok {
		return models.CollectionSpec{}, fmt.Errorf("%w: collection %q", models.ErrNotFound, collection)
	}
	return spec, nil
}

// Upsert writes all records in one transaction, overwriting by chunk id.
func (vs *PGVectorStore) Upsert(ctx context.Context, collection string, records []models.Record) error {
	spec, err := vs.spec(collection)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := r.Vector.CheckDim(spec.Dimension); err != nil {
			return err
		}
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return models.DependencyError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content_id, content_type, content, chunk_index, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content_id = EXCLUDED.content_id,
			content_type = EXCLUDED.content_type,
			content = EXCLUDED.content,
			chunk_index = EXCLUDED.chunk_index,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		collection)

	for _, r := range records {
		metadata, err := json.Marshal(r.Payload.Metadata)
		if err != nil {
			return fmt.Errorf("%w: metadata for %s: %v", models.ErrInvalidArgument, r.ID, err)
		}
		_, err = tx.Exec(ctx, stmt,
			r.ID.String(),
			r.Payload.ContentID.UUID(),
			string(r.Payload.ContentType),
			sanitizeUTF8(r.Payload.ChunkText),
			r.Payload.ChunkIndex,
			pgvector.NewVector(r.Vector),
			string(metadata),
		)
		if err != nil {
			return models.DependencyError("insert chunk "+r.ID.String(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.DependencyError("commit transaction", err)
	}
	return nil
}

// Search returns the nearest chunks whose metadata contains every filter pair.
func (vs *PGVectorStore) Search(ctx context.Context, collection string, vector models.Vector, filter map[string]any, limit int) ([]models.StoreHit, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1, got %d", models.ErrInvalidArgument, limit)
	}
	spec, err := vs.spec(collection)
	if err != nil {
		return nil, err
	}
	if err := vector.CheckDim(spec.Dimension); err != nil {
		return nil, err
	}
	_, operator, err := opsFor(spec.Metric)
	if err != nil {
		return nil, err
	}

	if filter == nil {
		filter = map[string]any{}
	}
	containment, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("%w: filter: %v", models.ErrInvalidArgument, err)
	}

	query := fmt.Sprintf(`
		SELECT id, content_id, content_type, content, chunk_index, metadata, %s AS score
		FROM %s
		WHERE metadata @> $2::jsonb
		ORDER BY embedding %s $1
		LIMIT $3`,
		scoreExpr(spec.Metric), collection, operator)

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return nil, models.DependencyError("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	efSearch := min(max(vs.config.EfSearch, limit), maxEfSearch)
	settings := []string{fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", efSearch)}
	if len(filter) > 0 {
		// The HNSW scan filters after it picks candidates and can come back
		// short. Filtered searches rank the matching rows exactly instead.
		settings = append(settings, "SET LOCAL enable_indexscan = off")
	}
	for _, stmt := range settings {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, models.DependencyError("configure search", err)
		}
	}

	rows, err := tx.Query(ctx, query, pgvector.NewVector(vector), string(containment), limit)
	if err != nil {
		return nil, models.DependencyError("query chunks", err)
	}
	defer rows.Close()

	var hits []models.StoreHit
	for rows.Next() {
		var (
			id          string
			contentID   uuid.UUID
			contentType string
			hit         models.StoreHit
		)
		err := rows.Scan(
			&id,
			&contentID,
			&contentType,
			&hit.Payload.ChunkText,
			&hit.Payload.ChunkIndex,
			&hit.Payload.Metadata,
			&hit.Score,
		)
		if err != nil {
			return nil, models.DependencyError("scan chunk", err)
		}
		hit.ID = models.ChunkID(id)
		hit.Payload.ContentID = models.ContentID(contentID)
		hit.Payload.ContentType = models.ContentType(contentType)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, models.DependencyError("query chunks", err)
	}

	return hits, nil
}

// DeleteStale removes chunks left over from a longer previous version.
func (vs *PGVectorStore) DeleteStale(ctx context.Context, collection string, contentID models.ContentID, fromIndex int) error {
	if _, err := vs.spec(collection); err != nil {
		return err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE content_id = $1 AND chunk_index >= $2", collection)
	tag, err := vs.pool.Exec(ctx, stmt, contentID.UUID(), fromIndex)
	if err != nil {
		return models.DependencyError("delete stale chunks", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		vs.logger.Debug("removed stale chunks",
			zap.String("content_id", contentID.String()),
			zap.Int64("count", n),
		)
	}
	return nil
}

// Close is a no-op: the pool is shared and closed by its owner.
func (vs *PGVectorStore) Close() {}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
